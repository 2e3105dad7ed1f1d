package walk

import (
	"bufio"
	"context"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Ext is the extension of formula files.
const Ext = ".rb"

// Formula is a formula file found on disk.
type Formula struct {
	Name string // file name without Ext
	Path string // prefixed with the name of the root
	Desc string // value of the desc stanza, if any

	fsys fs.FS
	rel  string
}

// Open opens the formula file.
func (f Formula) Open() (fs.File, error) {
	return f.fsys.Open(f.rel)
}

// Formulas is a convenience wrapper around FS for os.Root. See FS for details.
func Formulas(ctx context.Context, roots ...*os.Root) iter.Seq2[Formula, error] {
	return func(yield func(Formula, error) bool) {
		for _, root := range roots {
			for formula, err := range FS(ctx, root.FS(), root.Name()) {
				if !yield(formula, err) {
					return
				}
			}
		}
	}
}

// FS recursively walks root and yields every regular *.rb file, or an error
// if a directory can't be read. Each Path is prefixed with name. It does not
// follow symlinks.
func FS(ctx context.Context, root fs.FS, name string) iter.Seq2[Formula, error] {
	if root == nil {
		panic("root is nil")
	}

	return func(yield func(Formula, error) bool) {
		fn := func(path string, d fs.DirEntry, err error) error {
			if ctx.Err() != nil {
				return fs.SkipAll
			}
			if err != nil {
				if !yield(Formula{Path: filepath.Join(name, path)}, err) {
					return fs.SkipAll
				}
				return nil
			}
			if !d.Type().IsRegular() || filepath.Ext(path) != Ext {
				return nil
			}
			formula := Formula{
				Name: strings.TrimSuffix(d.Name(), Ext),
				Path: filepath.Join(name, path),
				fsys: root,
				rel:  path,
			}
			formula.Desc, err = desc(root, path)
			if !yield(formula, err) {
				return fs.SkipAll
			}
			return nil
		}
		_ = fs.WalkDir(root, ".", fn)
	}
}

var descRx = regexp.MustCompile(`^\s*desc\s+"((?:[^"\\]|\\.)*)"`)

func desc(root fs.FS, path string) (string, error) {
	f, err := root.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if m := descRx.FindStringSubmatch(scanner.Text()); m != nil {
			return strings.ReplaceAll(m[1], `\"`, `"`), nil
		}
	}
	return "", scanner.Err()
}
