package brew

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/CZERTAINLY/Brewer/internal/model"
	"github.com/CZERTAINLY/Brewer/internal/parallel"
)

var (
	ErrInvalidName = errors.New("invalid package name")
	ErrNoVersion   = errors.New("no version in info output")
)

type Option func(*Client)

func WithBinary(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.binary = path
		}
	}
}

func WithDir(dir string) Option {
	return func(c *Client) {
		c.dir = dir
	}
}

func WithEnv(env []string) Option {
	return func(c *Client) {
		c.env = slices.Clone(env)
	}
}

// WithTimeout kills every command running longer than d, zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithParallelism limits concurrent info calls of Installed.
func WithParallelism(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// WithStream receives the output of install, remove and update while they
// run.
func WithStream(fn model.StreamFunc) Option {
	return func(c *Client) {
		c.stream = fn
	}
}

// Client drives the package manager binary. It only knows the textual
// contract of its commands: list prints one name per line and the second
// whitespace separated token of the first line of info is the version.
type Client struct {
	exec        model.Executor
	binary      string
	dir         string
	env         []string
	timeout     time.Duration
	parallelism int
	stream      model.StreamFunc
}

func New(exec model.Executor, opts ...Option) *Client {
	c := &Client{
		exec:        exec,
		binary:      model.DefaultBinary,
		parallelism: model.DefaultParallelism,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromConfig creates a client configured by the brew section, opts are applied
// last.
func FromConfig(exec model.Executor, cfg model.Brew, opts ...Option) (*Client, error) {
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithBinary(cfg.Binary),
		WithDir(cfg.Dir),
		WithEnv(cfg.Environ()),
		WithTimeout(timeout),
		WithParallelism(cfg.Parallelism),
	}
	return New(exec, append(base, opts...)...), nil
}

func (c *Client) Binary() string {
	return c.binary
}

func (c *Client) command(args ...string) model.Command {
	return model.Command{
		Path:    c.binary,
		Args:    args,
		Dir:     c.dir,
		Env:     c.env,
		Timeout: c.timeout,
	}
}

func (c *Client) run(ctx context.Context, stream model.StreamFunc, args ...string) (model.Result, error) {
	cmd := c.command(args...)
	slog.DebugContext(ctx, "running package manager", "cmd", cmd.String())
	res, err := c.exec.Run(ctx, cmd, stream)
	if err != nil {
		return res, fmt.Errorf("running %s: %w", cmd, err)
	}
	return res, nil
}

func (c *Client) output(ctx context.Context, args ...string) (string, error) {
	res, err := c.run(ctx, nil, args...)
	if err != nil {
		return "", err
	}
	if err := res.Check(); err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// List returns names of installed packages.
func (c *Client) List(ctx context.Context) ([]string, error) {
	out, err := c.output(ctx, "list")
	if err != nil {
		return nil, err
	}
	var names []string
	for line := range strings.Lines(out) {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// Info returns the raw info output of a package.
func (c *Client) Info(ctx context.Context, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return c.output(ctx, "info", name)
}

// Version returns the version of a package as reported by info.
func (c *Client) Version(ctx context.Context, name string) (string, error) {
	info, err := c.Info(ctx, name)
	if err != nil {
		return "", err
	}
	version, err := ParseVersion(info)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return version, nil
}

// ParseVersion returns the second whitespace separated token of the first
// line.
func ParseVersion(info string) (string, error) {
	line, _, _ := strings.Cut(info, "\n")
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", ErrNoVersion
	}
	return fields[1], nil
}

// Installed lists installed packages with their versions, in list order. A
// package with unparsable info gets an empty version.
func (c *Client) Installed(ctx context.Context) ([]model.Package, error) {
	names, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	return parallel.Map(ctx, c.parallelism, names, func(ctx context.Context, name string) (model.Package, error) {
		version, err := c.Version(ctx, name)
		switch {
		case errors.Is(err, ErrNoVersion):
			slog.WarnContext(ctx, "can't determine version", "package", name, "error", err)
		case err != nil:
			return model.Package{}, err
		}
		return model.Package{Name: name, Version: version}, nil
	})
}

// Install installs a package and returns it with the installed version.
func (c *Client) Install(ctx context.Context, name string) (model.Package, error) {
	if err := ValidateName(name); err != nil {
		return model.Package{}, err
	}
	res, err := c.run(ctx, c.stream, "install", name)
	if err != nil {
		return model.Package{}, err
	}
	if err := res.Check(); err != nil {
		return model.Package{}, err
	}
	version, err := c.Version(ctx, name)
	if err != nil && !errors.Is(err, ErrNoVersion) {
		return model.Package{}, err
	}
	return model.Package{Name: name, Version: version}, nil
}

// Remove uninstalls a package and returns the command output.
func (c *Client) Remove(ctx context.Context, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	res, err := c.run(ctx, c.stream, "remove", name)
	if err != nil {
		return "", err
	}
	return res.Combined(), res.Check()
}

// Update refreshes the package manager itself. The combined output is
// returned even if the command failed, as it is meant to be shown to the
// user either way.
func (c *Client) Update(ctx context.Context) (string, error) {
	res, err := c.run(ctx, c.stream, "update")
	if err != nil {
		return "", err
	}
	return res.Combined(), res.Check()
}

// ValidateName rejects names which the binary could parse as an option or
// which are not a single argument.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case strings.HasPrefix(name, "-"):
		return fmt.Errorf("%w: %q starts with -", ErrInvalidName, name)
	case strings.ContainsFunc(name, unicode.IsSpace):
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidName, name)
	}
	return nil
}

// NameFromFormulaPath returns the package name of a formula file, e.g. wget
// for /usr/local/Library/Formula/wget.rb.
func NameFromFormulaPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".rb")
}
