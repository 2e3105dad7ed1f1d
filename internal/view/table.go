// Package view renders packages and command output in a terminal. It stands
// in for the table, alert and progress widgets of a desktop front-end.
package view

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"

	"github.com/CZERTAINLY/Brewer/internal/model"
	"github.com/CZERTAINLY/Brewer/internal/walk"
)

// Table renders rows in a table adapted to the terminal width.
type Table struct {
	// Width overrides the detected terminal width, 0 detects it.
	Width int
	// Colors toggles ANSI colors for empty cells.
	Colors bool
}

// NewTable creates a table with colors enabled for terminals.
func NewTable(w io.Writer) *Table {
	return &Table{Colors: isTerminal(w)}
}

// Packages renders the installed packages with the formula and version
// columns.
func (t *Table) Packages(w io.Writer, pkgs []model.Package) error {
	rows := make([]table.Row, 0, len(pkgs))
	for _, p := range pkgs {
		rows = append(rows, table.Row{p.Name, t.orMissing(p.Version)})
	}
	return t.render(w, table.Row{"Formula", "Version"}, rows, fmt.Sprintf("%d packages", len(pkgs)))
}

// Formulas renders formula files found on disk.
func (t *Table) Formulas(w io.Writer, formulas []walk.Formula) error {
	rows := make([]table.Row, 0, len(formulas))
	for _, f := range formulas {
		rows = append(rows, table.Row{f.Name, t.orMissing(f.Desc), f.Path})
	}
	return t.render(w, table.Row{"Formula", "Description", "Path"}, rows, fmt.Sprintf("%d formulas", len(formulas)))
}

func (t *Table) render(w io.Writer, header table.Row, rows []table.Row, footer string) error {
	if w == nil {
		return fmt.Errorf("nil writer")
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateRows = false
	tw.Style().Options.SeparateColumns = false
	tw.Style().Options.DrawBorder = true

	tw.AppendHeader(header)
	if cfgs := t.columnConfigs(w, len(header)); len(cfgs) > 0 {
		tw.SetColumnConfigs(cfgs)
	}
	tw.AppendRows(rows)
	tw.AppendFooter(table.Row{footer})
	tw.Render()
	return nil
}

// columnConfigs splits the terminal width evenly, the first column is never
// narrower than 15 runes.
func (t *Table) columnConfigs(w io.Writer, columns int) []table.ColumnConfig {
	width := t.Width
	if width <= 0 {
		width = terminalWidth(w)
	}
	if width <= 0 || columns == 0 {
		return nil
	}
	width = max(width, 40)

	per := max((width-3*columns-1)/columns, 8)
	first := max(per, 15)

	configs := []table.ColumnConfig{{
		Number:      1,
		WidthMax:    first,
		Transformer: truncate(first),
	}}
	for i := 2; i <= columns; i++ {
		configs = append(configs, table.ColumnConfig{
			Number:      i,
			WidthMax:    per,
			Transformer: truncate(per),
		})
	}
	return configs
}

func (t *Table) orMissing(s string) string {
	if s != "" {
		return s
	}
	if !t.Colors {
		return "-"
	}
	return text.Colors{text.FgHiBlack}.Sprint("-")
}

// truncate ellipsizes cells longer than limit runes.
func truncate(limit int) text.Transformer {
	return func(val any) string {
		s := fmt.Sprint(val)
		if utf8.RuneCountInString(s) <= limit {
			return s
		}
		if limit <= 1 {
			return "…"
		}
		var b strings.Builder
		for i, r := range []rune(s) {
			if i >= limit-1 {
				break
			}
			b.WriteRune(r)
		}
		b.WriteRune('…')
		return b.String()
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// terminalWidth returns -1 unless w is a terminal.
func terminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil {
			return width
		}
	}
	return -1
}
