package view

import (
	"fmt"
	"io"
	"strings"

	"github.com/gookit/color"
)

type Level int

const (
	Info Level = iota
	Warning
	Critical
)

func (l Level) style() *color.Theme {
	switch l {
	case Warning:
		return color.Warn
	case Critical:
		return color.Error
	default:
		return color.Info
	}
}

func (l Level) String() string {
	switch l {
	case Warning:
		return "warning"
	case Critical:
		return "error"
	default:
		return "info"
	}
}

// Alert is a modal message printed as a block: a title line and the
// indented message.
type Alert struct {
	Level   Level
	Title   string
	Message string
}

// Render writes the alert, colored if colors is set.
func (a Alert) Render(w io.Writer, colors bool) error {
	title := a.Title
	if title == "" {
		title = a.Level.String()
	}
	if colors {
		title = a.Level.style().Sprint(title)
	}
	var b strings.Builder
	b.WriteString(title)
	b.WriteByte('\n')
	for line := range strings.Lines(strings.TrimRight(a.Message, "\n")) {
		b.WriteString("  ")
		b.WriteString(line)
	}
	b.WriteByte('\n')
	_, err := fmt.Fprint(w, b.String())
	return err
}

// ShowAlert renders an alert on w, colored when w is a terminal.
func ShowAlert(w io.Writer, level Level, title, message string) error {
	return Alert{Level: level, Title: title, Message: message}.Render(w, isTerminal(w))
}
