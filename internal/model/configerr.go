package model

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
)

// CueErrorDetail is one human readable configuration problem.
type CueErrorDetail struct {
	Path    string // service.schedule.cron
	Code    string // missing_required | unknown_field | conflicting_values | invalid_enum | type_mismatch | validation_error
	Message string
	Pos     CueErrorPosition
	Raw     string
}

func (c CueErrorDetail) Attr(name string) slog.Attr {
	return slog.GroupAttrs(
		name,
		slog.String("code", c.Code),
		slog.String("path", c.Path),
		slog.String("message", c.Message),
		slog.String("file", c.Pos.Filename),
		slog.Int("line", c.Pos.Line),
		slog.Int("column", c.Pos.Column),
	)
}

type CueErrorPosition struct {
	Filename string
	Line     int
	Column   int
}

var (
	reIncomplete  = regexp.MustCompile(`(?i)incomplete value`)
	reNotAllowed  = regexp.MustCompile(`(?i)not allowed|unknown field`)
	reConflict    = regexp.MustCompile(`(?i)conflicting values|cannot unify|incompatible`)
	reEnum        = regexp.MustCompile(`(?i)must be one of|expected one of|empty disjunction`)
	reExpectedGot = regexp.MustCompile(`(?i)expected .* got .*|invalid value`)
)

// enumerations hinted in messages
var enums = map[string][]string{
	"service.mode": {ServiceModeManual, ServiceModeTimer},
}

// CueErrDetails converts an error of LoadConfig into details, one per
// position. Errors not produced by CUE result in a single validation_error.
func CueErrDetails(err error) []CueErrorDetail {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return []CueErrorDetail{{Code: "validation_error", Message: err.Error(), Raw: err.Error()}}
	}

	type seenKey struct {
		path string
		pos  CueErrorPosition
	}
	seen := make(map[seenKey]struct{})

	var out []CueErrorDetail
	for _, e := range errs {
		format, args := e.Msg()
		raw := fmt.Sprintf(format, args...)
		path := normalizePath(e.Path())
		pos := position(e)

		k := seenKey{path: path, pos: pos}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}

		code, msg := classify(raw, path)
		if values, ok := enums[path]; ok {
			msg += fmt.Sprintf(": possible values (%s)", strings.Join(values, ","))
			if d, ok := lookupSchema(path).Default(); ok {
				if s, err := d.String(); err == nil {
					msg += fmt.Sprintf(" (default %s)", s)
				}
			}
		}

		out = append(out, CueErrorDetail{
			Path:    path,
			Code:    code,
			Message: msg,
			Pos:     pos,
			Raw:     raw,
		})
	}
	return out
}

// position prefers the user's config file over the embedded schema.
func position(err cueerrors.Error) CueErrorPosition {
	var fallback CueErrorPosition
	for _, p := range cueerrors.Positions(err) {
		if p.Filename() == "" {
			continue
		}
		pos := CueErrorPosition{
			Filename: p.Filename(),
			Line:     p.Line(),
			Column:   p.Column(),
		}
		if pos.Filename != "config.cue" {
			return pos
		}
		if fallback.Filename == "" {
			fallback = pos
		}
	}
	return fallback
}

func normalizePath(p []string) string {
	if len(p) > 0 && strings.HasPrefix(p[0], "#") {
		p = p[1:]
	}
	return strings.Join(p, ".")
}

func classify(raw, path string) (code, msg string) {
	field := last(path)
	switch {
	case reNotAllowed.MatchString(raw):
		return "unknown_field", fmt.Sprintf("Field %s is not allowed", field)
	case reIncomplete.MatchString(raw):
		return "missing_required", fmt.Sprintf("Field %s is required", field)
	case reEnum.MatchString(raw):
		return "invalid_enum", fmt.Sprintf("Field %s has invalid value", field)
	case reConflict.MatchString(raw):
		return "conflicting_values", fmt.Sprintf("Conflicting values for %s", field)
	case reExpectedGot.MatchString(raw):
		return "type_mismatch", fmt.Sprintf("Field %s has wrong type/value", field)
	default:
		return "validation_error", raw
	}
}

func last(p string) string {
	if i := strings.LastIndexByte(p, '.'); i >= 0 {
		return p[i+1:]
	}
	return p
}

// lookupSchema returns the schema of a path relative to #Config.
func lookupSchema(path string) cue.Value {
	return schema.LookupPath(cue.ParsePath(path))
}
