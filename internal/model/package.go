package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Package is one row of the package list.
type Package struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Command is one invocation of an external program.
type Command struct {
	Path    string
	Args    []string
	Dir     string
	Env     []string
	Timeout time.Duration
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Path
	}
	return c.Path + " " + strings.Join(c.Args, " ")
}

type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// StreamFunc receives output chunks while a command runs.
type StreamFunc func(stream Stream, chunk string)

// Result of a finished command. Reason is "exit" or "uncaught_signal", Status
// is the exit code or the signal number respectively.
type Result struct {
	Path    string
	Args    []string
	Started time.Time
	Stopped time.Time
	Stdout  string
	Stderr  string
	Status  int
	Reason  string
	Err     error
}

var ErrCommandFailed = errors.New("command failed")

// Check returns an error wrapping ErrCommandFailed unless the command exited
// with status zero.
func (r Result) Check() error {
	if r.Reason == "exit" && r.Status == 0 {
		return nil
	}
	msg := strings.TrimSpace(r.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(r.Stdout)
	}
	return fmt.Errorf("%s %s: %w: %s %d: %s", r.Path, strings.Join(r.Args, " "), ErrCommandFailed, r.Reason, r.Status, msg)
}

// Combined returns stdout followed by stderr.
func (r Result) Combined() string {
	return r.Stdout + r.Stderr
}

func (r Result) Duration() time.Duration {
	return r.Stopped.Sub(r.Started)
}

// Executor runs a command to completion. The error is reserved for failures
// to run it at all, the exit status is part of Result.
type Executor interface {
	Run(ctx context.Context, cmd Command, stream StreamFunc) (Result, error)
}
