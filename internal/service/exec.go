package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"time"

	"github.com/CZERTAINLY/Brewer/internal/model"
	"github.com/CZERTAINLY/Brewer/internal/notify"
	"github.com/CZERTAINLY/Brewer/internal/task"
)

// Exec runs every command in its own task.Task. It is safe for concurrent
// use and implements model.Executor.
type Exec struct {
	center *notify.Center
}

// NewExec creates an executor posting task notifications on center. A nil
// center gets a private one.
func NewExec(center *notify.Center) Exec {
	if center == nil {
		center = notify.New("exec")
	}
	return Exec{center: center}
}

// Run starts cmd and waits for it. The returned error means the command could
// not be started, exit status and wait error are part of the Result.
func (e Exec) Run(ctx context.Context, cmd model.Command, stream model.StreamFunc) (model.Result, error) {
	x, err := e.start(ctx, cmd, stream)
	if err != nil {
		return x.result, err
	}
	return x.wait(), nil
}

type completion struct {
	stdout string
	stderr string
	status int
	reason task.Reason
}

type execution struct {
	task   *task.Task
	result model.Result
	done   chan completion
	cancel context.CancelFunc
}

func (e Exec) start(ctx context.Context, cmd model.Command, stream model.StreamFunc) (*execution, error) {
	x := &execution{
		result: model.Result{
			Path: cmd.Path,
			Args: slices.Clone(cmd.Args),
		},
		done: make(chan completion, 1),
	}
	fail := func(err error) (*execution, error) {
		x.result.Started = time.Now().UTC()
		x.result.Stopped = x.result.Started
		x.result.Err = err
		return x, err
	}

	path, err := exec.LookPath(cmd.Path)
	if err != nil {
		return fail(err)
	}
	x.result.Path = path

	var env []string
	if len(cmd.Env) > 0 {
		env = append(os.Environ(), cmd.Env...)
	}

	t, err := task.New(path,
		task.WithDir(cmd.Dir),
		task.WithEnv(env),
		task.WithCenter(e.center),
		task.WithCompletion(func(stdout, stderr string, n notify.Notification) {
			status, _ := n.UserInfo[task.StatusItem].(int)
			reason, _ := n.UserInfo[task.ReasonItem].(task.Reason)
			x.done <- completion{stdout: stdout, stderr: stderr, status: status, reason: reason}
		}),
	)
	if err != nil {
		return fail(err)
	}
	x.task = t

	if stream != nil {
		err := t.OnStdout(func(chunk string) { stream(model.Stdout, chunk) })
		if err == nil {
			err = t.OnStderr(func(chunk string) { stream(model.Stderr, chunk) })
		}
		if err != nil {
			_ = t.Close()
			return fail(err)
		}
	}

	if cmd.Timeout > 0 {
		ctx, x.cancel = context.WithTimeout(ctx, cmd.Timeout)
	} else {
		slog.DebugContext(ctx, "command has no timeout", "path", path)
		ctx, x.cancel = context.WithCancel(ctx)
	}

	x.result.Started = time.Now().UTC()
	stdin, _, err := t.Launch(ctx, task.WithArgs(cmd.Args...))
	if err != nil {
		x.cancel()
		_ = t.Close()
		return fail(err)
	}
	// commands are never interactive
	if err := stdin.Close(); err != nil {
		slog.DebugContext(ctx, "closing stdin", "path", path, "error", err)
	}
	return x, nil
}

func (x *execution) wait() model.Result {
	c := <-x.done
	x.cancel()
	x.result.Stopped = time.Now().UTC()
	x.result.Stdout = c.stdout
	x.result.Stderr = c.stderr
	x.result.Status = c.status
	x.result.Reason = c.reason.String()
	x.result.Err = x.task.Err()
	if err := x.task.Close(); err != nil {
		slog.Debug("closing task", "path", x.result.Path, "error", err)
	}
	return x.result
}

func (x *execution) String() string {
	return fmt.Sprintf("%s (pid %d)", x.result.Path, x.task.PID())
}
