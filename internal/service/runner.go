package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/CZERTAINLY/Brewer/internal/model"
	"github.com/CZERTAINLY/Brewer/internal/notify"
)

var (
	ErrCommandNotStarted = errors.New("command not started")
	ErrCommandInProgress = errors.New("command in progress")
)

// Runner runs at most one command at a time. It is what the UI actions use:
// a second install must not start while the first one is still running.
type Runner struct {
	exec Exec
	slot chan struct{}
	wg   sync.WaitGroup

	mx     sync.RWMutex
	cancel context.CancelFunc
	result model.Result
	waits  []chan model.Result
}

// NewRunner creates a runner with its own notification center.
func NewRunner() *Runner {
	return &Runner{
		exec:   NewExec(notify.New("runner")),
		slot:   make(chan struct{}, 1),
		result: model.Result{Err: ErrCommandNotStarted},
	}
}

// Start runs the command and returns immediately. It returns
// ErrCommandInProgress if another command is running, or an error if the
// command can't be started. Use ResultsChan to get the result.
func (r *Runner) Start(ctx context.Context, cmd model.Command, stream model.StreamFunc) error {
	select {
	case r.slot <- struct{}{}:
	default:
		return ErrCommandInProgress
	}
	return r.start(ctx, cmd, stream)
}

// Run waits until no other command runs, then runs cmd and waits for its
// result. It implements model.Executor.
func (r *Runner) Run(ctx context.Context, cmd model.Command, stream model.StreamFunc) (model.Result, error) {
	select {
	case r.slot <- struct{}{}:
	case <-ctx.Done():
		return model.Result{}, ctx.Err()
	}
	ch := r.ResultsChan()
	if err := r.start(ctx, cmd, stream); err != nil {
		return r.LastResult(), err
	}
	return <-ch, nil
}

// start expects the slot to be taken
func (r *Runner) start(ctx context.Context, cmd model.Command, stream model.StreamFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	x, err := r.exec.start(ctx, cmd, stream)
	if err != nil {
		cancel()
		r.finish(x.result)
		return err
	}

	r.mx.Lock()
	r.cancel = cancel
	r.result = model.Result{
		Path:    x.result.Path,
		Args:    x.result.Args,
		Started: x.result.Started,
	}
	r.mx.Unlock()
	slog.DebugContext(ctx, "command started", "cmd", x.String())

	r.wg.Go(func() {
		res := x.wait()
		cancel()
		r.finish(res)
	})
	return nil
}

func (r *Runner) finish(res model.Result) {
	r.mx.Lock()
	r.result = res
	r.cancel = nil
	waits := r.waits
	r.waits = nil
	<-r.slot
	r.mx.Unlock()

	for _, ch := range waits {
		ch <- res
		close(ch)
	}
}

// ResultsChan returns a channel receiving the result of the running command.
// If nothing runs, it receives the last result immediately. The channel is
// closed afterwards.
func (r *Runner) ResultsChan() <-chan model.Result {
	ch := make(chan model.Result, 1)
	r.mx.Lock()
	defer r.mx.Unlock()
	if len(r.slot) == 0 {
		ch <- r.result
		close(ch)
		return ch
	}
	r.waits = append(r.waits, ch)
	return ch
}

// LastResult returns the result of the last command, the partial result of
// the running one, or a result with ErrCommandNotStarted.
func (r *Runner) LastResult() model.Result {
	r.mx.RLock()
	defer r.mx.RUnlock()
	return r.result
}

// Running reports whether a command is running.
func (r *Runner) Running() bool {
	return len(r.slot) > 0
}

// Close kills the running command and waits until it terminates.
func (r *Runner) Close() {
	r.mx.RLock()
	cancel := r.cancel
	r.mx.RUnlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}
