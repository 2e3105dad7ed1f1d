package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"sync"
	"syscall"

	"github.com/CZERTAINLY/Brewer/internal/notify"
	"github.com/CZERTAINLY/Brewer/internal/pipe"
)

// Reason tells why a task terminated.
type Reason int

const (
	// ReasonNone means the task is still running or the reason is unknown.
	ReasonNone Reason = iota
	ReasonExit
	ReasonUncaughtSignal
)

func (r Reason) String() string {
	switch r {
	case ReasonExit:
		return "exit"
	case ReasonUncaughtSignal:
		return "uncaught_signal"
	default:
		return ""
	}
}

// DidTerminate is posted for the task's *exec.Cmd once the process exits.
const DidTerminate notify.Kind = "TaskDidTerminate"

// UserInfo keys of the DidTerminate notification.
const (
	StatusItem = "status"
	ReasonItem = "reason"
)

var (
	ErrInvalidExecutable = errors.New("not a valid executable")
	ErrAlreadyLaunched   = errors.New("task already launched")
	ErrNotLaunched       = errors.New("task not launched")
	ErrNotRunning        = errors.New("task not running")
	ErrNotPiped          = errors.New("task output is not piped")
	ErrAlreadySuspended  = errors.New("task already suspended: use SuspendNested to suspend it again")
	ErrNotSuspended      = errors.New("task not suspended")
)

// CompletionFunc receives the whole standard output and error of a task and
// the termination notification.
type CompletionFunc func(stdout, stderr string, n notify.Notification)

// Option configures a Task in New.
type Option func(*Task)

// WithDir sets the working directory of the process.
func WithDir(dir string) Option {
	return func(t *Task) {
		t.cmd.Dir = dir
	}
}

// WithEnv sets the environment of the process, nil inherits the current one.
func WithEnv(env []string) Option {
	return func(t *Task) {
		t.cmd.Env = env
	}
}

// WithCenter makes the task post and subscribe on center instead of
// notify.Default().
func WithCenter(center *notify.Center) Option {
	return func(t *Task) {
		if center != nil {
			t.center = center
		}
	}
}

// WithCompletion pipes the standard streams and calls fn once the process
// terminated and both streams were read to the end.
func WithCompletion(fn CompletionFunc) Option {
	return func(t *Task) {
		t.completion = fn
	}
}

// LaunchOption configures a Task in Launch.
type LaunchOption func(*Task)

// FromDirectory sets the working directory of the process.
func FromDirectory(dir string) LaunchOption {
	return func(t *Task) {
		if dir != "" {
			t.cmd.Dir = dir
		}
	}
}

// WithArgs sets the arguments unless they were set already.
func WithArgs(args ...string) LaunchOption {
	return func(t *Task) {
		if !t.argsSet {
			t.args = slices.Clone(args)
			t.argsSet = true
		}
	}
}

// Task wraps one OS process with its pipes and lifecycle callbacks.
//
// A task goes from created to launched, may be suspended, and ends as
// terminated once the OS reports the exit. It is launched at most once.
type Task struct {
	center     *notify.Center
	cmd        *exec.Cmd
	completion CompletionFunc

	mx         sync.Mutex
	args       []string
	argsSet    bool
	stdin      *pipe.Handle
	stdout     *pipe.Handle
	stderr     *pipe.Handle
	childFiles []*os.File
	launched   bool
	exited     bool
	suspended  int
	status     int
	reason     Reason
	waitErr    error
	final      notify.Notification
	subs       []*notify.Subscription
	stopWatch  func() bool
	done       chan struct{}
}

// New creates a task for the executable at path. It returns
// ErrInvalidExecutable if path is not an executable regular file.
func New(path string, opts ...Option) (*Task, error) {
	if !isExecutable(path) {
		return nil, fmt.Errorf("%s: %w", path, ErrInvalidExecutable)
	}

	t := &Task{
		center: notify.Default(),
		cmd: &exec.Cmd{
			Path: path,
			Args: []string{path},
		},
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.completion != nil {
		if err := t.capture(t.completion); err != nil {
			_ = t.Close()
			return nil, err
		}
	}
	return t, nil
}

func (t *Task) capture(fn CompletionFunc) error {
	_, stdout, stderr, err := t.Pipe()
	if err != nil {
		return err
	}

	outCh := make(chan string, 1)
	errCh := make(chan string, 1)
	if err := stdout.ReadToEnd(func(s string) { outCh <- s }); err != nil {
		return err
	}
	if err := stderr.ReadToEnd(func(s string) { errCh <- s }); err != nil {
		return err
	}

	t.OnDone(func(n notify.Notification) {
		go func() {
			stdout := collected(outCh, stdout)
			stderr := collected(errCh, stderr)
			fn(stdout, stderr, n)
		}()
	})
	return nil
}

// collected returns the text read to the end, or an empty string if h was
// closed before it reached EOF.
func collected(ch <-chan string, h *pipe.Handle) string {
	select {
	case s := <-ch:
		return s
	case <-h.Done():
		select {
		case s := <-ch:
			return s
		default:
			return ""
		}
	}
}

// Notifications maps "done" to DidTerminate.
func (t *Task) Notifications() map[string]notify.Kind {
	return map[string]notify.Kind{
		"done": DidTerminate,
	}
}

// Native returns the underlying *exec.Cmd.
func (t *Task) Native() any {
	return t.cmd
}

// Pipe installs pipes as the standard streams of the process. The first call
// creates them, later calls return the same handles. Without a call the
// process inherits the streams of the current process.
func (t *Task) Pipe() (stdin, stdout, stderr *pipe.Handle, err error) {
	t.mx.Lock()
	defer t.mx.Unlock()
	if t.stdin != nil {
		return t.stdin, t.stdout, t.stderr, nil
	}
	if t.launched {
		return nil, nil, nil, ErrAlreadyLaunched
	}

	var files []*os.File
	fail := func(err error, handles ...*pipe.Handle) (*pipe.Handle, *pipe.Handle, *pipe.Handle, error) {
		for _, h := range handles {
			_ = h.Close()
		}
		for _, f := range files {
			_ = f.Close()
		}
		return nil, nil, nil, err
	}

	in, inChild, err := pipe.Open(pipe.Write, t.center)
	if err != nil {
		return fail(err)
	}
	files = append(files, inChild)
	out, outChild, err := pipe.Open(pipe.Read, t.center)
	if err != nil {
		return fail(err, in)
	}
	files = append(files, outChild)
	errOut, errChild, err := pipe.Open(pipe.Read, t.center)
	if err != nil {
		return fail(err, in, out)
	}
	files = append(files, errChild)

	t.cmd.Stdin = inChild
	t.cmd.Stdout = outChild
	t.cmd.Stderr = errChild
	t.childFiles = files
	t.stdin, t.stdout, t.stderr = in, out, errOut
	return t.stdin, t.stdout, t.stderr, nil
}

// Launch starts the process. The returned stdin and stdout handles are nil
// unless Pipe was called. The process is killed when ctx is done.
func (t *Task) Launch(ctx context.Context, opts ...LaunchOption) (stdin, stdout *pipe.Handle, err error) {
	t.mx.Lock()
	defer t.mx.Unlock()
	if t.launched {
		return nil, nil, ErrAlreadyLaunched
	}
	for _, opt := range opts {
		opt(t)
	}

	t.cmd.Args = append([]string{t.cmd.Path}, t.args...)
	if err := t.cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("launching %s: %w", t.cmd.Path, err)
	}
	t.launched = true

	// the child holds its own copies now
	for _, f := range t.childFiles {
		_ = f.Close()
	}
	t.childFiles = nil

	proc := t.cmd.Process
	t.stopWatch = context.AfterFunc(ctx, func() {
		_ = proc.Kill()
	})

	slog.DebugContext(ctx, "task launched",
		"path", t.cmd.Path,
		"args", t.args,
		"dir", t.cmd.Dir,
		"pid", proc.Pid,
	)
	go t.wait()
	return t.stdin, t.stdout, nil
}

func (t *Task) wait() {
	err := t.cmd.Wait()
	status, reason := exitStatus(t.cmd.ProcessState)
	info := map[string]any{
		StatusItem: status,
		ReasonItem: reason,
	}

	t.mx.Lock()
	t.stopWatch()
	t.exited = true
	t.status = status
	t.reason = reason
	t.waitErr = err
	t.final = notify.Notification{Name: DidTerminate, Object: t, UserInfo: info}
	close(t.done)
	t.mx.Unlock()

	slog.Debug("task terminated",
		"path", t.cmd.Path,
		"pid", t.cmd.Process.Pid,
		"status", status,
		"reason", reason.String(),
	)
	t.center.Post(t.cmd, DidTerminate, info)
}

// StandardOutput synchronously reads the whole standard output.
func (t *Task) StandardOutput() (string, error) {
	t.mx.Lock()
	h := t.stdout
	t.mx.Unlock()
	if h == nil {
		return "", ErrNotPiped
	}
	return h.ReadAll()
}

// ErrorOutput synchronously reads the whole standard error.
func (t *Task) ErrorOutput() (string, error) {
	t.mx.Lock()
	h := t.stderr
	t.mx.Unlock()
	if h == nil {
		return "", ErrNotPiped
	}
	return h.ReadAll()
}

// OnStdout calls fn for every chunk of standard output. Pipes are installed
// if needed.
func (t *Task) OnStdout(fn pipe.ChunkFunc) error {
	_, stdout, _, err := t.Pipe()
	if err != nil {
		return err
	}
	return stdout.Read(fn)
}

// OnStderr calls fn for every chunk of standard error. Pipes are installed
// if needed.
func (t *Task) OnStderr(fn pipe.ChunkFunc) error {
	_, _, stderr, err := t.Pipe()
	if err != nil {
		return err
	}
	return stderr.Read(fn)
}

// OnOutput registers fn for both standard output and error.
func (t *Task) OnOutput(fn pipe.ChunkFunc) error {
	if err := t.OnStdout(fn); err != nil {
		return err
	}
	return t.OnStderr(fn)
}

// OnDone calls fn once the process terminated. If it already did, fn is
// called immediately and the returned subscription is nil.
func (t *Task) OnDone(fn notify.Handler) *notify.Subscription {
	t.mx.Lock()
	if t.exited {
		n := t.final
		t.mx.Unlock()
		fn(n)
		return nil
	}
	sub := t.center.SubscribeOnce(t, "done", fn)
	t.subs = append(t.subs, sub)
	t.mx.Unlock()
	return sub
}

// Wait blocks until the process exits and returns the error of
// exec.Cmd.Wait, which is an *exec.ExitError for non-zero exits.
func (t *Task) Wait() error {
	t.mx.Lock()
	launched := t.launched
	t.mx.Unlock()
	if !launched {
		return ErrNotLaunched
	}
	<-t.done
	return t.Err()
}

// Done returns a channel closed once the process terminated.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Interrupt sends SIGINT to a running process, otherwise it does nothing.
// A non-nil fn is called on termination. Unlike Kill, fn is dropped when the
// process is not running.
func (t *Task) Interrupt(fn notify.Handler) error {
	if !t.Running() {
		return nil
	}
	return t.Kill(syscall.SIGINT, fn)
}

// Terminate sends SIGTERM, see Kill.
func (t *Task) Terminate(fn notify.Handler) error {
	return t.Kill(syscall.SIGTERM, fn)
}

// Kill sends sig to the process if it is running. A non-nil fn is called on
// termination.
func (t *Task) Kill(sig os.Signal, fn notify.Handler) error {
	if fn != nil {
		t.OnDone(fn)
	}
	t.mx.Lock()
	defer t.mx.Unlock()
	if !t.runningLocked() {
		return nil
	}
	// reaped, but the wait goroutine did not record it yet
	if err := t.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// Suspend stops the process. Unlike SuspendNested it refuses to suspend an
// already suspended task.
func (t *Task) Suspend() error {
	t.mx.Lock()
	defer t.mx.Unlock()
	if t.suspended > 0 {
		return ErrAlreadySuspended
	}
	return t.suspendLocked()
}

// SuspendNested stops the process and increases the suspend depth. The
// process continues after as many calls to Resume.
func (t *Task) SuspendNested() error {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.suspendLocked()
}

func (t *Task) suspendLocked() error {
	if !t.runningLocked() {
		return ErrNotRunning
	}
	if t.suspended == 0 {
		err := stopProcess(t.cmd.Process)
		if errors.Is(err, os.ErrProcessDone) {
			return ErrNotRunning
		}
		if err != nil {
			return fmt.Errorf("suspending pid %d: %w", t.cmd.Process.Pid, err)
		}
	}
	t.suspended++
	return nil
}

// Resume decreases the suspend depth and continues the process when it
// drops to zero.
func (t *Task) Resume() error {
	t.mx.Lock()
	defer t.mx.Unlock()
	if t.suspended == 0 {
		return ErrNotSuspended
	}
	t.suspended--
	if t.suspended > 0 || !t.runningLocked() {
		return nil
	}
	if err := continueProcess(t.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("resuming pid %d: %w", t.cmd.Process.Pid, err)
	}
	return nil
}

func (t *Task) Suspended() bool {
	return t.SuspendDepth() > 0
}

func (t *Task) SuspendDepth() int {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.suspended
}

func (t *Task) Running() bool {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.runningLocked()
}

func (t *Task) runningLocked() bool {
	return t.launched && !t.exited
}

// PID returns the process id or 0 for a task which was not launched.
func (t *Task) PID() int {
	t.mx.Lock()
	defer t.mx.Unlock()
	if !t.launched {
		return 0
	}
	return t.cmd.Process.Pid
}

// Status returns the exit code, or the signal number for a process killed by
// a signal. The bool is false until the process terminated.
func (t *Task) Status() (int, bool) {
	t.mx.Lock()
	defer t.mx.Unlock()
	if !t.exited {
		return 0, false
	}
	return t.status, true
}

// Reason returns ReasonNone until the process terminated.
func (t *Task) Reason() Reason {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.reason
}

// Err returns the error of exec.Cmd.Wait.
func (t *Task) Err() error {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.waitErr
}

func (t *Task) Args() []string {
	t.mx.Lock()
	defer t.mx.Unlock()
	return slices.Clone(t.args)
}

func (t *Task) SetArgs(args ...string) error {
	t.mx.Lock()
	defer t.mx.Unlock()
	if t.launched {
		return ErrAlreadyLaunched
	}
	t.args = slices.Clone(args)
	t.argsSet = true
	return nil
}

func (t *Task) Dir() string {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.cmd.Dir
}

func (t *Task) SetDir(dir string) error {
	t.mx.Lock()
	defer t.mx.Unlock()
	if t.launched {
		return ErrAlreadyLaunched
	}
	t.cmd.Dir = dir
	return nil
}

func (t *Task) Executable() string {
	return t.cmd.Path
}

// Close drops all callbacks registered through the task and closes its
// pipes. It does not kill the process.
func (t *Task) Close() error {
	t.mx.Lock()
	subs := t.subs
	t.subs = nil
	handles := []*pipe.Handle{t.stdin, t.stdout, t.stderr}
	files := t.childFiles
	t.childFiles = nil
	t.mx.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}

	var errs []error
	for _, h := range handles {
		if h == nil {
			continue
		}
		if err := h.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			errs = append(errs, err)
		}
	}
	for _, f := range files {
		_ = f.Close()
	}
	return errors.Join(errs...)
}
