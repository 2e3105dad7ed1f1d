// Package task runs one external program per Task.
//
// A Task owns an *exec.Cmd, optional pipes for its standard streams and
// posts DidTerminate on a notify.Center when the process exits. Callers
// either block (Wait, StandardOutput) or register callbacks (OnStdout,
// OnDone, WithCompletion). Suspension nests: the process is stopped on the
// first SuspendNested and continued on the matching last Resume.
package task
