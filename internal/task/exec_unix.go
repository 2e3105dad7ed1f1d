//go:build unix

package task

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return unix.Access(path, unix.X_OK) == nil
}

func stopProcess(p *os.Process) error {
	return p.Signal(unix.SIGSTOP)
}

func continueProcess(p *os.Process) error {
	return p.Signal(unix.SIGCONT)
}

func exitStatus(state *os.ProcessState) (int, Reason) {
	if state == nil {
		return -1, ReasonNone
	}
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok {
		return state.ExitCode(), ReasonExit
	}
	switch {
	case ws.Signaled():
		return int(ws.Signal()), ReasonUncaughtSignal
	case ws.Exited():
		return ws.ExitStatus(), ReasonExit
	default:
		return -1, ReasonNone
	}
}
