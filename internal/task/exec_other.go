//go:build !unix

package task

import (
	"errors"
	"os"
)

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func stopProcess(*os.Process) error {
	return errors.ErrUnsupported
}

func continueProcess(*os.Process) error {
	return errors.ErrUnsupported
}

func exitStatus(state *os.ProcessState) (int, Reason) {
	if state == nil {
		return -1, ReasonNone
	}
	return state.ExitCode(), ReasonExit
}
