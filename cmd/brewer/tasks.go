package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/CZERTAINLY/Brewer/internal/service"
	"github.com/CZERTAINLY/Brewer/internal/task"
	"github.com/CZERTAINLY/Brewer/internal/view"
	"github.com/CZERTAINLY/Brewer/internal/walk"
)

// formula directories searched by available when no --dir is given
var defaultFormulaDirs = []string{
	"/usr/local/Library/Formula",
	"/usr/local/Homebrew/Library/Taps",
	"/opt/homebrew/Library/Taps",
}

var (
	flagFormulaDirs []string // values of available --dir
	flagFilter      string   // value of available --filter
	flagStdin       bool     // value of exec --stdin
	flagDir         string   // value of exec --dir
)

var availableCmd = &cobra.Command{
	Use:   "available",
	Short: "available lists formula files which can be installed",
	Args:  cobra.NoArgs,
	RunE:  doAvailable,
}

var execCmd = &cobra.Command{
	Use:   "exec <path> [args...]",
	Short: "exec runs a program as a task and streams its output",
	Args:  cobra.MinimumNArgs(1),
	RunE:  doExec,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run refreshes the package list and exports it, periodically in timer mode",
	Args:  cobra.NoArgs,
	RunE:  doRun,
}

func init() {
	availableCmd.Flags().StringSliceVar(&flagFormulaDirs, "dir", nil, "directory with formula files, can be repeated")
	availableCmd.Flags().StringVar(&flagFilter, "filter", "", "show only formulas whose name contains the filter")

	execCmd.Flags().BoolVar(&flagStdin, "stdin", false, "forward standard input to the task")
	execCmd.Flags().StringVar(&flagDir, "dir", "", "working directory of the task")
	execCmd.Flags().SetInterspersed(false)
}

func doAvailable(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	dirs := flagFormulaDirs
	if len(dirs) == 0 {
		dirs = defaultFormulaDirs
	}

	var roots []*os.Root
	defer func() {
		for _, root := range roots {
			_ = root.Close()
		}
	}()
	for _, dir := range dirs {
		root, err := os.OpenRoot(dir)
		if err != nil {
			if len(flagFormulaDirs) > 0 {
				return fmt.Errorf("opening formula directory: %w", err)
			}
			slog.DebugContext(ctx, "skipping formula directory", "dir", dir, "error", err)
			continue
		}
		roots = append(roots, root)
	}
	if len(roots) == 0 {
		return fmt.Errorf("no formula directory found in %s", strings.Join(dirs, ", "))
	}

	var formulas []walk.Formula
	for formula, err := range walk.Formulas(ctx, roots...) {
		if err != nil {
			slog.WarnContext(ctx, "can't read formula", "path", formula.Path, "error", err)
			continue
		}
		if flagFilter != "" && !strings.Contains(formula.Name, flagFilter) {
			continue
		}
		formulas = append(formulas, formula)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return view.NewTable(cmd.OutOrStdout()).Formulas(cmd.OutOrStdout(), formulas)
}

func doExec(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	path, err := exec.LookPath(args[0])
	if err != nil {
		return err
	}
	if path, err = filepath.Abs(path); err != nil {
		return err
	}

	tk, err := task.New(path, task.WithDir(flagDir))
	if err != nil {
		return err
	}
	defer func() {
		_ = tk.Close()
	}()
	if err := tk.SetArgs(args[1:]...); err != nil {
		return err
	}

	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	if err := tk.OnStdout(func(text string) { _, _ = io.WriteString(stdout, text) }); err != nil {
		return err
	}
	if err := tk.OnStderr(func(text string) { _, _ = io.WriteString(stderr, text) }); err != nil {
		return err
	}
	_, outHandle, errHandle, err := tk.Pipe()
	if err != nil {
		return err
	}

	stdin, _, err := tk.Launch(ctx)
	if err != nil {
		return err
	}
	if flagStdin {
		go func() {
			_, _ = io.Copy(stdin, cmd.InOrStdin())
			_ = stdin.Close()
		}()
	} else {
		_ = stdin.Close()
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

wait:
	for {
		select {
		case sig := <-signals:
			slog.DebugContext(ctx, "forwarding signal", "signal", sig.String(), "pid", tk.PID())
			if sig == os.Interrupt {
				err = tk.Interrupt(nil)
			} else {
				err = tk.Terminate(nil)
			}
			if err != nil {
				return err
			}
		case <-tk.Done():
			break wait
		}
	}
	<-outHandle.Done()
	<-errHandle.Done()

	status, _ := tk.Status()
	slog.DebugContext(ctx, "task terminated", "status", status, "reason", tk.Reason().String())
	if tk.Reason() == task.ReasonUncaughtSignal {
		// shell convention
		return exitStatusError{code: 128 + status}
	}
	if status != 0 {
		return exitStatusError{code: status}
	}
	var exitErr *exec.ExitError
	if err := tk.Err(); err != nil && !errors.As(err, &exitErr) {
		return err
	}
	return nil
}

func doRun(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := newClient()
	if err != nil {
		return err
	}
	supervisor, err := service.SupervisorFromConfig(ctx, config.Service, client)
	if err != nil {
		return err
	}
	return supervisor.Do(ctx)
}
