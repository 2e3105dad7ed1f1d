package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CZERTAINLY/Brewer/internal/brew"
	"github.com/CZERTAINLY/Brewer/internal/log"
	"github.com/CZERTAINLY/Brewer/internal/model"
	"github.com/CZERTAINLY/Brewer/internal/notify"
	"github.com/CZERTAINLY/Brewer/internal/service"
	"github.com/CZERTAINLY/Brewer/internal/view"
)

var flagFormulaFile string // value of install --formula-file

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "list installed packages with their versions",
	Args:  cobra.NoArgs,
	RunE:  doList,
}

var infoCmd = &cobra.Command{
	Use:   "info <name>",
	Short: "info prints package manager information about a package",
	Args:  cobra.ExactArgs(1),
	RunE:  doInfo,
}

var installCmd = &cobra.Command{
	Use:   "install [name]",
	Short: "install a package by name or by its formula file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  doInstall,
}

var removeCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "remove an installed package",
	Args:  cobra.ExactArgs(1),
	RunE:  doRemove,
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "update the package manager and show its output",
	Args:  cobra.NoArgs,
	RunE:  doUpdate,
}

func init() {
	installCmd.Flags().StringVar(&flagFormulaFile, "formula-file", "", "install the package of a formula file, e.g. /usr/local/Library/Formula/wget.rb")
}

func commandContext(cmd *cobra.Command) context.Context {
	attrs := slog.Group("brewer",
		slog.String("cmd", cmd.Name()),
		slog.Int("pid", os.Getpid()),
	)
	return log.ContextAttrs(cmd.Context(), attrs)
}

// newClient returns a client running commands concurrently, which is what
// listing versions needs.
func newClient() (*brew.Client, error) {
	return brew.FromConfig(service.NewExec(notify.New("brewer")), config.Brew)
}

// newSerialClient returns a client running one command at a time and showing
// a spinner with the last output line.
func newSerialClient(cmd *cobra.Command, description string) (*brew.Client, func(), error) {
	progress := view.StartProgress(cmd.ErrOrStderr(), description, false)
	stream := func(_ model.Stream, chunk string) {
		lines := strings.Split(strings.TrimSpace(chunk), "\n")
		if last := strings.TrimSpace(lines[len(lines)-1]); last != "" {
			progress.Describe(last)
		}
	}
	runner := service.NewRunner()
	client, err := brew.FromConfig(runner, config.Brew, brew.WithStream(stream))
	if err != nil {
		progress.Stop()
		runner.Close()
		return nil, nil, err
	}
	done := func() {
		progress.Stop()
		runner.Close()
	}
	return client, done, nil
}

func doList(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	client, err := newClient()
	if err != nil {
		return err
	}
	catalog := service.NewCatalog(client)
	progress := view.StartProgress(cmd.ErrOrStderr(), "listing packages", false)
	err = catalog.Refresh(ctx)
	progress.Stop()
	if err != nil {
		return err
	}
	return view.NewTable(cmd.OutOrStdout()).Packages(cmd.OutOrStdout(), catalog.Packages())
}

func doInfo(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	client, err := newClient()
	if err != nil {
		return err
	}
	info, err := client.Info(ctx, args[0])
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), info)
	return err
}

func doInstall(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	var name string
	switch {
	case flagFormulaFile != "" && len(args) > 0:
		return fmt.Errorf("use either a name or --formula-file")
	case flagFormulaFile != "":
		name = brew.NameFromFormulaPath(flagFormulaFile)
	case len(args) == 1:
		name = args[0]
	default:
		return fmt.Errorf("package name or --formula-file is required")
	}

	client, done, err := newSerialClient(cmd, "installing "+name)
	if err != nil {
		return err
	}
	pkg, err := client.Install(ctx, name)
	done()
	if err != nil {
		return err
	}
	return view.NewTable(cmd.OutOrStdout()).Packages(cmd.OutOrStdout(), []model.Package{pkg})
}

func doRemove(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	client, done, err := newSerialClient(cmd, "removing "+args[0])
	if err != nil {
		return err
	}
	out, err := client.Remove(ctx, args[0])
	done()
	if err != nil {
		if out != "" {
			if alertErr := view.ShowAlert(cmd.OutOrStdout(), view.Critical, "can't remove "+args[0], out); alertErr != nil {
				return alertErr
			}
		}
		return err
	}
	return view.ShowAlert(cmd.OutOrStdout(), view.Info, "removed "+args[0], out)
}

func doUpdate(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	client, done, err := newSerialClient(cmd, "updating")
	if err != nil {
		return err
	}
	out, err := client.Update(ctx)
	done()
	level := view.Info
	if err != nil {
		level = view.Critical
	}
	if alertErr := view.ShowAlert(cmd.OutOrStdout(), level, "brew update", out); alertErr != nil {
		return alertErr
	}
	return err
}
