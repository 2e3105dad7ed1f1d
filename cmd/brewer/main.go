package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/CZERTAINLY/Brewer/internal/log"
	"github.com/CZERTAINLY/Brewer/internal/model"
)

const configName = "brewer.yaml"

var (
	userConfigPath string // /default/config/path/brewer on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config
	closeLog       = func() error { return nil }

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "brewer")
}

func main() {
	// root flags
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is "+configName+" in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initBrewer
	rootCmd.PersistentPostRunE = func(*cobra.Command, []string) error {
		return closeLog()
	}

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(availableCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		var exitErr exitStatusError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		slog.Error("brewer failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "brewer",
	Short:        "Front-end for the brew package manager",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of a brewer",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if configPath != "" {
			fmt.Fprintf(out, "config: %s\n", configPath)
		}
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Fprintln(out, "brewer: version info not available")
			return
		}
		fmt.Fprintf(out, "brewer: %s\n", info.Main.Version)
		fmt.Fprintf(out, "go:     %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Fprintf(out, "commit: %s\n", s.Value)
			case "vcs.time":
				fmt.Fprintf(out, "date:   %s\n", s.Value)
			case "vcs.modified":
				fmt.Fprintf(out, "dirty:  %s\n", s.Value)
			}
		}
	},
}

func initBrewer(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("BREWERCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, configName)
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	if configPath == "" {
		var err error
		config, configPath, err = storeDefaultConfig(cmd.Context())
		if err != nil {
			return err
		}
	} else {
		var err error
		config, err = loadConfig(configPath)
		if err != nil {
			return err
		}
	}

	// --verbose has a precedence over config file
	if flagVerbose {
		config.Service.Verbose = true
	}

	// initialize logging
	w, closeFn, err := log.Output(config.Service.Log)
	if err != nil {
		return err
	}
	closeLog = closeFn
	slog.SetDefault(log.New(w, config.Service.Verbose))

	slog.Debug("brewer", "configPath", configPath)
	slog.Debug("brewer", "config", config)
	return nil
}

func loadConfig(path string) (model.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Config{}, fmt.Errorf("opening config file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	cfg, err := model.LoadConfig(f)
	if err != nil {
		for _, d := range model.CueErrDetails(err) {
			slog.Error("invalid configuration", d.Attr("detail"))
		}
		return model.Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// storeDefaultConfig writes the default configuration into the user config
// directory.
func storeDefaultConfig(ctx context.Context) (model.Config, string, error) {
	cfg := model.DefaultConfig(ctx)
	path := filepath.Join(userConfigPath, configName)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cfg, "", fmt.Errorf("creating directory %s: %w", filepath.Dir(path), err)
	}

	f, err := os.Create(path)
	if err != nil {
		return cfg, "", fmt.Errorf("creating file %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return cfg, "", fmt.Errorf("storing configuration: %w", err)
	}
	if err := enc.Close(); err != nil {
		return cfg, "", fmt.Errorf("storing configuration: %w", err)
	}
	return cfg, path, nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// exitStatusError makes brewer exit with the status of a child process.
type exitStatusError struct {
	code int
}

func (e exitStatusError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}
