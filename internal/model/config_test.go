package model_test

import (
	"strings"
	"testing"
	"time"

	"github.com/CZERTAINLY/Brewer/internal/model"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	yml := `
version: 0
brew:
  binary: /opt/homebrew/bin/brew
  timeout: PT10M
  parallelism: 8
  env:
    HOMEBREW_NO_AUTO_UPDATE: "1"
service:
  mode: timer
  verbose: true
  log: stderr
  dir: /var/lib/brewer
  schedule:
    cron: "@daily"
`
	cfg, err := model.LoadConfig(strings.NewReader(yml))
	require.NoError(t, err)
	require.Equal(t, "/opt/homebrew/bin/brew", cfg.Brew.Binary)
	require.Equal(t, 8, cfg.Brew.Parallelism)
	require.Equal(t, []string{"HOMEBREW_NO_AUTO_UPDATE=1"}, cfg.Brew.Environ())
	timeout, err := cfg.Brew.TimeoutDuration()
	require.NoError(t, err)
	require.Equal(t, 10*time.Minute, timeout)

	require.Equal(t, model.ServiceModeTimer, cfg.Service.Mode)
	require.True(t, cfg.Service.Verbose)
	require.Equal(t, model.LogStderr, cfg.Service.Log)
	require.Equal(t, "/var/lib/brewer", cfg.Service.Dir)
	require.NotNil(t, cfg.Service.Schedule)
	require.Equal(t, "@daily", cfg.Service.Schedule.Cron)
}

func TestLoadConfig_DefaultMode(t *testing.T) {
	t.Parallel()
	cfg, err := model.LoadConfig(strings.NewReader("version: 0\nservice: {}\n"))
	require.NoError(t, err)
	require.Equal(t, model.ServiceModeManual, cfg.Service.Mode)
	require.Nil(t, cfg.Service.Schedule)
	require.Nil(t, cfg.Brew.Environ())
}

func TestLoadConfig_Fail(t *testing.T) {
	t.Parallel()
	var testCases = []struct {
		scenario string
		yml      string
	}{
		{"timer without schedule", "version: 0\nservice:\n  mode: timer\n"},
		{"unknown field", "version: 0\nservice:\n  mode: manual\n  colour: red\n"},
		{"bad mode", "version: 0\nservice:\n  mode: daemon\n"},
		{"bad parallelism", "version: 0\nbrew:\n  parallelism: 0\nservice: {}\n"},
		{"bad timeout", "version: 0\nbrew:\n  timeout: P1Y\nservice: {}\n"},
		{"bad cron", "version: 0\nservice:\n  mode: timer\n  schedule:\n    cron: \"61 * * * *\"\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			_, err := model.LoadConfig(strings.NewReader(tc.yml))
			require.Error(t, err)
			details := model.CueErrDetails(err)
			require.NotEmpty(t, details)
			for _, d := range details {
				require.NotEmpty(t, d.Code)
				require.NotEmpty(t, d.Message)
			}
		})
	}
}

func TestCueErrDetails_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := model.LoadConfig(strings.NewReader("version: 0\nservice:\n  colour: red\n"))
	require.Error(t, err)

	var found bool
	for _, d := range model.CueErrDetails(err) {
		if d.Code == "unknown_field" {
			found = true
			require.Equal(t, "service.colour", d.Path)
			require.Equal(t, "Field colour is not allowed", d.Message)
			require.Equal(t, "detail", d.Attr("detail").Key)
		}
	}
	require.True(t, found)
	require.Nil(t, model.CueErrDetails(nil))
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := model.DefaultConfig(t.Context())
	require.NotEmpty(t, cfg.Brew.Binary)
	require.Equal(t, model.DefaultParallelism, cfg.Brew.Parallelism)
	require.Equal(t, model.ServiceModeManual, cfg.Service.Mode)
	_, err := cfg.Brew.TimeoutDuration()
	require.NoError(t, err)
}
