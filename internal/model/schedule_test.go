package model_test

import (
	"testing"
	"time"

	"github.com/CZERTAINLY/Brewer/internal/model"
	"github.com/stretchr/testify/require"
)

func TestParseISODuration(t *testing.T) {
	t.Parallel()
	var testCases = []struct {
		given string
		then  time.Duration
	}{
		{"P1D", 24 * time.Hour},
		{"PT6H", 6 * time.Hour},
		{"PT10M", 10 * time.Minute},
		{"PT0.5S", 500 * time.Millisecond},
		{"PT1,25S", 1250 * time.Millisecond},
		{"P1DT1H30M", 25*time.Hour + 30*time.Minute},
	}
	for _, tc := range testCases {
		t.Run(tc.given, func(t *testing.T) {
			d, err := model.ParseISODuration(tc.given)
			require.NoError(t, err)
			require.Equal(t, tc.then, d)
		})
	}

	for _, bad := range []string{"", "P", "PT", "P1DT", "P1Y", "P2M", "PT1.5H", "1H", "PT-1S"} {
		t.Run("invalid "+bad, func(t *testing.T) {
			_, err := model.ParseISODuration(bad)
			require.ErrorIs(t, err, model.ErrISOFormat)
		})
	}
}

func TestParseCron(t *testing.T) {
	t.Parallel()
	for _, expr := range []string{"@daily", "@every 1h", "0 3 * * *", " */5 * * * * "} {
		_, err := model.ParseCron(expr)
		require.NoError(t, err, expr)
	}
	for _, expr := range []string{"", "61 * * * *", "0 0 3 * * *", "@fortnightly"} {
		_, err := model.ParseCron(expr)
		require.Error(t, err, expr)
	}
}

func TestSchedule(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	next, err := model.Schedule{Cron: "0 3 * * *"}.Next(now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC), next)

	next, err = model.Schedule{Duration: "PT6H"}.Next(now)
	require.NoError(t, err)
	require.Equal(t, now.Add(6*time.Hour), next)

	require.ErrorIs(t, model.Schedule{}.Validate(), model.ErrEmptySchedule)
	require.Error(t, model.Schedule{Cron: "@daily", Duration: "PT1H"}.Validate())
	require.Error(t, model.Schedule{Duration: "PT0S"}.Validate())
	require.NoError(t, model.Schedule{Duration: "P1D"}.Validate())
}

func TestResult_Check(t *testing.T) {
	t.Parallel()
	ok := model.Result{Path: "/bin/true", Reason: "exit"}
	require.NoError(t, ok.Check())

	failed := model.Result{Path: "brew", Args: []string{"info", "nope"}, Reason: "exit", Status: 1, Stderr: "Error: No available formula\n"}
	err := failed.Check()
	require.ErrorIs(t, err, model.ErrCommandFailed)
	require.Contains(t, err.Error(), "No available formula")

	killed := model.Result{Path: "brew", Reason: "uncaught_signal", Status: 15}
	require.ErrorIs(t, killed.Check(), model.ErrCommandFailed)

	require.Equal(t, "brew info nope", model.Command{Path: "brew", Args: []string{"info", "nope"}}.String())
	require.Equal(t, "a\nb\n", model.Result{Stdout: "a\n", Stderr: "b\n"}.Combined())
}
