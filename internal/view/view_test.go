package view_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/CZERTAINLY/Brewer/internal/model"
	"github.com/CZERTAINLY/Brewer/internal/view"
	"github.com/stretchr/testify/require"
)

func TestTable_Packages(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	tbl := view.NewTable(&buf)
	require.False(t, tbl.Colors)

	err := tbl.Packages(&buf, []model.Package{
		{Name: "wget", Version: "1.12"},
		{Name: "git"},
	})
	require.NoError(t, err)
	out := buf.String()
	require.Contains(t, out, "FORMULA")
	require.Contains(t, out, "VERSION")
	require.Contains(t, out, "wget")
	require.Contains(t, out, "1.12")
	require.Contains(t, out, "2 PACKAGES")
	require.Contains(t, out, "-")
}

func TestTable_Truncate(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	tbl := &view.Table{Width: 40}
	err := tbl.Packages(&buf, []model.Package{
		{Name: strings.Repeat("x", 60), Version: "1"},
	})
	require.NoError(t, err)
	require.Contains(t, buf.String(), "…")
	require.NotContains(t, buf.String(), strings.Repeat("x", 60))
}

func TestAlert(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	err := view.ShowAlert(&buf, view.Info, "brew update", "Already up-to-date.\nUpdated 0 taps.\n")
	require.NoError(t, err)
	require.Equal(t, "brew update\n  Already up-to-date.\n  Updated 0 taps.\n", buf.String())

	buf.Reset()
	require.NoError(t, view.Alert{Level: view.Critical, Message: "boom"}.Render(&buf, false))
	require.Equal(t, "error\n  boom\n", buf.String())
}

func TestProgress(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.Nil(t, view.StartProgress(&buf, "installing", false))

	var nilProgress *view.Progress
	nilProgress.Describe("noop")
	nilProgress.Stop()

	p := view.StartProgress(&buf, "installing", true)
	require.NotNil(t, p)
	p.Describe("pouring")
	p.Stop()
	p.Stop()
}
