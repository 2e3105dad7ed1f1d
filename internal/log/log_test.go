package log_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/CZERTAINLY/Brewer/internal/log"
	"github.com/stretchr/testify/require"
)

func TestContextAttrs(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := log.New(&buf, true)

	ctx := log.ContextAttrs(t.Context(), slog.String("cmd", "install"))
	ctx2 := log.ContextAttrs(ctx, slog.Int("pid", 42))
	logger.With("component", "test").DebugContext(ctx2, "hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "hello", rec["msg"])
	require.Equal(t, "install", rec["cmd"])
	require.Equal(t, float64(42), rec["pid"])
	require.Equal(t, "test", rec["component"])

	buf.Reset()
	logger.InfoContext(ctx, "parent")
	rec = nil
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.NotContains(t, rec, "pid")
}

func TestNew_Level(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log.New(&buf, false).Debug("hidden")
	require.Zero(t, buf.Len())
}

func TestOutput(t *testing.T) {
	t.Parallel()
	w, closeFn, err := log.Output("discard")
	require.NoError(t, err)
	require.Equal(t, io.Discard, w)
	require.NoError(t, closeFn())

	w, _, err = log.Output("")
	require.NoError(t, err)
	require.Equal(t, os.Stderr, w)

	path := filepath.Join(t.TempDir(), "brewer.log")
	w, closeFn, err = log.Output(path)
	require.NoError(t, err)
	_, err = io.WriteString(w, "line\n")
	require.NoError(t, err)
	require.NoError(t, closeFn())
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "line\n", string(b))

	_, _, err = log.Output(filepath.Join(t.TempDir(), "missing", "brewer.log"))
	require.Error(t, err)
}
