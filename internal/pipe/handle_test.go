package pipe_test

import (
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/CZERTAINLY/Brewer/internal/notify"
	"github.com/CZERTAINLY/Brewer/internal/pipe"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func open(t *testing.T, end pipe.End) (*pipe.Handle, *os.File, *notify.Center) {
	t.Helper()
	center := notify.New(t.Name())
	h, other, err := pipe.Open(end, center)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = h.Close()
		_ = other.Close()
	})
	return h, other, center
}

func TestHandle_ReadAll(t *testing.T) {
	t.Parallel()
	h, w, _ := open(t, pipe.Read)
	require.Equal(t, pipe.Read, h.End())

	go func() {
		_, _ = w.WriteString("hello\n")
		_, _ = w.WriteString("world\n")
		_ = w.Close()
	}()

	text, err := h.ReadAll()
	require.NoError(t, err)
	require.Equal(t, "hello\nworld\n", text)

	t.Run("no async after sync", func(t *testing.T) {
		require.ErrorIs(t, h.Read(func(string) {}), pipe.ErrMixedRead)
		require.ErrorIs(t, h.ReadToEnd(func(string) {}), pipe.ErrMixedRead)
	})
}

func TestHandle_ReadChunkedAndToEnd(t *testing.T) {
	t.Parallel()
	h, w, center := open(t, pipe.Read)

	var mx sync.Mutex
	var chunks []string
	require.NoError(t, h.Read(func(chunk string) {
		mx.Lock()
		chunks = append(chunks, chunk)
		mx.Unlock()
	}))

	full := make(chan string, 1)
	require.NoError(t, h.ReadToEnd(func(text string) {
		full <- text
	}))
	require.Equal(t, 2, center.Len())

	_, err := h.ReadAll()
	require.ErrorIs(t, err, pipe.ErrMixedRead)

	var want strings.Builder
	for i := range 100 {
		line := strings.Repeat("x", i) + "\n"
		want.WriteString(line)
		_, err := w.WriteString(line)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	got := <-full
	<-h.Done()
	require.Equal(t, want.String(), got)

	mx.Lock()
	defer mx.Unlock()
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		require.NotEmpty(t, chunk)
	}
	require.Equal(t, got, strings.Join(chunks, ""))
	require.Zero(t, center.Len(), "subscriptions are dropped at EOF")
}

func TestHandle_ReadToEndEmpty(t *testing.T) {
	t.Parallel()
	h, w, _ := open(t, pipe.Read)

	full := make(chan string, 1)
	require.NoError(t, h.ReadToEnd(func(text string) {
		full <- text
	}))
	require.NoError(t, w.Close())
	require.Equal(t, "", <-full)
	<-h.Done()

	t.Run("after eof", func(t *testing.T) {
		var called bool
		require.NoError(t, h.ReadToEnd(func(text string) {
			called = true
			require.Empty(t, text)
		}))
		require.True(t, called)
	})
}

func TestHandle_Notifications(t *testing.T) {
	t.Parallel()
	h, w, center := open(t, pipe.Read)

	available := make(chan notify.Notification, 8)
	sub := center.Subscribe(h, "data_available", func(n notify.Notification) {
		available <- n
	})
	t.Cleanup(sub.Cancel)

	done := make(chan struct{})
	require.NoError(t, h.ReadToEnd(func(string) { close(done) }))
	_, err := w.WriteString("abc")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	<-done
	n := <-available
	require.Same(t, h, n.Object)
	require.Equal(t, pipe.DataAvailable, n.Name)
	require.Equal(t, 3, n.UserInfo[pipe.LengthItem])
}

func TestHandle_Close(t *testing.T) {
	t.Parallel()
	h, _, center := open(t, pipe.Read)

	require.NoError(t, h.Read(func(string) {
		t.Error("no data expected")
	}))
	require.Equal(t, 1, center.Len())
	require.NoError(t, h.Close())
	<-h.Done()
	require.Zero(t, center.Len())
	require.ErrorIs(t, h.Read(func(string) {}), os.ErrClosed)
}

func TestHandle_Write(t *testing.T) {
	t.Parallel()
	h, r, _ := open(t, pipe.Write)
	require.Equal(t, pipe.Write, h.End())
	require.NotZero(t, h.Fd())

	_, err := h.ReadAll()
	require.ErrorIs(t, err, pipe.ErrWriteEnd)
	require.ErrorIs(t, h.Read(func(string) {}), pipe.ErrWriteEnd)

	n, err := h.WriteString("ping")
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.NoError(t, h.Close())

	rh := pipe.New(r, pipe.Read, nil)
	text, err := rh.ReadAll()
	require.NoError(t, err)
	require.Equal(t, "ping", text)

	_, err = rh.Write([]byte("x"))
	require.ErrorIs(t, err, pipe.ErrReadEnd)
}

func TestHandle_Truncate(t *testing.T) {
	t.Parallel()
	f, err := os.CreateTemp(t.TempDir(), "truncate")
	require.NoError(t, err)
	_, err = f.WriteString("0123456789")
	require.NoError(t, err)

	h := pipe.New(f, pipe.Write, nil)
	require.NoError(t, h.Truncate(4))
	require.NoError(t, h.Close())

	b, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	require.Equal(t, "0123", string(b))
}

func TestEnd_String(t *testing.T) {
	t.Parallel()
	require.Equal(t, "read", pipe.Read.String())
	require.Equal(t, "write", pipe.Write.String())
	require.Equal(t, "end(7)", pipe.End(7).String())
}
