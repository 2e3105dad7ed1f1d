package notify_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/CZERTAINLY/Brewer/internal/notify"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type native struct{ id int }

type wrapped struct {
	n *native
}

func (w *wrapped) Native() any { return w.n }

func (w *wrapped) Notifications() map[string]notify.Kind {
	return map[string]notify.Kind{"done": "WrappedDidFinish"}
}

func TestCenter(t *testing.T) {
	t.Parallel()
	center := notify.New("test")
	require.Equal(t, "test", center.Name())

	src := &native{id: 1}
	var got []notify.Notification
	sub := center.Subscribe(src, "ping", func(n notify.Notification) {
		got = append(got, n)
	})
	require.True(t, sub.Active())
	require.Equal(t, notify.Kind("ping"), sub.Kind())
	require.NotEmpty(t, sub.ID())
	require.Equal(t, 1, center.Len())

	t.Run("delivered", func(t *testing.T) {
		center.Post(src, "ping", map[string]any{"k": "v"})
		require.Len(t, got, 1)
		require.Equal(t, notify.Kind("ping"), got[0].Name)
		require.Same(t, src, got[0].Object)
		require.Equal(t, "v", got[0].UserInfo["k"])
	})

	t.Run("other object or kind", func(t *testing.T) {
		center.Post(&native{id: 1}, "ping", nil)
		center.Post(src, "pong", nil)
		require.Len(t, got, 1)
	})

	t.Run("cancel", func(t *testing.T) {
		sub.Cancel()
		sub.Cancel()
		require.False(t, sub.Active())
		require.Zero(t, center.Len())
		center.Post(src, "ping", nil)
		require.Len(t, got, 1)
	})
}

func TestCenter_Wrapper(t *testing.T) {
	t.Parallel()
	center := notify.New("wrapper")
	w := &wrapped{n: &native{id: 2}}

	var got notify.Notification
	center.Subscribe(w, "done", func(n notify.Notification) {
		got = n
	})

	// posted for the native object under the long kind name
	center.Post(w.n, "WrappedDidFinish", map[string]any{"status": 0})
	require.Equal(t, notify.Kind("WrappedDidFinish"), got.Name)
	require.Same(t, w, got.Object)
	require.Equal(t, 0, got.UserInfo["status"])
}

func TestCenter_Once(t *testing.T) {
	t.Parallel()
	center := notify.New("once")
	src := &native{}

	var calls int
	center.SubscribeOnce(src, "ping", func(notify.Notification) {
		calls++
	})
	center.Post(src, "ping", nil)
	center.Post(src, "ping", nil)
	require.Equal(t, 1, calls)
	require.Zero(t, center.Len())
}

func TestCenter_OnceConcurrent(t *testing.T) {
	t.Parallel()
	center := notify.New("once-concurrent")
	src := &native{}

	var mx sync.Mutex
	var calls int
	center.SubscribeOnce(src, "ping", func(notify.Notification) {
		mx.Lock()
		calls++
		mx.Unlock()
	})

	var wg sync.WaitGroup
	for range 16 {
		wg.Go(func() {
			center.Post(src, "ping", nil)
		})
	}
	wg.Wait()
	require.Equal(t, 1, calls)
}

func TestCenter_CancelInsideHandler(t *testing.T) {
	t.Parallel()
	center := notify.New("inside")
	src := &native{}

	var calls int
	var sub *notify.Subscription
	sub = center.Subscribe(src, "ping", func(notify.Notification) {
		calls++
		sub.Cancel()
	})
	center.Post(src, "ping", nil)
	center.Post(src, "ping", nil)
	require.Equal(t, 1, calls)
}

func TestCenter_Order(t *testing.T) {
	t.Parallel()
	center := notify.New("order")
	src := &native{}

	var order []int
	for i := range 5 {
		center.Subscribe(src, "ping", func(notify.Notification) {
			order = append(order, i)
		})
	}
	center.Post(src, "ping", nil)
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestCenter_SubscribeContext(t *testing.T) {
	t.Parallel()
	center := notify.New("context")
	src := &native{}

	ctx, cancel := context.WithCancel(t.Context())
	sub := center.SubscribeContext(ctx, src, "ping", func(notify.Notification) {})
	require.Equal(t, 1, center.Len())

	cancel()
	require.Eventually(t, func() bool {
		return !sub.Active()
	}, time.Second, time.Millisecond)
	require.Zero(t, center.Len())
}

// watchedContext counts registrations of context.AfterFunc which were stopped.
type watchedContext struct {
	context.Context
	done    chan struct{}
	stopped atomic.Int32
}

func (c *watchedContext) Done() <-chan struct{} {
	return c.done
}

func (c *watchedContext) AfterFunc(func()) func() bool {
	return func() bool {
		c.stopped.Add(1)
		return true
	}
}

func TestCenter_SubscribeContextCancel(t *testing.T) {
	t.Parallel()
	center := notify.New("context cancel")
	ctx := &watchedContext{Context: context.Background(), done: make(chan struct{})}

	sub := center.SubscribeContext(ctx, &native{}, "ping", func(notify.Notification) {})
	require.Zero(t, ctx.stopped.Load())

	sub.Cancel()
	require.Equal(t, int32(1), ctx.stopped.Load())
	sub.Cancel()
	require.Equal(t, int32(1), ctx.stopped.Load())
	require.Zero(t, center.Len())
}

func TestDefault(t *testing.T) {
	t.Parallel()
	require.Same(t, notify.Default(), notify.Default())
	require.Equal(t, "default", notify.Default().Name())

	src := &native{id: 42}
	var calls int
	sub := notify.Subscribe(src, "ping", func(notify.Notification) { calls++ })
	t.Cleanup(sub.Cancel)
	notify.Post(src, "ping", nil)
	require.Equal(t, 1, calls)
}
