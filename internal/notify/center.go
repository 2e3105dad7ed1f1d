package notify

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Kind identifies an event posted for an object.
type Kind string

// Notification is what a Handler receives. Object is the wrapper the
// subscriber registered with, not the native object the event was posted for.
type Notification struct {
	Name     Kind
	Object   any
	UserInfo map[string]any
}

// Handler is called for every delivered notification.
type Handler func(Notification)

// Notifier is implemented by sources which provide short symbolic names for
// their event kinds, e.g. "done" for a task termination.
type Notifier interface {
	Notifications() map[string]Kind
}

// Wrapper is implemented by sources wrapping a native object. Events are
// posted for the native object and delivered with the wrapper as Object.
type Wrapper interface {
	Native() any
}

type key struct {
	object any
	kind   Kind
}

// Center is a registry of subscriptions. The zero value is not usable, use
// New or Default.
type Center struct {
	name string
	mx   sync.RWMutex
	subs map[key][]*Subscription
}

var defaultCenter = sync.OnceValue(func() *Center {
	return New("default")
})

// Default returns the process wide Center.
func Default() *Center {
	return defaultCenter()
}

// New creates an independent named Center.
func New(name string) *Center {
	return &Center{
		name: name,
		subs: make(map[key][]*Subscription),
	}
}

func (c *Center) Name() string {
	return c.name
}

// Subscribe registers h for event posted on source. The source must be
// comparable (in practice a pointer).
func (c *Center) Subscribe(source any, event string, h Handler) *Subscription {
	return c.subscribe(source, event, h, false)
}

// SubscribeOnce is like Subscribe, but the subscription is cancelled before
// the first delivery, so h is called at most once.
func (c *Center) SubscribeOnce(source any, event string, h Handler) *Subscription {
	return c.subscribe(source, event, h, true)
}

// SubscribeContext is like Subscribe, but the subscription is cancelled once
// ctx is done.
func (c *Center) SubscribeContext(ctx context.Context, source any, event string, h Handler) *Subscription {
	sub := c.subscribe(source, event, h, false)
	stop := context.AfterFunc(ctx, sub.Cancel)
	sub.stop.Store(&stop)
	if !sub.Active() {
		stop()
	}
	return sub
}

func (c *Center) subscribe(source any, event string, h Handler, once bool) *Subscription {
	if h == nil {
		panic("notify: nil handler")
	}
	k := key{object: source, kind: resolve(source, event)}
	if w, ok := source.(Wrapper); ok {
		k.object = w.Native()
	}

	sub := &Subscription{
		id:      uuid.New(),
		center:  c,
		key:     k,
		wrapper: source,
		handler: h,
		once:    once,
	}

	c.mx.Lock()
	c.subs[k] = append(c.subs[k], sub)
	c.mx.Unlock()
	return sub
}

func resolve(source any, event string) Kind {
	if n, ok := source.(Notifier); ok {
		if kind, ok := n.Notifications()[event]; ok {
			return kind
		}
	}
	return Kind(event)
}

// Post delivers a notification to all subscribers of (object, kind). The
// handlers run synchronously on the calling goroutine in subscription order.
func (c *Center) Post(object any, kind Kind, info map[string]any) {
	k := key{object: object, kind: kind}
	c.mx.RLock()
	subs := slices.Clone(c.subs[k])
	c.mx.RUnlock()

	for _, sub := range subs {
		if sub.once {
			if !sub.cancel() {
				continue
			}
		} else if sub.cancelled.Load() {
			continue
		}
		sub.handler(Notification{
			Name:     kind,
			Object:   sub.wrapper,
			UserInfo: info,
		})
	}
}

// Len returns the number of live subscriptions.
func (c *Center) Len() int {
	c.mx.RLock()
	defer c.mx.RUnlock()
	var n int
	for _, subs := range c.subs {
		n += len(subs)
	}
	return n
}

func (c *Center) remove(sub *Subscription) {
	c.mx.Lock()
	defer c.mx.Unlock()
	subs := c.subs[sub.key]
	idx := slices.Index(subs, sub)
	if idx < 0 {
		return
	}
	subs = slices.Delete(subs, idx, idx+1)
	if len(subs) == 0 {
		delete(c.subs, sub.key)
		return
	}
	c.subs[sub.key] = subs
}

// Subscribe registers h on the Default center.
func Subscribe(source any, event string, h Handler) *Subscription {
	return Default().Subscribe(source, event, h)
}

// Post posts on the Default center.
func Post(object any, kind Kind, info map[string]any) {
	Default().Post(object, kind, info)
}

// Subscription is a handle of a registered Handler.
type Subscription struct {
	id        uuid.UUID
	center    *Center
	key       key
	wrapper   any
	handler   Handler
	once      bool
	cancelled atomic.Bool
	stop      atomic.Pointer[func() bool] // of SubscribeContext
}

func (s *Subscription) ID() string {
	return s.id.String()
}

func (s *Subscription) Kind() Kind {
	return s.key.kind
}

// Active reports if the subscription still receives notifications.
func (s *Subscription) Active() bool {
	return !s.cancelled.Load()
}

// Cancel removes the subscription from its center. It is safe to call it
// multiple times or from within the handler.
func (s *Subscription) Cancel() {
	s.cancel()
}

func (s *Subscription) cancel() bool {
	if s == nil || !s.cancelled.CompareAndSwap(false, true) {
		return false
	}
	s.center.remove(s)
	if stop := s.stop.Load(); stop != nil {
		(*stop)()
	}
	return true
}
