// Package notify implements a publish/subscribe registry which delivers
// asynchronous I/O and process exit events to subscribers.
//
// A Center maps (object, kind) pairs to handlers. Producers (the pipe pumps
// and the task wait loop) Post events for the native object they observe,
// subscribers register with the wrapper they hold and get it back as
// Notification.Object.
//
//	center := notify.New("tasks")
//	sub := center.Subscribe(t, "done", func(n notify.Notification) {
//		fmt.Println(n.Object.(*task.Task).Status())
//	})
//	defer sub.Cancel()
//
// Handlers run on the goroutine which posted the event. Subscriptions can be
// cancelled explicitly, after the first delivery (SubscribeOnce) or together
// with a context (SubscribeContext).
package notify
