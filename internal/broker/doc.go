// Package broker implements the in-process delivery channel of the system bus.
// Handlers are registered against an event name and invoked synchronously, in
// registration order, every time that name is published locally.
//
// Design decisions:
//   - Snapshot delivery: Publish iterates the subscriber list captured when it
//     started, so subscribing or unsubscribing from inside a handler never
//     corrupts an in-flight delivery
//   - Isolation: a handler that returns an error or panics is logged and the
//     remaining handlers still run
//   - Soft ceiling: exceeding the configured subscriber count for one event name
//     logs a single warning per name, registrations are never rejected
//   - Lazy topics: publishing a name nobody subscribed to allocates nothing
//
// Interface hierarchy:
//   - Broker: registry of topics keyed by event name
//     └── Topic: ordered handler list for one event name
//     └── Subscription: handle used to remove a handler
//
// Example usage:
//
//	b := broker.Local(slog.Default(), 50)
//	sub, err := b.Topic("actor-stopped").Subscribe(func(ctx context.Context, args ...any) error {
//	    fmt.Println("stopped", args...)
//	    return nil
//	})
//	if err != nil {
//	    return err
//	}
//	defer sub.Unsubscribe()
//
//	b.Publish(ctx, "actor-stopped", "worker-1")
package broker
