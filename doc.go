/*
Package sysbus provides the system bus of an actor-system instance: a hub that
broadcasts named events to subscribers in the local process and to peer
instances running in forked child processes or on remote hosts.

The bus combines two registries:

  - Local subscribers: handlers registered per event name, invoked synchronously
    in registration order on every delivery
  - Peers: forked or remote instances that receive every broadcast whose sender
    chain does not already contain their identity

# Basic Usage

	bus := sysbus.New(
		sysbus.WithID("parent"),
		sysbus.WithLogger(slog.Default()),
	)

	sub, err := bus.Subscribe("actor-crashed", func(ctx context.Context, args ...any) error {
		slog.Info("actor crashed", slog.Any("args", args))
		return nil
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	bus.AddPeer(transport.NewStreamPeer("child-1", childStdin))

	// delivered to "child-1" and to the local handler
	bus.Emit(ctx, "actor-crashed", "worker-7")

# Sender Chains

Every broadcast carries the ordered list of instances that already handled the
occurrence. A peer whose identity is in that list never receives the occurrence
from this bus. The bus reads the chain but never changes it, which makes it a
stateless filter: an instance that relays an event it received must append its
own identity before broadcasting it again. Emit does this for events that
originate locally, and transport.Relay does it for events that arrive from a
peer. Relaying without the append makes two instances bounce the event back and
forth.

# Delivery

Broadcast runs in two phases. First it starts one goroutine per eligible peer
and returns without waiting for them; the returned Fanout exposes one Future per
push for callers that want to observe delivery. Then it invokes the local
handlers. Local delivery always happens exactly once per call, even with no
peers or an empty chain.

Handler errors and panics are logged and never stop delivery to the remaining
handlers. Registering more handlers than the configured ceiling for one event
logs a leak warning but is never refused.

# Concurrency

All methods are safe for concurrent use. The peer set is guarded by a
read-write lock that is released before any push starts, and local deliveries
iterate a snapshot of the handlers taken when the delivery began.
*/
package sysbus
