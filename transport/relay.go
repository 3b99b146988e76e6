package transport

import (
	"context"
	"log/slog"
	"slices"

	"github.com/casualjim/sysbus"
	"github.com/casualjim/sysbus/pkg/slogx"
)

// Broadcaster is the part of *sysbus.Bus a Relay needs.
type Broadcaster interface {
	ID() sysbus.Identity
	Broadcast(ctx context.Context, event string, senders []sysbus.Identity, args ...any) *sysbus.Fanout
}

var _ Broadcaster = (*sysbus.Bus)(nil)

// Relay feeds envelopes received from peers into the local bus.
type Relay struct {
	bus Broadcaster
	log *slog.Logger
}

func NewRelay(bus Broadcaster, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		bus: bus,
		log: logger.With(slogx.LoggerName("sysbus.relay"), slog.String("bus", bus.ID())),
	}
}

// ID returns the identity of the bus the relay delivers to.
func (r *Relay) ID() sysbus.Identity {
	return r.bus.ID()
}

// Deliver re-broadcasts env on the local bus with the local identity appended
// to the sender chain. The identity is not appended twice.
func (r *Relay) Deliver(ctx context.Context, env Envelope) *sysbus.Fanout {
	senders := slices.Clone(env.Senders)
	if !slices.Contains(senders, r.bus.ID()) {
		senders = append(senders, r.bus.ID())
	}
	r.log.Debug("relaying event", slog.String("event", env.Event), slogx.Strings("senders", senders))
	return r.bus.Broadcast(ctx, env.Event, senders, env.Args...)
}

// HandleMessage decodes data and delivers it.
func (r *Relay) HandleMessage(ctx context.Context, data []byte) error {
	env, err := FromJSON(data)
	if err != nil {
		return err
	}
	r.Deliver(ctx, env)
	return nil
}

func (r *Relay) reportError(msg string, err error, attrs ...any) {
	r.log.Error(msg, append([]any{slogx.Error(err)}, attrs...)...)
}
