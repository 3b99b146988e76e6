package transport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/casualjim/sysbus"
	"github.com/nats-io/nats.go"
)

const natsSubjectPrefix = "sysbus.peer."

// Subject is the NATS subject an instance listens on.
func Subject(id sysbus.Identity) string {
	return natsSubjectPrefix + id
}

var _ sysbus.Peer = (*NATSPeer)(nil)

// NATSPeer pushes events to a remote instance through NATS.
type NATSPeer struct {
	id       sysbus.Identity
	client   *nats.Conn
	subject  string
	settings peerSettings
}

func NewNATSPeer(client *nats.Conn, id sysbus.Identity, options ...PeerOption) *NATSPeer {
	return &NATSPeer{
		id:       id,
		client:   client,
		subject:  Subject(id),
		settings: applyPeerOptions(sysbus.ModeRemote, options),
	}
}

func (p *NATSPeer) ID() sysbus.Identity {
	return p.id
}

func (p *NATSPeer) Mode() sysbus.Mode {
	return p.settings.mode
}

// Push publishes the envelope and flushes the connection so that a returned
// nil means the server accepted it.
func (p *NATSPeer) Push(ctx context.Context, event string, senders []sysbus.Identity, args ...any) error {
	data, err := ToJSON(NewEnvelope(event, senders, args...))
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	if err := p.client.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.subject, err)
	}

	ctx, cancel := p.settings.pushContext(ctx)
	defer cancel()
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return p.client.FlushWithContext(ctx)
	}
	return p.client.Flush()
}

// ListenNATS relays the envelopes addressed to the relay's bus. Unsubscribe
// the returned subscription to stop.
func ListenNATS(ctx context.Context, client *nats.Conn, relay *Relay) (*nats.Subscription, error) {
	subject := Subject(relay.ID())
	sub, err := client.Subscribe(subject, func(msg *nats.Msg) {
		if err := relay.HandleMessage(ctx, msg.Data); err != nil {
			relay.reportError("failed to relay nats message", err, slog.String("subject", msg.Subject))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	return sub, nil
}
