package transport

import (
	"context"
	"fmt"

	"github.com/casualjim/sysbus"
)

var _ sysbus.Peer = (*MemoryPeer)(nil)

// MemoryPeer delivers to a relay in the same process. Envelopes still go
// through the JSON codec so handlers see what a real transport would give
// them.
type MemoryPeer struct {
	relay    *Relay
	settings peerSettings
}

func NewMemoryPeer(relay *Relay, options ...PeerOption) *MemoryPeer {
	return &MemoryPeer{
		relay:    relay,
		settings: applyPeerOptions(sysbus.ModeRemote, options),
	}
}

func (p *MemoryPeer) ID() sysbus.Identity {
	return p.relay.ID()
}

func (p *MemoryPeer) Mode() sysbus.Mode {
	return p.settings.mode
}

func (p *MemoryPeer) Push(ctx context.Context, event string, senders []sysbus.Identity, args ...any) error {
	data, err := ToJSON(NewEnvelope(event, senders, args...))
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	return p.relay.HandleMessage(ctx, data)
}
