package transport

import (
	"context"
	"time"

	"github.com/casualjim/sysbus"
	"github.com/fogfish/opts"
)

type peerSettings struct {
	mode    sysbus.Mode
	timeout time.Duration
}

// PeerOption configures the peers of this package.
type PeerOption = opts.Option[peerSettings]

var (
	// WithMode overrides the mode a peer reports to the bus.
	WithMode = opts.ForName[peerSettings, sysbus.Mode]("mode")

	// WithPushTimeout bounds a single push. Zero leaves the push bounded only
	// by the context passed to Broadcast.
	WithPushTimeout = opts.ForName[peerSettings, time.Duration]("timeout")
)

func applyPeerOptions(mode sysbus.Mode, options []PeerOption) peerSettings {
	s := peerSettings{mode: mode}
	if err := opts.Apply(&s, options); err != nil {
		panic(err)
	}
	return s
}

func (s peerSettings) pushContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}
