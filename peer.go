package sysbus

import (
	"context"
	"fmt"
	"strings"
)

// Identity names an actor-system instance.
type Identity = string

// Mode is the transport through which a peer is reached.
type Mode uint8

const (
	modeUnknown Mode = iota
	// ModeForked is a peer running in a forked child process.
	ModeForked
	// ModeRemote is a peer running on another host.
	ModeRemote
	// ModeLocal is an in-process actor. It is never a valid peer.
	ModeLocal
)

func (m Mode) String() string {
	switch m {
	case ModeForked:
		return "forked"
	case ModeRemote:
		return "remote"
	case ModeLocal:
		return "local"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// Eligible reports whether a peer in this mode may join the broadcast set.
func (m Mode) Eligible() bool {
	return m == ModeForked || m == ModeRemote
}

// MarshalText encodes a known mode by name.
func (m Mode) MarshalText() ([]byte, error) {
	if m == modeUnknown || m > ModeLocal {
		return nil, fmt.Errorf("invalid mode %d", uint8(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText, case-insensitively.
func (m *Mode) UnmarshalText(text []byte) error {
	mode, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// ParseMode converts the textual form of a mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "forked":
		return ModeForked, nil
	case "remote":
		return ModeRemote, nil
	case "local":
		return ModeLocal, nil
	default:
		return modeUnknown, fmt.Errorf("unknown mode %q", s)
	}
}

// Peer is another actor-system instance the bus forwards events to.
//
// Push delivers one event occurrence across the peer's own transport. The
// sender chain must be passed on unchanged. Push is called from its own
// goroutine and may block; any timeout or retry policy belongs to the peer.
//
// Peers are tracked by interface identity, so implementations should use
// pointer receivers.
type Peer interface {
	ID() Identity
	Mode() Mode
	Push(ctx context.Context, event string, senders []Identity, args ...any) error
}
