package sysbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"

	"github.com/casualjim/sysbus/internal/broker"
	"github.com/casualjim/sysbus/pkg/slogx"
	"github.com/casualjim/sysbus/pkg/uuidx"
	"github.com/fogfish/opts"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	// ErrInvalidPeer is reported in the log when a peer registration is refused.
	ErrInvalidPeer = errors.New("invalid peer")
	// ErrEmptyEvent is returned when subscribing without an event name.
	ErrEmptyEvent = errors.New("event name is required")
	// ErrNilHandler is returned when subscribing without a handler.
	ErrNilHandler = broker.ErrNilHandler
)

type (
	// Handler receives the payload of a local delivery. The sender chain is
	// relay metadata and is never passed to handlers.
	Handler = broker.Handler
	// Subscription identifies a registered Handler.
	Subscription = broker.Subscription
)

// Bus distributes named events to local subscribers and to forked or remote
// peers.
type Bus struct {
	id    Identity
	log   *slog.Logger
	local broker.Broker

	mu    sync.RWMutex
	peers *orderedmap.OrderedMap[Peer, struct{}]
}

// New creates a bus. It panics when an option fails to apply.
func New(options ...Option) *Bus {
	s := settings{maxSubscribers: broker.DefaultMaxSubscribers}
	if err := opts.Apply(&s, options); err != nil {
		panic(err)
	}
	if s.id == "" {
		s.id = uuidx.Prefixed("bus")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	log := s.logger.With(slogx.LoggerName("sysbus"), slog.String("bus", s.id))
	return &Bus{
		id:    s.id,
		log:   log,
		local: broker.Local(log, s.maxSubscribers),
		peers: orderedmap.New[Peer, struct{}](),
	}
}

// ID returns the identity of the local instance.
func (b *Bus) ID() Identity {
	return b.id
}

// Broadcast forwards the event to every peer whose identity is not in senders
// and then delivers it to the local subscribers.
//
// Each push runs in its own goroutine and Broadcast does not wait for it; the
// returned Fanout can be used to observe the pushes. Local delivery happens
// exactly once per call, whatever the sender chain contains.
//
// senders and args are copied for the pushes, so callers may reuse them once
// Broadcast returns. Before re-broadcasting an event received from a peer,
// callers must append their own identity to the chain (see Emit for events
// that originate here). The bus only filters on the chain it
// is given; a relay that skips the append lets the event bounce between
// instances forever.
func (b *Bus) Broadcast(ctx context.Context, event string, senders []Identity, args ...any) *Fanout {
	fan := &Fanout{}
	if peers := b.recipients(senders); len(peers) > 0 {
		chain, payload := slices.Clone(senders), slices.Clone(args)
		for _, peer := range peers {
			fut := newPushFuture(peer.ID())
			fan.futures = append(fan.futures, fut)
			go fut.run(ctx, peer, event, chain, payload)
		}
	}

	b.local.Publish(ctx, event, args...)
	return fan
}

// Emit broadcasts an event originating from this instance, with a sender chain
// holding only the local identity.
func (b *Bus) Emit(ctx context.Context, event string, args ...any) *Fanout {
	return b.Broadcast(ctx, event, []Identity{b.id}, args...)
}

func (b *Bus) recipients(senders []Identity) []Peer {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Peer, 0, b.peers.Len())
	for pair := b.peers.Oldest(); pair != nil; pair = pair.Next() {
		if !slices.Contains(senders, pair.Key.ID()) {
			out = append(out, pair.Key)
		}
	}
	return out
}

// Subscribe registers handler for local deliveries of event.
func (b *Bus) Subscribe(event string, handler Handler) (Subscription, error) {
	if event == "" {
		return nil, ErrEmptyEvent
	}
	return b.local.Topic(event).Subscribe(handler)
}

// SubscribeOnce registers handler for the next local delivery of event only.
func (b *Bus) SubscribeOnce(event string, handler Handler) (Subscription, error) {
	if event == "" {
		return nil, ErrEmptyEvent
	}
	return b.local.Topic(event).SubscribeOnce(handler)
}

// Unsubscribe removes a subscription. Removing it twice is a no-op.
func (b *Bus) Unsubscribe(sub Subscription) {
	if sub == nil {
		return
	}
	sub.Unsubscribe()
}

// SubscriberCount returns the number of local handlers registered for event.
func (b *Bus) SubscriberCount(event string) int {
	top, ok := b.local.Lookup(event)
	if !ok {
		return 0
	}
	return top.Len()
}

// EventNames lists the events with at least one local subscriber.
func (b *Bus) EventNames() []string {
	names := b.local.Names()
	slices.Sort(names)
	return names
}

// AddPeer adds a forked or remote peer to the broadcast set. Any other peer is
// refused and the refusal is logged; AddPeer never fails. Adding a peer twice
// is a no-op.
func (b *Bus) AddPeer(peer Peer) {
	if err := validatePeer(peer); err != nil {
		attrs := []any{slog.String("peer", describePeer(peer)), slogx.Error(err)}
		if peer != nil {
			attrs = append(attrs, slogx.Stringer("mode", peer.Mode()))
		}
		b.log.Error("rejected peer registration", attrs...)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.peers.Set(peer, struct{}{})
}

// RemovePeer takes a peer out of the broadcast set. Removing an absent peer is
// a no-op.
func (b *Bus) RemovePeer(peer Peer) {
	if !hashable(peer) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.peers.Delete(peer)
}

// HasPeer reports whether peer is in the broadcast set.
func (b *Bus) HasPeer(peer Peer) bool {
	if !hashable(peer) {
		return false
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.peers.Get(peer)
	return ok
}

// Peers returns the current broadcast set in registration order.
func (b *Bus) Peers() []Peer {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Peer, 0, b.peers.Len())
	for pair := b.peers.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

func validatePeer(peer Peer) error {
	if peer == nil {
		return fmt.Errorf("%w: peer is nil", ErrInvalidPeer)
	}
	if !hashable(peer) {
		return fmt.Errorf("%w: %T can't be used as a set member", ErrInvalidPeer, peer)
	}
	if mode := peer.Mode(); !mode.Eligible() {
		return fmt.Errorf("%w: mode %s", ErrInvalidPeer, mode)
	}
	return nil
}

func hashable(peer Peer) bool {
	return peer != nil && reflect.TypeOf(peer).Comparable()
}

func describePeer(peer Peer) string {
	if peer == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T(%s)", peer, peer.ID())
}
