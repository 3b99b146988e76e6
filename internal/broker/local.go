package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/casualjim/sysbus/internal/registry"
	"github.com/casualjim/sysbus/pkg/slogx"
	"github.com/casualjim/sysbus/pkg/uuidx"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DefaultMaxSubscribers is the per event subscriber count above which a leak
// warning is logged.
const DefaultMaxSubscribers = 50

var ErrNilHandler = errors.New("handler is required")

var _ Broker = (*localBroker)(nil)

type localBroker struct {
	topics         registry.Registry[*topic]
	log            *slog.Logger
	maxSubscribers int
}

// Local creates an in-process broker. A maxSubscribers of 0 disables the leak
// warning; a negative value selects DefaultMaxSubscribers.
func Local(logger *slog.Logger, maxSubscribers int) Broker {
	if logger == nil {
		logger = slog.Default()
	}
	if maxSubscribers < 0 {
		maxSubscribers = DefaultMaxSubscribers
	}
	return &localBroker{
		topics:         registry.New[*topic](),
		log:            logger.With(slogx.LoggerName("sysbus.broker")),
		maxSubscribers: maxSubscribers,
	}
}

func (b *localBroker) Topic(name string) Topic {
	top, _ := b.topics.GetOrAdd(name, func() *topic {
		t := &topic{
			name:   name,
			broker: b,
			subs:   orderedmap.New[string, *subscription](),
		}
		t.snapshot.Store(&[]*subscription{})
		return t
	})
	return top
}

func (b *localBroker) Lookup(name string) (Topic, bool) {
	top, ok := b.topics.Get(name)
	if !ok {
		return nil, false
	}
	return top, true
}

// Publish delivers args to every handler of the named topic. Unknown names are
// a no-op.
func (b *localBroker) Publish(ctx context.Context, name string, args ...any) {
	top, ok := b.topics.Get(name)
	if !ok {
		return
	}
	top.Publish(ctx, args...)
}

// Names lists the event names that currently have at least one subscriber.
func (b *localBroker) Names() []string {
	var names []string
	b.topics.Range(func(name string, t *topic) bool {
		if t.Len() > 0 {
			names = append(names, name)
		}
		return true
	})
	return names
}

type topic struct {
	name   string
	broker *localBroker

	mu       sync.Mutex
	subs     *orderedmap.OrderedMap[string, *subscription]
	warned   bool
	snapshot atomic.Pointer[[]*subscription]
}

func (t *topic) Name() string {
	return t.name
}

func (t *topic) Len() int {
	return len(*t.snapshot.Load())
}

func (t *topic) Publish(ctx context.Context, args ...any) {
	for _, sub := range *t.snapshot.Load() {
		sub.deliver(ctx, args)
	}
}

func (t *topic) Subscribe(handler Handler) (Subscription, error) {
	return t.subscribe(handler, false)
}

func (t *topic) SubscribeOnce(handler Handler) (Subscription, error) {
	return t.subscribe(handler, true)
}

func (t *topic) subscribe(handler Handler, once bool) (Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}

	sub := &subscription{
		id:      uuidx.NewString(),
		topic:   t,
		handler: handler,
		once:    once,
	}

	t.mu.Lock()
	t.subs.Set(sub.id, sub)
	count := t.subs.Len()
	t.rebuildLocked()
	warn := t.broker.maxSubscribers > 0 && count > t.broker.maxSubscribers && !t.warned
	if warn {
		t.warned = true
	}
	t.mu.Unlock()

	if warn {
		t.broker.log.Warn(
			"possible subscriber leak detected",
			slog.String("event", t.name),
			slog.Int("subscribers", count),
			slog.Int("max", t.broker.maxSubscribers),
		)
	}
	return sub, nil
}

func (t *topic) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, present := t.subs.Delete(id); present {
		t.rebuildLocked()
	}
}

// rebuildLocked publishes a fresh copy of the subscriber list; t.mu must be held.
func (t *topic) rebuildLocked() {
	snap := make([]*subscription, 0, t.subs.Len())
	for pair := t.subs.Oldest(); pair != nil; pair = pair.Next() {
		snap = append(snap, pair.Value)
	}
	t.snapshot.Store(&snap)
}

type subscription struct {
	id        string
	topic     *topic
	handler   Handler
	once      bool
	fired     atomic.Bool
	closeOnce sync.Once
}

func (s *subscription) ID() string {
	return s.id
}

func (s *subscription) Topic() string {
	return s.topic.name
}

func (s *subscription) Unsubscribe() {
	s.closeOnce.Do(func() {
		s.topic.remove(s.id)
	})
}

func (s *subscription) deliver(ctx context.Context, args []any) {
	if s.once {
		if !s.fired.CompareAndSwap(false, true) {
			return
		}
		s.Unsubscribe()
	}

	log := s.topic.broker.log
	defer func() {
		if r := recover(); r != nil {
			log.Error(
				"subscriber panicked",
				slog.String("event", s.topic.name),
				slog.String("subscription", s.id),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	if err := s.handler(ctx, args...); err != nil {
		log.Error(
			"subscriber failed",
			slog.String("event", s.topic.name),
			slog.String("subscription", s.id),
			slogx.Error(err),
		)
	}
}
