package transport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/casualjim/sysbus"
	"github.com/redis/go-redis/v9"
)

const redisChannelPrefix = "sysbus:peer:"

// Channel is the Redis pub/sub channel an instance listens on.
func Channel(id sysbus.Identity) string {
	return redisChannelPrefix + id
}

var _ sysbus.Peer = (*RedisPeer)(nil)

// RedisPeer pushes events to a remote instance through Redis pub/sub.
type RedisPeer struct {
	id       sysbus.Identity
	client   redis.UniversalClient
	channel  string
	settings peerSettings
}

func NewRedisPeer(client redis.UniversalClient, id sysbus.Identity, options ...PeerOption) *RedisPeer {
	return &RedisPeer{
		id:       id,
		client:   client,
		channel:  Channel(id),
		settings: applyPeerOptions(sysbus.ModeRemote, options),
	}
}

func (p *RedisPeer) ID() sysbus.Identity {
	return p.id
}

func (p *RedisPeer) Mode() sysbus.Mode {
	return p.settings.mode
}

func (p *RedisPeer) Push(ctx context.Context, event string, senders []sysbus.Identity, args ...any) error {
	data, err := ToJSON(NewEnvelope(event, senders, args...))
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	ctx, cancel := p.settings.pushContext(ctx)
	defer cancel()
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.channel, err)
	}
	return nil
}

// RedisListener relays the envelopes published on one instance channel.
type RedisListener struct {
	pubsub *redis.PubSub
	done   chan struct{}
}

// ListenRedis subscribes to the channel of the relay's bus and waits for the
// subscription to be confirmed before returning.
func ListenRedis(ctx context.Context, client redis.UniversalClient, relay *Relay) (*RedisListener, error) {
	channel := Channel(relay.ID())
	ps := client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	l := &RedisListener{
		pubsub: ps,
		done:   make(chan struct{}),
	}
	go l.run(ctx, relay, channel)
	return l, nil
}

func (l *RedisListener) run(ctx context.Context, relay *Relay, channel string) {
	defer close(l.done)
	messages := l.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if err := relay.HandleMessage(ctx, []byte(msg.Payload)); err != nil {
				relay.reportError("failed to relay redis message", err, slog.String("channel", channel))
			}
		}
	}
}

// Close unsubscribes and waits for the relay loop to exit.
func (l *RedisListener) Close() error {
	err := l.pubsub.Close()
	<-l.done
	return err
}
