package broker

import "context"

// Handler receives the arguments of one local delivery.
type Handler func(ctx context.Context, args ...any) error

type Broker interface {
	Topic(string) Topic
	Publish(context.Context, string, ...any)
	Lookup(string) (Topic, bool)
	Names() []string
}

type Topic interface {
	Name() string
	Publish(context.Context, ...any)
	Subscribe(Handler) (Subscription, error)
	SubscribeOnce(Handler) (Subscription, error)
	Len() int
}

type Subscription interface {
	ID() string
	Topic() string
	Unsubscribe()
}
