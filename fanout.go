package sysbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// PushError reports a push that failed for one peer.
type PushError struct {
	Peer Identity
	Err  error
}

func (e *PushError) Error() string {
	return fmt.Sprintf("push to peer %s: %v", e.Peer, e.Err)
}

func (e *PushError) Unwrap() error {
	return e.Err
}

// Future tracks a single asynchronous peer push.
type Future interface {
	Peer() Identity
	// Done is closed once the push returned.
	Done() <-chan struct{}
	// Get blocks until the push returned and yields its error, wrapped in a
	// *PushError.
	Get() error
}

type pushFuture struct {
	peer Identity
	done chan struct{}
	err  error
	once sync.Once
}

func newPushFuture(peer Identity) *pushFuture {
	return &pushFuture{
		peer: peer,
		done: make(chan struct{}),
	}
}

func (f *pushFuture) Peer() Identity {
	return f.peer
}

func (f *pushFuture) Done() <-chan struct{} {
	return f.done
}

func (f *pushFuture) Get() error {
	<-f.done
	return f.err
}

func (f *pushFuture) complete(err error) {
	f.once.Do(func() {
		if err != nil {
			f.err = &PushError{Peer: f.peer, Err: err}
		}
		close(f.done)
	})
}

// run executes the push and completes the future, turning a panic into an error.
func (f *pushFuture) run(ctx context.Context, peer Peer, event string, senders []Identity, args []any) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("peer panicked: %v", r)
		}
		f.complete(err)
	}()
	err = peer.Push(ctx, event, senders, args...)
}

// Fanout collects the pushes started by one Broadcast. The bus never waits on
// it; callers that care about delivery to peers can.
type Fanout struct {
	futures  []*pushFuture
	doneOnce sync.Once
	done     chan struct{}
}

// Len returns the number of peers a push was started for.
func (f *Fanout) Len() int {
	return len(f.futures)
}

// Futures returns one future per started push.
func (f *Fanout) Futures() []Future {
	out := make([]Future, len(f.futures))
	for i, fut := range f.futures {
		out[i] = fut
	}
	return out
}

// Peers lists the identities a push was started for.
func (f *Fanout) Peers() []Identity {
	out := make([]Identity, len(f.futures))
	for i, fut := range f.futures {
		out[i] = fut.peer
	}
	return out
}

// Done is closed once every push returned.
func (f *Fanout) Done() <-chan struct{} {
	f.doneOnce.Do(func() {
		f.done = make(chan struct{})
		go func() {
			for _, fut := range f.futures {
				<-fut.done
			}
			close(f.done)
		}()
	})
	return f.done
}

// Wait blocks until every push returned or ctx is done. The push failures are
// joined into one error.
func (f *Fanout) Wait(ctx context.Context) error {
	select {
	case <-f.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	var err error
	for _, fut := range f.futures {
		err = errors.Join(err, fut.err)
	}
	return err
}
