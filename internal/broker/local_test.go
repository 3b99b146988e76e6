package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedLog struct {
	level slog.Level
	msg   string
	attrs map[string]string
}

type recordingHandler struct {
	mu      *sync.Mutex
	records *[]recordedLog
}

func newRecordingLogger() (*slog.Logger, func() []recordedLog) {
	h := &recordingHandler{mu: &sync.Mutex{}, records: &[]recordedLog{}}
	return slog.New(h), func() []recordedLog {
		h.mu.Lock()
		defer h.mu.Unlock()
		return append([]recordedLog(nil), (*h.records)...)
	}
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	rec := recordedLog{level: r.Level, msg: r.Message, attrs: map[string]string{}}
	r.Attrs(func(a slog.Attr) bool {
		rec.attrs[a.Key] = a.Value.String()
		return true
	})
	h.mu.Lock()
	defer h.mu.Unlock()
	*h.records = append(*h.records, rec)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func collect(into *[]string, mu *sync.Mutex, label string) Handler {
	return func(_ context.Context, args ...any) error {
		mu.Lock()
		defer mu.Unlock()
		*into = append(*into, fmt.Sprintf("%s:%v", label, args))
		return nil
	}
}

func TestLocalBroker(t *testing.T) {
	t.Run("reuses existing topics", func(t *testing.T) {
		b := Local(nil, -1)
		assert.Same(t, b.Topic("x"), b.Topic("x"))
		assert.NotSame(t, b.Topic("x"), b.Topic("y"))
	})

	t.Run("publishing unknown event is a no-op", func(t *testing.T) {
		b := Local(nil, -1)
		assert.NotPanics(t, func() { b.Publish(context.Background(), "nobody", 1) })
		_, ok := b.Lookup("nobody")
		assert.False(t, ok)
	})

	t.Run("delivers in registration order", func(t *testing.T) {
		b := Local(nil, -1)
		var mu sync.Mutex
		var got []string
		for _, label := range []string{"first", "second", "third"} {
			_, err := b.Topic("x").Subscribe(collect(&got, &mu, label))
			require.NoError(t, err)
		}

		b.Publish(context.Background(), "x", 42)
		assert.Equal(t, []string{"first:[42]", "second:[42]", "third:[42]"}, got)
	})

	t.Run("only delivers to the named topic", func(t *testing.T) {
		b := Local(nil, -1)
		var mu sync.Mutex
		var got []string
		_, err := b.Topic("x").Subscribe(collect(&got, &mu, "x"))
		require.NoError(t, err)
		_, err = b.Topic("y").Subscribe(collect(&got, &mu, "y"))
		require.NoError(t, err)

		b.Publish(context.Background(), "y", "a", "b")
		assert.Equal(t, []string{"y:[a b]"}, got)
	})

	t.Run("rejects nil handler", func(t *testing.T) {
		b := Local(nil, -1)
		sub, err := b.Topic("x").Subscribe(nil)
		require.ErrorIs(t, err, ErrNilHandler)
		assert.Nil(t, sub)
	})

	t.Run("lists names with subscribers", func(t *testing.T) {
		b := Local(nil, -1)
		sub, err := b.Topic("x").Subscribe(func(context.Context, ...any) error { return nil })
		require.NoError(t, err)
		_ = b.Topic("empty")
		assert.Equal(t, []string{"x"}, b.Names())

		sub.Unsubscribe()
		assert.Empty(t, b.Names())
	})
}

func TestSubscriptionLifecycle(t *testing.T) {
	t.Run("unsubscribe stops delivery", func(t *testing.T) {
		b := Local(nil, -1)
		var mu sync.Mutex
		var got []string
		sub, err := b.Topic("x").Subscribe(collect(&got, &mu, "a"))
		require.NoError(t, err)
		assert.NotEmpty(t, sub.ID())
		assert.Equal(t, "x", sub.Topic())

		b.Publish(context.Background(), "x", 1)
		sub.Unsubscribe()
		b.Publish(context.Background(), "x", 2)

		assert.Equal(t, []string{"a:[1]"}, got)
		assert.Equal(t, 0, b.Topic("x").Len())
	})

	t.Run("unsubscribe is idempotent", func(t *testing.T) {
		b := Local(nil, -1)
		sub, err := b.Topic("x").Subscribe(func(context.Context, ...any) error { return nil })
		require.NoError(t, err)
		assert.NotPanics(t, func() {
			sub.Unsubscribe()
			sub.Unsubscribe()
		})
	})

	t.Run("once handlers fire a single time", func(t *testing.T) {
		b := Local(nil, -1)
		var mu sync.Mutex
		var got []string
		_, err := b.Topic("x").SubscribeOnce(collect(&got, &mu, "once"))
		require.NoError(t, err)

		b.Publish(context.Background(), "x", 1)
		b.Publish(context.Background(), "x", 2)
		assert.Equal(t, []string{"once:[1]"}, got)
		assert.Equal(t, 0, b.Topic("x").Len())
	})

	t.Run("subscribing during delivery does not affect it", func(t *testing.T) {
		b := Local(nil, -1)
		top := b.Topic("x")
		var mu sync.Mutex
		var got []string
		_, err := top.Subscribe(func(ctx context.Context, args ...any) error {
			_, err := top.Subscribe(collect(&got, &mu, "late"))
			return err
		})
		require.NoError(t, err)

		b.Publish(context.Background(), "x", 1)
		assert.Empty(t, got)
		assert.Equal(t, 2, top.Len())
	})

	t.Run("unsubscribing during delivery keeps the snapshot", func(t *testing.T) {
		b := Local(nil, -1)
		top := b.Topic("x")
		var mu sync.Mutex
		var got []string
		var second Subscription
		_, err := top.Subscribe(func(context.Context, ...any) error {
			second.Unsubscribe()
			return nil
		})
		require.NoError(t, err)
		second, err = top.Subscribe(collect(&got, &mu, "second"))
		require.NoError(t, err)

		b.Publish(context.Background(), "x", 1)
		b.Publish(context.Background(), "x", 2)
		assert.Equal(t, []string{"second:[1]"}, got)
	})
}

func TestHandlerIsolation(t *testing.T) {
	t.Run("failing handler does not stop delivery", func(t *testing.T) {
		logger, records := newRecordingLogger()
		b := Local(logger, -1)
		var mu sync.Mutex
		var got []string
		_, err := b.Topic("x").Subscribe(func(context.Context, ...any) error { return errors.New("boom") })
		require.NoError(t, err)
		_, err = b.Topic("x").Subscribe(collect(&got, &mu, "after"))
		require.NoError(t, err)

		b.Publish(context.Background(), "x", 1)

		assert.Equal(t, []string{"after:[1]"}, got)
		logs := records()
		require.Len(t, logs, 1)
		assert.Equal(t, slog.LevelError, logs[0].level)
		assert.Equal(t, "boom", logs[0].attrs["error"])
		assert.Equal(t, "x", logs[0].attrs["event"])
	})

	t.Run("panicking handler does not stop delivery", func(t *testing.T) {
		logger, records := newRecordingLogger()
		b := Local(logger, -1)
		var mu sync.Mutex
		var got []string
		_, err := b.Topic("x").Subscribe(func(context.Context, ...any) error { panic("kaboom") })
		require.NoError(t, err)
		_, err = b.Topic("x").Subscribe(collect(&got, &mu, "after"))
		require.NoError(t, err)

		assert.NotPanics(t, func() { b.Publish(context.Background(), "x", 1) })
		assert.Equal(t, []string{"after:[1]"}, got)
		logs := records()
		require.Len(t, logs, 1)
		assert.Equal(t, "kaboom", logs[0].attrs["panic"])
	})
}

func TestSubscriberCeiling(t *testing.T) {
	noop := func(context.Context, ...any) error { return nil }

	tests := []struct {
		name      string
		max       int
		subscribe int
		warnings  int
	}{
		{name: "below ceiling", max: 3, subscribe: 3, warnings: 0},
		{name: "above ceiling warns once", max: 3, subscribe: 10, warnings: 1},
		{name: "zero disables warning", max: 0, subscribe: 100, warnings: 0},
		{name: "default ceiling", max: -1, subscribe: DefaultMaxSubscribers + 1, warnings: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, records := newRecordingLogger()
			b := Local(logger, tt.max)
			for i := 0; i < tt.subscribe; i++ {
				_, err := b.Topic("x").Subscribe(noop)
				require.NoError(t, err, "registrations are never rejected")
			}
			assert.Equal(t, tt.subscribe, b.Topic("x").Len())

			var warnings int
			for _, rec := range records() {
				if rec.level == slog.LevelWarn {
					warnings++
				}
			}
			assert.Equal(t, tt.warnings, warnings)
		})
	}
}

func TestConcurrentOperations(t *testing.T) {
	b := Local(nil, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				sub, err := b.Topic("x").Subscribe(func(context.Context, ...any) error { return nil })
				if err == nil {
					sub.Unsubscribe()
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.Publish(ctx, "x", j)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, b.Topic("x").Len())
}

func TestConcurrentFirstSubscribe(t *testing.T) {
	const subscribers = 16
	ctx := context.Background()

	for round := 0; round < 500; round++ {
		b := Local(nil, 0)
		var (
			wg        sync.WaitGroup
			delivered atomic.Int32
		)
		start := make(chan struct{})
		for i := 0; i < subscribers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := b.Topic("fresh").Subscribe(func(context.Context, ...any) error {
					delivered.Add(1)
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		close(start)
		wg.Wait()

		b.Publish(ctx, "fresh")
		require.EqualValues(t, subscribers, delivered.Load(), "round %d", round)
	}
}
