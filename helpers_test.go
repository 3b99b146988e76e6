package sysbus

import (
	"context"
	"log/slog"
	"slices"
	"sync"
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
		return slices.Clone(*h.records)
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

type pushRecord struct {
	event   string
	senders []Identity
	args    []any
}

type fakePeer struct {
	id    Identity
	mode  Mode
	err   error
	block chan struct{}

	mu     sync.Mutex
	pushes []pushRecord
}

func newFakePeer(id Identity, mode Mode) *fakePeer {
	return &fakePeer{id: id, mode: mode}
}

func (p *fakePeer) ID() Identity { return p.id }
func (p *fakePeer) Mode() Mode   { return p.mode }

func (p *fakePeer) Push(ctx context.Context, event string, senders []Identity, args ...any) error {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	p.pushes = append(p.pushes, pushRecord{event: event, senders: senders, args: args})
	p.mu.Unlock()
	return p.err
}

func (p *fakePeer) received() []pushRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.pushes)
}

// valuePeer has a value receiver and a slice field, so it can't be hashed.
type valuePeer struct {
	tags []string
}

func (valuePeer) ID() Identity { return "value" }
func (valuePeer) Mode() Mode   { return ModeRemote }
func (valuePeer) Push(context.Context, string, []Identity, ...any) error {
	return nil
}

type payloadRecorder struct {
	mu   sync.Mutex
	args [][]any
}

func (r *payloadRecorder) handle(_ context.Context, args ...any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.args = append(r.args, args)
	return nil
}

func (r *payloadRecorder) received() [][]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.args)
}
