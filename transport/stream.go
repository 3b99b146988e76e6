package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/casualjim/sysbus"
)

const maxStreamLine = 4 << 20

var _ sysbus.Peer = (*StreamPeer)(nil)

// StreamPeer pushes newline delimited envelopes into a writer, usually the
// stdin of a forked child or the stdout of the child itself.
type StreamPeer struct {
	id       sysbus.Identity
	settings peerSettings

	mu sync.Mutex
	w  io.Writer
}

func NewStreamPeer(id sysbus.Identity, w io.Writer, options ...PeerOption) *StreamPeer {
	return &StreamPeer{
		id:       id,
		w:        w,
		settings: applyPeerOptions(sysbus.ModeForked, options),
	}
}

func (p *StreamPeer) ID() sysbus.Identity {
	return p.id
}

func (p *StreamPeer) Mode() sysbus.Mode {
	return p.settings.mode
}

// Push writes one envelope line. Writes are serialized; a push whose context
// is done before it gets the writer is dropped.
func (p *StreamPeer) Push(ctx context.Context, event string, senders []sysbus.Identity, args ...any) error {
	data, err := ToJSON(NewEnvelope(event, senders, args...))
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	data = append(data, '\n')

	ctx, cancel := p.settings.pushContext(ctx)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := p.w.Write(data); err != nil {
		return fmt.Errorf("failed to write envelope for %s: %w", p.id, err)
	}
	return nil
}

// ServeStream relays every envelope line read from r until r is exhausted or
// ctx is done. Lines that aren't envelopes are skipped, so a child may share
// the stream with other output. Closing r is the only way to interrupt a
// blocked read.
func ServeStream(ctx context.Context, r io.Reader, relay *Relay) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !IsEnvelope(line) {
			relay.log.Debug("skipping non envelope line", "line", string(line))
			continue
		}
		if err := relay.HandleMessage(ctx, line); err != nil {
			relay.reportError("failed to relay stream message", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read stream: %w", err)
	}
	return nil
}
