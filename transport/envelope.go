package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/casualjim/sysbus"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is the wire form of one event occurrence.
type Envelope struct {
	Event   string            `json:"event"`
	Senders []sysbus.Identity `json:"senders"`
	Args    []any             `json:"args,omitempty"`
	SentAt  strfmt.DateTime   `json:"sentAt"`
}

func NewEnvelope(event string, senders []sysbus.Identity, args ...any) Envelope {
	if senders == nil {
		senders = []sysbus.Identity{}
	}
	return Envelope{
		Event:   event,
		Senders: senders,
		Args:    args,
		SentAt:  strfmt.DateTime(time.Now().UTC()),
	}
}

func ToJSON(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// IsEnvelope reports whether data looks like an encoded Envelope.
func IsEnvelope(data []byte) bool {
	if !gjson.ValidBytes(data) {
		return false
	}
	event := gjson.GetBytes(data, "event")
	return event.Type == gjson.String && event.Str != ""
}

func FromJSON(data []byte) (Envelope, error) {
	if !IsEnvelope(data) {
		return Envelope{}, fmt.Errorf("%w: expected a JSON object with an event name", ErrMalformedEnvelope)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if env.Senders == nil {
		env.Senders = []sysbus.Identity{}
	}
	return env, nil
}
