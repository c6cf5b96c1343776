package message

import (
	"time"

	"github.com/google/uuid"
)

const DefaultVersion = "1"

// Envelope is the wire shape of every event and command: eventId, eventType, version, correlationId, payload.
type Envelope struct {
	EventID       string      `json:"eventId"`
	EventType     string      `json:"eventType"`
	Version       string      `json:"version"`
	CorrelationID string      `json:"correlationId"`
	Payload       interface{} `json:"payload"`
	Headers       Headers     `json:"headers,omitempty"`
	OccurredAt    time.Time   `json:"occurredAt"`
}

// NewEnvelope creates an envelope with a fresh event id. correlationID is usually an order id.
func NewEnvelope(eventType, correlationID string, payload interface{}, passedOptions ...EnvelopeOption) *Envelope {
	opts := &opts{}

	for _, passedOpt := range passedOptions {
		if passedOpt != nil {
			passedOpt(opts)
		}
	}

	env := &Envelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Version:       DefaultVersion,
		CorrelationID: correlationID,
		Payload:       payload,
		Headers:       make(Headers),
		OccurredAt:    time.Now().UTC(),
	}

	if opts.eventID != "" {
		env.EventID = opts.eventID
	}

	if opts.version != "" {
		env.Version = opts.version
	}

	if opts.headers != nil {
		env.Headers = opts.headers
	}

	if !opts.occurredAt.IsZero() {
		env.OccurredAt = opts.occurredAt
	}

	return env
}

type EnvelopeOption func(attr *opts)

type opts struct {
	eventID    string
	version    string
	headers    Headers
	occurredAt time.Time
}

// WithEventID sets a producer assigned event id instead of a random one
func WithEventID(eventID string) EnvelopeOption {
	return func(attr *opts) {
		attr.eventID = eventID
	}
}

func WithVersion(version string) EnvelopeOption {
	return func(attr *opts) {
		attr.version = version
	}
}

func WithHeaders(headers Headers) EnvelopeOption {
	return func(attr *opts) {
		attr.headers = headers
	}
}

func WithOccurredAt(occurredAt time.Time) EnvelopeOption {
	return func(attr *opts) {
		attr.occurredAt = occurredAt
	}
}
