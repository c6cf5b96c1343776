package message

import (
	"time"

	"github.com/go-foreman/orderflow/pubsub/transport"
)

// ReceivedMessage is a decoded envelope along with the transport coordinates it was delivered from
type ReceivedMessage struct {
	Envelope   *Envelope
	Origin     transport.Origin
	ReceivedAt time.Time
	// Raw holds the bytes exactly as they were delivered
	Raw []byte
}

// NewReceivedMessage is mostly used by the processor and in tests
func NewReceivedMessage(env *Envelope, origin transport.Origin, raw []byte) *ReceivedMessage {
	return &ReceivedMessage{Envelope: env, Origin: origin, ReceivedAt: time.Now(), Raw: raw}
}

// DeadLetter carries a message that exhausted its delivery attempts
type DeadLetter struct {
	Envelope          *Envelope
	Raw               []byte
	OriginalTopic     string
	OriginalPartition int
	OriginalOffset    int64
	OriginalKey       string
	FailureReason     string
	Attempts          int
	FailedAt          time.Time
}

// NewDeadLetter copies origin of msg into a DeadLetter
func NewDeadLetter(msg *ReceivedMessage, reason string, attempts int) DeadLetter {
	return DeadLetter{
		Envelope:          msg.Envelope,
		Raw:               msg.Raw,
		OriginalTopic:     msg.Origin.Topic,
		OriginalPartition: msg.Origin.Partition,
		OriginalOffset:    msg.Origin.Offset,
		OriginalKey:       msg.Origin.Key,
		FailureReason:     reason,
		Attempts:          attempts,
		FailedAt:          time.Now().UTC(),
	}
}
