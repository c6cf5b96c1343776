package consumer

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/pubsub/message"
	"github.com/go-foreman/orderflow/pubsub/transport"
)

// Headers of a dead lettered package, the payload is the original message as it was delivered
const (
	OriginalTopicHeader     = "originalTopic"
	OriginalPartitionHeader = "originalPartition"
	OriginalOffsetHeader    = "originalOffset"
	OriginalKeyHeader       = "originalKey"
	FailureReasonHeader     = "failureReason"
	AttemptsHeader          = "attempts"
	FailedAtHeader          = "failedAt"
)

type DeadLetterer interface {
	DeadLetter(ctx context.Context, dl message.DeadLetter) error
}

// NewDeadLetterPublisher sends dead letters to topic of t. If raw bytes are absent the envelope is marshalled.
func NewDeadLetterPublisher(t transport.Transport, topic string, marshaller message.Marshaller) DeadLetterer {
	return &deadLetterPublisher{transport: t, topic: topic, marshaller: marshaller}
}

type deadLetterPublisher struct {
	transport  transport.Transport
	topic      string
	marshaller message.Marshaller
}

func (p *deadLetterPublisher) DeadLetter(ctx context.Context, dl message.DeadLetter) error {
	payload := dl.Raw

	if len(payload) == 0 {
		if dl.Envelope == nil {
			return errors.New("dead letter has neither raw payload nor envelope")
		}

		var err error
		if payload, err = p.marshaller.Marshal(dl.Envelope); err != nil {
			return errors.WithStack(err)
		}
	}

	headers := map[string]interface{}{
		OriginalTopicHeader:     dl.OriginalTopic,
		OriginalPartitionHeader: strconv.Itoa(dl.OriginalPartition),
		OriginalOffsetHeader:    strconv.FormatInt(dl.OriginalOffset, 10),
		OriginalKeyHeader:       dl.OriginalKey,
		FailureReasonHeader:     dl.FailureReason,
		AttemptsHeader:          strconv.Itoa(dl.Attempts),
		FailedAtHeader:          dl.FailedAt.Format(time.RFC3339Nano),
	}

	key := dl.OriginalKey

	if dl.Envelope != nil {
		headers["eventId"] = dl.Envelope.EventID
		headers["eventType"] = dl.Envelope.EventType

		if key == "" {
			key = dl.Envelope.CorrelationID
		}
	}

	pkg := transport.NewOutboundPkg(payload, message.ContentType, transport.DeliveryDestination{DestinationTopic: p.topic, Key: key}, headers)

	if err := p.transport.Send(ctx, pkg); err != nil {
		return errors.Wrapf(err, "publishing dead letter to %s", p.topic)
	}

	return nil
}

// MemoryDeadLetters keeps dead letters in memory
type MemoryDeadLetters struct {
	mutex   sync.Mutex
	letters []message.DeadLetter
}

func NewMemoryDeadLetters() *MemoryDeadLetters {
	return &MemoryDeadLetters{}
}

func (m *MemoryDeadLetters) DeadLetter(ctx context.Context, dl message.DeadLetter) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.letters = append(m.letters, dl)

	return nil
}

func (m *MemoryDeadLetters) Letters() []message.DeadLetter {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	res := make([]message.DeadLetter, len(m.letters))
	copy(res, m.letters)

	return res
}
