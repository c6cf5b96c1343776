package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/go-foreman/orderflow/log"
	"github.com/go-foreman/orderflow/pubsub/transport"
)

type inKafkaPkg struct {
	msg        kafka.Message
	reader     Reader
	receivedAt time.Time
	headers    map[string]interface{}
	logger     log.Logger
}

func (i *inKafkaPkg) UID() string {
	if id, ok := i.Headers()["eventId"].(string); ok && id != "" {
		return id
	}

	return fmt.Sprintf("%s-%d-%d", i.msg.Topic, i.msg.Partition, i.msg.Offset)
}

func (i *inKafkaPkg) Origin() transport.Origin {
	return transport.Origin{
		Topic:     i.msg.Topic,
		Partition: i.msg.Partition,
		Offset:    i.msg.Offset,
		Key:       string(i.msg.Key),
	}
}

func (i *inKafkaPkg) Payload() []byte {
	return i.msg.Value
}

// Headers are decoded as strings, kafka has no typed header values
func (i *inKafkaPkg) Headers() map[string]interface{} {
	if i.headers == nil {
		i.headers = make(map[string]interface{}, len(i.msg.Headers))
		for _, h := range i.msg.Headers {
			i.headers[h.Key] = string(h.Value)
		}
	}

	return i.headers
}

// Ack commits the offset of the message for the consumer group
func (i *inKafkaPkg) Ack(options ...transport.AcknowledgmentOption) error {
	return i.reader.CommitMessages(context.Background(), i.msg)
}

// Nack leaves the offset uncommitted. Kafka redelivers the message after a rebalance or a restart of the group member.
func (i *inKafkaPkg) Nack(options ...transport.AcknowledgmentOption) error {
	i.logger.Logf(log.WarnLevel, "nacked kafka message %s, offset isn't committed", i.Origin())
	return nil
}

func (i *inKafkaPkg) ReceivedAt() time.Time {
	return i.receivedAt
}
