package amqp

import (
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/go-foreman/orderflow/pubsub/transport"
)

type inAmqpPkg struct {
	delivery   amqp.Delivery
	receivedAt time.Time
	topic      string
}

func (i inAmqpPkg) UID() string {
	if i.delivery.MessageId != "" {
		return i.delivery.MessageId
	}

	return i.topic + "-" + strconv.FormatUint(i.delivery.DeliveryTag, 10)
}

// Origin of an amqp delivery has no partitions, delivery tag is used as an offset
func (i inAmqpPkg) Origin() transport.Origin {
	topic := i.delivery.Exchange
	if topic == "" {
		topic = i.topic
	}

	return transport.Origin{
		Topic:     topic,
		Partition: 0,
		Offset:    int64(i.delivery.DeliveryTag),
		Key:       i.delivery.RoutingKey,
	}
}

func (i inAmqpPkg) Payload() []byte {
	return i.delivery.Body
}

func (i *inAmqpPkg) Headers() map[string]interface{} {
	if i.delivery.Headers == nil {
		i.delivery.Headers = make(amqp.Table)
	}

	return i.delivery.Headers
}

func (i inAmqpPkg) Ack(options ...transport.AcknowledgmentOption) error {
	ackOpts := transport.CollectAckOpts(options...)

	return i.delivery.Ack(ackOpts.Multiple)
}

func (i inAmqpPkg) Nack(options ...transport.AcknowledgmentOption) error {
	ackOpts := transport.CollectAckOpts(options...)

	return i.delivery.Nack(ackOpts.Multiple, ackOpts.Requeue)
}

func (i inAmqpPkg) ReceivedAt() time.Time {
	return i.receivedAt
}
