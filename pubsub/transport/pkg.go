package transport

import (
	"fmt"
	"time"
)

// Origin locates a delivered package in the transport: topic, partition, offset and key.
// Transports without partitions report partition 0 and a delivery sequence as the offset.
type Origin struct {
	Topic     string
	Partition int
	Offset    int64
	Key       string
}

func (o Origin) String() string {
	return fmt.Sprintf("%s[%d]@%d key=%s", o.Topic, o.Partition, o.Offset, o.Key)
}

//go:generate mockgen --build_flags=--mod=mod -destination ../../testing/mocks/pubsub/transport/pkg.go -package transport . IncomingPkg

type IncomingPkg interface {
	UID() string
	Origin() Origin
	Payload() []byte
	Headers() map[string]interface{}
	Ack(options ...AcknowledgmentOption) error
	Nack(options ...AcknowledgmentOption) error
	ReceivedAt() time.Time
}

type OutboundPkg interface {
	Payload() []byte
	ContentType() string
	Headers() map[string]interface{}
	Destination() DeliveryDestination
}

func NewOutboundPkg(payload []byte, contentType string, destination DeliveryDestination, headers map[string]interface{}) OutboundPkg {
	if headers == nil {
		headers = make(map[string]interface{})
	}

	return &outboundPkg{payload: payload, contentType: contentType, destination: destination, headers: headers}
}

type outboundPkg struct {
	payload     []byte
	contentType string
	headers     map[string]interface{}
	destination DeliveryDestination
}

func (o outboundPkg) Payload() []byte {
	return o.payload
}

func (o outboundPkg) ContentType() string {
	return o.contentType
}

func (o outboundPkg) Headers() map[string]interface{} {
	return o.headers
}

func (o outboundPkg) Destination() DeliveryDestination {
	return o.destination
}

// DeliveryDestination is a topic and a key. Packages with the same key land in the same partition.
type DeliveryDestination struct {
	DestinationTopic string
	Key              string
}

type AcknowledgmentOption func(options map[string]interface{})

// WithRequeue asks the transport to redeliver a nacked package
func WithRequeue() AcknowledgmentOption {
	return func(options map[string]interface{}) {
		options["requeue"] = true
	}
}

// WithMultiple acks or nacks all the packages delivered before this one. Not every transport supports it.
func WithMultiple() AcknowledgmentOption {
	return func(options map[string]interface{}) {
		options["multiple"] = true
	}
}

type AckOpts struct {
	Requeue  bool
	Multiple bool
}

// CollectAckOpts applies passed options
func CollectAckOpts(passedOpts ...AcknowledgmentOption) AckOpts {
	optsMap := map[string]interface{}{}
	for _, opt := range passedOpts {
		opt(optsMap)
	}

	opts := AckOpts{}

	if requeueVal, exists := optsMap["requeue"]; exists {
		if requeue, isBool := requeueVal.(bool); isBool {
			opts.Requeue = requeue
		}
	}

	if multipleVal, exists := optsMap["multiple"]; exists {
		if multiple, isBool := multipleVal.(bool); isBool {
			opts.Multiple = multiple
		}
	}

	return opts
}
