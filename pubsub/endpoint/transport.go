package endpoint

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/pubsub/message"
	"github.com/go-foreman/orderflow/pubsub/transport"
)

// TransportEndpoint sends envelopes to a topic of a transport. The correlation id becomes the delivery key,
// so all the events of an order land in one partition and keep their order.
type TransportEndpoint struct {
	transport     transport.Transport
	topic         string
	msgMarshaller message.Marshaller
	name          string
}

func NewTransportEndpoint(name string, t transport.Transport, topic string, msgMarshaller message.Marshaller) Endpoint {
	return &TransportEndpoint{name: name, transport: t, topic: topic, msgMarshaller: msgMarshaller}
}

func (a TransportEndpoint) Name() string {
	return a.name
}

func (a TransportEndpoint) Send(ctx context.Context, env *message.Envelope, opts ...DeliveryOption) error {
	deliveryOpts := &deliveryOptions{}

	for _, opt := range opts {
		if err := opt(deliveryOpts); err != nil {
			return errors.Wrapf(err, "error compiling delivery options for event %s", env.EventID)
		}
	}

	dataToSend, err := a.msgMarshaller.Marshal(env)

	if err != nil {
		return errors.Wrapf(err, "error serializing event %s to json", env.EventID)
	}

	headers := make(map[string]interface{}, len(env.Headers)+2)
	for k, v := range env.Headers {
		headers[k] = v
	}
	headers["eventId"] = env.EventID
	headers["eventType"] = env.EventType

	toSend := transport.NewOutboundPkg(
		dataToSend,
		message.ContentType,
		transport.DeliveryDestination{DestinationTopic: a.topic, Key: env.CorrelationID},
		headers,
	)

	if deliveryOpts.delay != nil {
		select {
		case <-ctx.Done():
			return errors.Errorf("failed to send event %s. Was waiting for the delay and parent ctx closed", env.EventID)
		case <-time.After(*deliveryOpts.delay):
		}
	}

	if err := a.transport.Send(ctx, toSend); err != nil {
		return errors.Wrapf(err, "sending event %s to %s", env.EventID, a.topic)
	}

	return nil
}
