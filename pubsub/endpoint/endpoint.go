package endpoint

import (
	"context"
	"time"

	"github.com/go-foreman/orderflow/pubsub/message"
)

type Endpoint interface {
	// Name is a unique name of the endpoint
	Name() string
	// Send sends an envelope to specified implementation
	Send(ctx context.Context, env *message.Envelope, options ...DeliveryOption) error
}

type deliveryOptions struct {
	delay *time.Duration
}

func WithDelay(delay time.Duration) DeliveryOption {
	return func(o *deliveryOptions) error {
		o.delay = &delay
		return nil
	}
}

type DeliveryOption func(o *deliveryOptions) error
