package transport

import (
	"context"
)

//go:generate mockgen --build_flags=--mod=mod -destination ../../testing/mocks/pubsub/transport/transport.go -package transport . Transport

// Transport is an at-least-once message substrate. Topics map onto exchanges for amqp and onto topics for kafka.
type Transport interface {
	// Consume starts consuming topics. Returned channel is closed when ctx is canceled or consumers stop.
	Consume(ctx context.Context, topics []string, options ...ConsumeOpt) (<-chan IncomingPkg, error)
	// Send delivers outboundPkg to its destination topic. Destination key is used for partitioning.
	Send(ctx context.Context, outboundPkg OutboundPkg, options ...SendOpt) error
	Connect(context.Context) error
	Disconnect(context.Context) error
}

// ConsumeOpt and SendOpt are transport specific. Each implementation type asserts options to its own struct.
type ConsumeOpt func(options interface{}) error
type SendOpt func(options interface{}) error
