// Package consumer wraps event handlers with the delivery guarantees of the bus:
// duplicate suppression, bounded retries and dead lettering.
package consumer

import (
	"context"

	"github.com/go-foreman/orderflow/pubsub/message"
)

// Handler applies the effect of a received message. A returned error means the effect wasn't applied.
type Handler func(ctx context.Context, msg *message.ReceivedMessage) error

type Middleware func(next Handler) Handler

// Chain wraps h with middlewares, the first one becomes the outermost
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}

	return h
}
