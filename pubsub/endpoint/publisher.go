package endpoint

import (
	"context"

	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/pubsub/message"
)

// Publisher sends an envelope to every endpoint routed for its event type
type Publisher interface {
	Publish(ctx context.Context, env *message.Envelope, options ...DeliveryOption) error
}

func NewPublisher(router Router) Publisher {
	return &publisher{router: router}
}

type publisher struct {
	router Router
}

func (p *publisher) Publish(ctx context.Context, env *message.Envelope, options ...DeliveryOption) error {
	endpoints := p.router.Route(env.EventType)

	if len(endpoints) == 0 {
		return errors.Errorf("no endpoints defined for event type %s", env.EventType)
	}

	for _, e := range endpoints {
		if err := e.Send(ctx, env, options...); err != nil {
			return errors.Wrapf(err, "publishing event %s via endpoint %s", env.EventID, e.Name())
		}
	}

	return nil
}
