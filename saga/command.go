package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/pubsub/endpoint"
	"github.com/go-foreman/orderflow/pubsub/message"
)

const (
	PhaseForward      = "forward"
	PhaseCompensation = "compensation"
)

// Command is an outbound request of a saga step. ID is deterministic, a redispatched command keeps it,
// so participants are able to deduplicate it like any other event.
type Command struct {
	ID             string
	SagaID         string
	SagaType       string
	Step           string
	Phase          string
	Type           string
	CorrelationKey string
	Payload        json.RawMessage
}

func CommandID(sagaID, step, phase string) string {
	return fmt.Sprintf("%s:%s:%s", sagaID, step, phase)
}

//go:generate mockgen --build_flags=--mod=mod -destination ../testing/mocks/saga/dispatcher.go -package saga . CommandDispatcher

type CommandDispatcher interface {
	Dispatch(ctx context.Context, cmd Command) error
}

// NewPublisherDispatcher sends commands as envelopes through publisher. Each dispatch is bounded by callTimeout.
func NewPublisherDispatcher(publisher endpoint.Publisher, callTimeout time.Duration) CommandDispatcher {
	return &publisherDispatcher{publisher: publisher, callTimeout: callTimeout}
}

type publisherDispatcher struct {
	publisher   endpoint.Publisher
	callTimeout time.Duration
}

func (p *publisherDispatcher) Dispatch(ctx context.Context, cmd Command) error {
	env := message.NewEnvelope(cmd.Type, cmd.CorrelationKey, cmd.Payload, message.WithEventID(cmd.ID))
	env.Headers.SetSagaID(cmd.SagaID)
	env.Headers.SetStepName(cmd.Step)
	env.Headers.SetPhase(cmd.Phase)

	if p.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.callTimeout)
		defer cancel()
	}

	if err := p.publisher.Publish(ctx, env); err != nil {
		return errors.Wrapf(err, "dispatching command %s of saga %s", cmd.Type, cmd.SagaID)
	}

	return nil
}
