package saga_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-foreman/orderflow/pubsub/endpoint"
	"github.com/go-foreman/orderflow/pubsub/message"
	"github.com/go-foreman/orderflow/saga"
)

type capturingPublisher struct {
	env         *message.Envelope
	hasDeadline bool
	err         error
}

func (p *capturingPublisher) Publish(ctx context.Context, env *message.Envelope, options ...endpoint.DeliveryOption) error {
	p.env = env
	_, p.hasDeadline = ctx.Deadline()

	return p.err
}

func TestPublisherDispatcher(t *testing.T) {
	cmd := saga.Command{
		ID:             saga.CommandID("saga-1", "ReserveInventory", saga.PhaseForward),
		SagaID:         "saga-1",
		SagaType:       "ORDER_PLACEMENT",
		Step:           "ReserveInventory",
		Phase:          saga.PhaseForward,
		Type:           "inventory.reserve",
		CorrelationKey: "o-1",
		Payload:        json.RawMessage(`{"orderId":"o-1"}`),
	}

	t.Run("command becomes an envelope with saga headers", func(t *testing.T) {
		publisher := &capturingPublisher{}

		require.NoError(t, saga.NewPublisherDispatcher(publisher, time.Second).Dispatch(context.Background(), cmd))

		env := publisher.env
		require.NotNil(t, env)
		assert.Equal(t, "saga-1:ReserveInventory:forward", env.EventID)
		assert.Equal(t, "inventory.reserve", env.EventType)
		assert.Equal(t, "o-1", env.CorrelationID)
		assert.Equal(t, cmd.Payload, env.Payload)
		assert.Equal(t, "saga-1", env.Headers.SagaID())
		assert.Equal(t, "ReserveInventory", env.Headers.StepName())
		assert.Equal(t, saga.PhaseForward, env.Headers.Phase())
		assert.True(t, publisher.hasDeadline)
	})

	t.Run("no call timeout", func(t *testing.T) {
		publisher := &capturingPublisher{}

		require.NoError(t, saga.NewPublisherDispatcher(publisher, 0).Dispatch(context.Background(), cmd))
		assert.False(t, publisher.hasDeadline)
	})

	t.Run("publish error", func(t *testing.T) {
		publisher := &capturingPublisher{err: errors.New("no endpoints defined for event type inventory.reserve")}

		err := saga.NewPublisherDispatcher(publisher, time.Second).Dispatch(context.Background(), cmd)
		assert.EqualError(t, err, "dispatching command inventory.reserve of saga saga-1: no endpoints defined for event type inventory.reserve")
	})
}
