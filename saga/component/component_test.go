package component_test

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-foreman/orderflow"
	"github.com/go-foreman/orderflow/pubsub/message"
	"github.com/go-foreman/orderflow/pubsub/transport"
	"github.com/go-foreman/orderflow/pubsub/transport/memory"
	"github.com/go-foreman/orderflow/saga"
	"github.com/go-foreman/orderflow/saga/component"
	"github.com/go-foreman/orderflow/saga/contracts"
	"github.com/go-foreman/orderflow/saga/handlers"
	testLog "github.com/go-foreman/orderflow/testing/log"
	sagaMock "github.com/go-foreman/orderflow/testing/mocks/saga"
)

func TestSagaComponent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	orchestrator := sagaMock.NewMockOrchestrator(ctrl)

	c := component.NewSagaComponent(
		"ORDER_PLACEMENT",
		orchestrator,
		handlers.ReplyMapping{
			"inventory.reserved": {Step: "ReserveInventory", Phase: saga.PhaseForward, Success: true},
		},
		component.WithStartEvents("order.created"),
	)

	mBus, err := orderflow.NewMessageBus(testLog.NewNilLogger(), memory.NewTransport(), orderflow.WithComponents(c))
	require.NoError(t, err)

	assert.Equal(t, []string{"inventory.reserved", "order.created", contracts.CompensateSagaType}, mBus.Dispatcher().EventTypes())
	assert.True(t, mBus.SchemeRegistry().Known(contracts.SagaCompletedType))
	assert.Equal(t, "saga.ORDER_PLACEMENT", component.ConsumerName("ORDER_PLACEMENT"))

	orchestrator.EXPECT().OnStepReply(gomock.Any(), "saga-1", "ReserveInventory", saga.Outcome{Success: true}).Return(nil).Times(1)

	env := message.NewEnvelope("inventory.reserved", "o-1", nil, message.WithEventID("evt-1"))
	env.Headers.SetSagaID("saga-1")
	msg := message.NewReceivedMessage(env, transport.Origin{Topic: "inventory"}, nil)

	matched := mBus.Dispatcher().Match("inventory.reserved")
	require.Len(t, matched, 1)

	// redelivery of the same reply is skipped by the consumer chain
	require.NoError(t, matched[0](ctx, msg))
	require.NoError(t, matched[0](ctx, msg))
}
