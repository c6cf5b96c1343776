package handlers_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-foreman/orderflow/consumer"
	"github.com/go-foreman/orderflow/saga"
	"github.com/go-foreman/orderflow/saga/contracts"
	"github.com/go-foreman/orderflow/saga/handlers"
	testLog "github.com/go-foreman/orderflow/testing/log"
	sagaMock "github.com/go-foreman/orderflow/testing/mocks/saga"
)

type orderCreated struct {
	OrderID string `json:"orderId"`
}

func TestStartHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("starts saga for correlation id", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		orchestrator := sagaMock.NewMockOrchestrator(ctrl)
		orchestrator.EXPECT().
			StartSaga(ctx, "ORDER_PLACEMENT", "order-1", json.RawMessage(`{"orderId":"order-1"}`)).
			Return("saga-1", nil)

		h := handlers.NewStartHandler("ORDER_PLACEMENT", orchestrator, testLog.NewNilLogger())
		require.NoError(t, h.Handle(ctx, received("order.created", "order-1", &orderCreated{OrderID: "order-1"}, "")))
	})

	t.Run("missing correlation id", func(t *testing.T) {
		h := handlers.NewStartHandler("ORDER_PLACEMENT", nil, testLog.NewNilLogger())
		err := h.Handle(ctx, received("order.created", "", &orderCreated{}, ""))
		assert.True(t, consumer.IsNoRetry(err))
	})

	t.Run("start failure is retried", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		orchestrator := sagaMock.NewMockOrchestrator(ctrl)
		orchestrator.EXPECT().StartSaga(ctx, "ORDER_PLACEMENT", "order-1", gomock.Any()).Return("", errors.New("db is down"))

		h := handlers.NewStartHandler("ORDER_PLACEMENT", orchestrator, testLog.NewNilLogger())
		err := h.Handle(ctx, received("order.created", "order-1", &orderCreated{OrderID: "order-1"}, ""))
		assert.EqualError(t, err, "starting saga ORDER_PLACEMENT for order-1: db is down")
		assert.False(t, consumer.IsNoRetry(err))
	})
}

func TestCompensateHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("compensates saga of own type", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		orchestrator := sagaMock.NewMockOrchestrator(ctrl)
		orchestrator.EXPECT().Get(ctx, "saga-1").Return(&saga.Instance{ID: "saga-1", Type: "ORDER_PLACEMENT"}, nil)
		orchestrator.EXPECT().Compensate(ctx, "saga-1", "customer cancelled").Return(nil)

		h := handlers.NewCompensateHandler("ORDER_PLACEMENT", orchestrator, testLog.NewNilLogger())
		msg := received(contracts.CompensateSagaType, "order-1", map[string]interface{}{"sagaId": "saga-1", "reason": "customer cancelled"}, "")
		require.NoError(t, h.Handle(ctx, msg))
	})

	t.Run("saga of another type is skipped", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		orchestrator := sagaMock.NewMockOrchestrator(ctrl)
		orchestrator.EXPECT().Get(ctx, "saga-2").Return(&saga.Instance{ID: "saga-2", Type: "REFUND"}, nil)

		h := handlers.NewCompensateHandler("ORDER_PLACEMENT", orchestrator, testLog.NewNilLogger())
		msg := received(contracts.CompensateSagaType, "", &contracts.CompensateSagaCommand{SagaID: "saga-2"}, "")
		require.NoError(t, h.Handle(ctx, msg))
	})

	t.Run("terminal saga", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		orchestrator := sagaMock.NewMockOrchestrator(ctrl)
		orchestrator.EXPECT().Get(ctx, "saga-1").Return(&saga.Instance{ID: "saga-1", Type: "ORDER_PLACEMENT"}, nil)
		orchestrator.EXPECT().Compensate(ctx, "saga-1", "").Return(errors.Wrap(saga.ErrTerminal, "saga saga-1 is COMPLETED"))

		logger := testLog.NewNilLogger()
		h := handlers.NewCompensateHandler("ORDER_PLACEMENT", orchestrator, logger)
		require.NoError(t, h.Handle(ctx, received(contracts.CompensateSagaType, "", &contracts.CompensateSagaCommand{SagaID: "saga-1"}, "")))
		assert.True(t, logger.Contains("saga saga-1 can't be compensated"))
	})

	t.Run("unknown saga", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		orchestrator := sagaMock.NewMockOrchestrator(ctrl)
		orchestrator.EXPECT().Get(ctx, "saga-404").Return(nil, errors.Wrap(saga.ErrNotFound, "saga saga-404"))

		h := handlers.NewCompensateHandler("ORDER_PLACEMENT", orchestrator, testLog.NewNilLogger())
		err := h.Handle(ctx, received(contracts.CompensateSagaType, "", &contracts.CompensateSagaCommand{SagaID: "saga-404"}, ""))
		assert.True(t, consumer.IsNoRetry(err))
	})

	t.Run("malformed payload", func(t *testing.T) {
		h := handlers.NewCompensateHandler("ORDER_PLACEMENT", nil, testLog.NewNilLogger())
		err := h.Handle(ctx, received(contracts.CompensateSagaType, "", nil, ""))
		assert.True(t, consumer.IsNoRetry(err))
	})
}
