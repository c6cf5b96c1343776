package orders_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-foreman/orderflow"
	"github.com/go-foreman/orderflow/consumer"
	"github.com/go-foreman/orderflow/mutex"
	"github.com/go-foreman/orderflow/orders"
	"github.com/go-foreman/orderflow/pubsub/message"
	"github.com/go-foreman/orderflow/pubsub/transport/memory"
	"github.com/go-foreman/orderflow/readmodel"
	"github.com/go-foreman/orderflow/runtime/scheme"
	"github.com/go-foreman/orderflow/saga"
	"github.com/go-foreman/orderflow/saga/component"
	"github.com/go-foreman/orderflow/saga/contracts"
	testLog "github.com/go-foreman/orderflow/testing/log"
)

type placement struct {
	bus          *orderflow.MessageBus
	transport    *memory.Transport
	orchestrator saga.Orchestrator
	store        orders.WriteStore
	service      *orders.Service
	reads        readmodel.Store
	releases     int32
	refunds      int32
	chargeFails  string
}

func newPlacement(t *testing.T, chargeFails string) *placement {
	ctx := context.Background()
	logger := testLog.NewNilLogger()

	tr := memory.NewTransport()
	require.NoError(t, tr.Connect(ctx))

	registry := scheme.NewKnownTypesRegistry()
	orders.RegisterTypes(registry)

	mBus, err := orderflow.NewMessageBus(logger, tr,
		orderflow.WithSchemeRegistry(registry),
		orderflow.WithDeadLetterer(consumer.NewMemoryDeadLetters()),
	)
	require.NoError(t, err)

	for _, routes := range []map[string]string{orders.CommandTopics, orders.EventTopics, orders.ReplyTopics} {
		for eventType, topic := range routes {
			mBus.RouteToTopic(topic, eventType)
		}
	}
	mBus.RouteToTopic(orders.OrdersTopic, contracts.SagaCompletedType, contracts.SagaCompensatedType, contracts.SagaFailedType)

	p := &placement{bus: mBus, transport: tr, store: orders.NewMemoryStore(), chargeFails: chargeFails}
	p.service = orders.NewService(p.store, mBus.Publisher(), logger)

	definitions, err := saga.NewDefinitions(orders.PlacementDefinition(time.Minute))
	require.NoError(t, err)

	p.orchestrator = saga.NewOrchestrator(
		saga.NewMemoryStore(),
		definitions,
		saga.NewPublisherDispatcher(mBus.Publisher(), time.Second),
		mutex.NewInProcessMutex(),
		logger,
		saga.WithObservers(orders.NewStatusUpdater(p.store, mBus.Publisher(), logger), contracts.NewLifecyclePublisher(mBus.Publisher())),
	)

	sagaComponent := component.NewSagaComponent(orders.PlacementSagaType, p.orchestrator, orders.Replies(), component.WithStartEvents(orders.OrderCreatedType))
	require.NoError(t, sagaComponent.Init(mBus))

	mBus.Subscribe("orders.confirm", orders.ConfirmOrderCmdType, orders.NewConfirmHandler(p.store, mBus.Publisher(), logger).Handle)

	p.reads = readmodel.NewMemoryStore()
	synchronizer := readmodel.NewSynchronizer(p.store, p.reads, readmodel.NewMemorySyncStatusStore(), mBus.Marshaller(), logger)
	for _, eventType := range readmodel.TriggerEventTypes() {
		mBus.Subscribe("readmodel", eventType, synchronizer.Handler())
	}
	p.subscribeParticipants()

	return p
}

// inventory and payment services answering commands of the saga
func (p *placement) subscribeParticipants() {
	p.bus.Subscribe("inventory-service", orders.ReserveInventoryCmdType, func(ctx context.Context, msg *message.ReceivedMessage) error {
		return p.reply(ctx, msg, orders.InventoryReservedType, &orders.ParticipantSucceededEvent{OrderID: msg.Envelope.CorrelationID, Reference: "res-1"})
	})
	p.bus.Subscribe("inventory-service", orders.ReleaseInventoryCmdType, func(ctx context.Context, msg *message.ReceivedMessage) error {
		atomic.AddInt32(&p.releases, 1)
		return p.reply(ctx, msg, orders.InventoryReleasedType, &orders.ParticipantSucceededEvent{OrderID: msg.Envelope.CorrelationID})
	})
	p.bus.Subscribe("payment-service", orders.ChargePaymentCmdType, func(ctx context.Context, msg *message.ReceivedMessage) error {
		if p.chargeFails != "" {
			return p.reply(ctx, msg, orders.PaymentFailedType, &orders.ParticipantFailedEvent{OrderID: msg.Envelope.CorrelationID, Reason: p.chargeFails})
		}

		return p.reply(ctx, msg, orders.PaymentSucceededType, &orders.ParticipantSucceededEvent{OrderID: msg.Envelope.CorrelationID, Reference: "pay-1"})
	})
	p.bus.Subscribe("payment-service", orders.RefundPaymentCmdType, func(ctx context.Context, msg *message.ReceivedMessage) error {
		atomic.AddInt32(&p.refunds, 1)
		return p.reply(ctx, msg, orders.PaymentRefundedType, &orders.ParticipantSucceededEvent{OrderID: msg.Envelope.CorrelationID})
	})
}

func (p *placement) reply(ctx context.Context, cmd *message.ReceivedMessage, eventType string, payload interface{}) error {
	env := message.NewEnvelope(eventType, cmd.Envelope.CorrelationID, payload, message.WithEventID(cmd.Envelope.EventID+":reply"))
	env.Headers.SetSagaID(cmd.Envelope.Headers.SagaID())
	env.Headers.SetStepName(cmd.Envelope.Headers.StepName())

	return p.bus.Publisher().Publish(ctx, env)
}

func (p *placement) run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		_ = p.bus.Run(ctx, orders.OrdersTopic, orders.InventoryTopic, orders.PaymentsTopic, orders.InventoryEventsTopic, orders.PaymentsEventsTopic)
	}()

	t.Cleanup(func() {
		cancel()
		<-stopped
	})
}

func (p *placement) waitForSaga(t *testing.T, orderID string, status saga.Status) *saga.Instance {
	var inst *saga.Instance

	require.Eventually(t, func() bool {
		found, err := p.orchestrator.FindByCorrelationKey(context.Background(), orders.PlacementSagaType, orderID)
		if err != nil {
			return false
		}

		inst = found

		return found.Status == status
	}, time.Second*5, time.Millisecond*10)

	return inst
}

func (p *placement) waitForOrder(t *testing.T, orderID string, status orders.Status) {
	require.Eventually(t, func() bool {
		order, err := p.store.Get(context.Background(), orderID)
		return err == nil && order.Status == status
	}, time.Second*5, time.Millisecond*10)
}

func (p *placement) waitForReadModel(t *testing.T, orderID string, status orders.Status) {
	require.Eventually(t, func() bool {
		read, err := p.reads.Get(context.Background(), orderID)
		return err == nil && read.Status == status.String()
	}, time.Second*5, time.Millisecond*10)
}

func historyOf(inst *saga.Instance) []saga.Status {
	var statuses []saga.Status
	for _, tr := range inst.History {
		statuses = append(statuses, tr.To)
	}

	return statuses
}

func TestOrderPlacement(t *testing.T) {
	items := []orders.Item{{SKU: "sku-1", Name: "Keyboard", Quantity: 1, UnitPrice: 4500}}

	t.Run("declined card releases inventory once", func(t *testing.T) {
		p := newPlacement(t, "card declined")
		p.run(t)

		order, err := p.service.PlaceOrder(context.Background(), "c-1", items)
		require.NoError(t, err)

		inst := p.waitForSaga(t, order.ID, saga.StatusCompensated)

		assert.Equal(t, []saga.Status{saga.StatusStarted, saga.StatusInProgress, saga.StatusCompensating, saga.StatusCompensated}, historyOf(inst))
		assert.Equal(t, "step ChargePayment failed: card declined", inst.History[2].Reason)

		reserve, _ := inst.Step(orders.StepReserveInventory)
		charge, _ := inst.Step(orders.StepChargePayment)
		confirm, _ := inst.Step(orders.StepConfirmOrder)
		assert.Equal(t, saga.StepCompensated, reserve.Status)
		assert.Equal(t, saga.StepFailed, charge.Status)
		assert.Equal(t, "card declined", charge.FailureReason)
		assert.Equal(t, saga.StepPending, confirm.Status)

		p.waitForOrder(t, order.ID, orders.StatusCancelled)
		p.waitForReadModel(t, order.ID, orders.StatusCancelled)

		assert.EqualValues(t, 1, atomic.LoadInt32(&p.releases))
		assert.EqualValues(t, 0, atomic.LoadInt32(&p.refunds))
	})

	t.Run("all steps succeed", func(t *testing.T) {
		p := newPlacement(t, "")
		p.run(t)

		order, err := p.service.PlaceOrder(context.Background(), "c-1", items)
		require.NoError(t, err)

		inst := p.waitForSaga(t, order.ID, saga.StatusCompleted)
		assert.Equal(t, []saga.Status{saga.StatusStarted, saga.StatusInProgress, saga.StatusCompleted}, historyOf(inst))

		for _, step := range inst.Steps {
			assert.Equal(t, saga.StepSucceeded, step.Status, step.Name)
		}

		p.waitForOrder(t, order.ID, orders.StatusConfirmed)
		p.waitForReadModel(t, order.ID, orders.StatusConfirmed)

		require.Eventually(t, func() bool {
			for _, pkg := range p.transport.Sent(orders.OrdersTopic) {
				env, err := p.bus.Marshaller().Unmarshal(pkg.Payload())
				if err == nil && env.EventType == contracts.SagaCompletedType && env.CorrelationID == order.ID {
					return true
				}
			}

			return false
		}, time.Second*5, time.Millisecond*10)

		assert.EqualValues(t, 0, atomic.LoadInt32(&p.releases))
	})
}
