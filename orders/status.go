package orders

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/log"
	"github.com/go-foreman/orderflow/pubsub/endpoint"
	"github.com/go-foreman/orderflow/pubsub/message"
	"github.com/go-foreman/orderflow/saga"
)

// StatusUpdater follows progress of placement sagas and moves the order through its statuses.
// Every change is published as order.status_changed.
type StatusUpdater struct {
	store     WriteStore
	publisher endpoint.Publisher
	logger    log.Logger
	now       func() time.Time
}

func NewStatusUpdater(store WriteStore, publisher endpoint.Publisher, logger log.Logger) *StatusUpdater {
	return &StatusUpdater{store: store, publisher: publisher, logger: logger, now: time.Now}
}

func (u *StatusUpdater) SagaUpdated(ctx context.Context, inst *saga.Instance, previous saga.Status) error {
	if inst.Type != PlacementSagaType {
		return nil
	}

	target, reason, ok := orderStatusOf(inst)
	if !ok {
		return nil
	}

	_, err := ChangeStatus(ctx, u.store, u.publisher, inst.CorrelationKey, target, reason, u.now())

	return err
}

func orderStatusOf(inst *saga.Instance) (Status, string, bool) {
	switch inst.Status {
	case saga.StatusCompleted:
		return StatusConfirmed, "", true
	case saga.StatusCompensated, saga.StatusFailed:
		return StatusCancelled, compensationReason(inst), true
	case saga.StatusInProgress:
		if step, exists := inst.Step(StepChargePayment); exists && step.Status == saga.StepSucceeded {
			return StatusPaid, "", true
		}

		if step, exists := inst.Step(StepReserveInventory); exists && step.Status == saga.StepSucceeded {
			return StatusInventoryReserved, "", true
		}
	}

	return "", "", false
}

func compensationReason(inst *saga.Instance) string {
	if inst.FailureReason != "" {
		return inst.FailureReason
	}

	for i := len(inst.History) - 1; i >= 0; i-- {
		if inst.History[i].To == saga.StatusCompensating {
			return inst.History[i].Reason
		}
	}

	return ""
}

// ChangeStatus moves order to status and publishes order.status_changed. A final status is never left,
// false is returned when nothing has changed.
func ChangeStatus(ctx context.Context, store WriteStore, publisher endpoint.Publisher, orderID string, to Status, reason string, at time.Time) (bool, error) {
	order, err := store.Get(ctx, orderID)
	if err != nil {
		return false, errors.Wrapf(err, "loading order %s", orderID)
	}

	if order.Status == to || order.Status.Final() {
		return false, nil
	}

	if err := store.UpdateStatus(ctx, orderID, to, at); err != nil {
		return false, err
	}

	env := message.NewEnvelope(
		OrderStatusChangedType,
		orderID,
		&OrderStatusChangedEvent{OrderID: orderID, From: order.Status, To: to, Reason: reason},
		message.WithEventID(orderID+":"+to.String()),
	)

	if err := publisher.Publish(ctx, env); err != nil {
		return true, errors.Wrapf(err, "publishing status change of order %s to %s", orderID, to)
	}

	return true, nil
}
