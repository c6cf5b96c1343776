package contracts

import (
	"context"

	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/pubsub/endpoint"
	"github.com/go-foreman/orderflow/pubsub/message"
	"github.com/go-foreman/orderflow/saga"
)

var finishedTypes = map[saga.Status]string{
	saga.StatusCompleted:   SagaCompletedType,
	saga.StatusCompensated: SagaCompensatedType,
	saga.StatusFailed:      SagaFailedType,
}

// NewLifecyclePublisher creates saga.Observer which publishes SagaFinishedEvent once a saga reaches a terminal status
func NewLifecyclePublisher(publisher endpoint.Publisher) saga.Observer {
	return &lifecyclePublisher{publisher: publisher}
}

type lifecyclePublisher struct {
	publisher endpoint.Publisher
}

func (l *lifecyclePublisher) SagaUpdated(ctx context.Context, inst *saga.Instance, previous saga.Status) error {
	eventType, finished := finishedTypes[inst.Status]
	if !finished || previous == inst.Status {
		return nil
	}

	ev := &SagaFinishedEvent{
		SagaID:         inst.ID,
		SagaType:       inst.Type,
		CorrelationKey: inst.CorrelationKey,
		Status:         inst.Status.String(),
		Reason:         finishReason(inst),
	}

	env := message.NewEnvelope(eventType, inst.CorrelationKey, ev, message.WithEventID(inst.ID+":"+inst.Status.String()))
	env.Headers.SetSagaID(inst.ID)

	if err := l.publisher.Publish(ctx, env); err != nil {
		return errors.Wrapf(err, "publishing %s of saga %s", eventType, inst.ID)
	}

	return nil
}

func finishReason(inst *saga.Instance) string {
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
