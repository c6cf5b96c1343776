package handlers

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/consumer"
	"github.com/go-foreman/orderflow/log"
	"github.com/go-foreman/orderflow/pubsub/message"
	"github.com/go-foreman/orderflow/saga"
	"github.com/go-foreman/orderflow/saga/contracts"
)

// StartHandler starts a saga for a triggering event. Correlation id of the event becomes the correlation key,
// the event payload becomes the saga payload.
type StartHandler struct {
	sagaType     string
	orchestrator saga.Orchestrator
	logger       log.Logger
}

func NewStartHandler(sagaType string, orchestrator saga.Orchestrator, logger log.Logger) *StartHandler {
	return &StartHandler{sagaType: sagaType, orchestrator: orchestrator, logger: logger}
}

func (h *StartHandler) Handle(ctx context.Context, msg *message.ReceivedMessage) error {
	env := msg.Envelope

	if env.CorrelationID == "" {
		return consumer.NoRetry(errors.Errorf("event %s of type %s has no correlation id to start saga %s", env.EventID, env.EventType, h.sagaType))
	}

	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return consumer.NoRetry(errors.Wrapf(err, "encoding payload of event %s", env.EventID))
	}

	sagaID, err := h.orchestrator.StartSaga(ctx, h.sagaType, env.CorrelationID, payload)
	if err != nil {
		return errors.Wrapf(err, "starting saga %s for %s", h.sagaType, env.CorrelationID)
	}

	h.logger.Logf(log.DebugLevel, "event %s of type %s is handled by saga %s", env.EventID, env.EventType, sagaID)

	return nil
}

// CompensateHandler handles contracts.CompensateSagaCommand for sagas of its type
type CompensateHandler struct {
	sagaType     string
	orchestrator saga.Orchestrator
	logger       log.Logger
}

func NewCompensateHandler(sagaType string, orchestrator saga.Orchestrator, logger log.Logger) *CompensateHandler {
	return &CompensateHandler{sagaType: sagaType, orchestrator: orchestrator, logger: logger}
}

func (h *CompensateHandler) Handle(ctx context.Context, msg *message.ReceivedMessage) error {
	cmd := &contracts.CompensateSagaCommand{}
	if err := message.DecodePayload(msg.Envelope.Payload, cmd); err != nil {
		return consumer.NoRetry(errors.Wrapf(err, "decoding %s", msg.Envelope.EventID))
	}

	inst, err := h.orchestrator.Get(ctx, cmd.SagaID)
	if err != nil {
		if errors.Is(err, saga.ErrNotFound) {
			return consumer.NoRetry(err)
		}

		return errors.WithStack(err)
	}

	// sagas of other types are compensated by their own handlers
	if inst.Type != h.sagaType {
		return nil
	}

	err = h.orchestrator.Compensate(ctx, cmd.SagaID, cmd.Reason)
	if errors.Is(err, saga.ErrTerminal) {
		h.logger.Logf(log.WarnLevel, "saga %s can't be compensated. %s", cmd.SagaID, err)
		return nil
	}

	return err
}
