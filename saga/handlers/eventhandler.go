package handlers

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/consumer"
	"github.com/go-foreman/orderflow/log"
	"github.com/go-foreman/orderflow/pubsub/message"
	"github.com/go-foreman/orderflow/saga"
)

// Reply describes what a reply event type reports: outcome of a step or of its compensation
type Reply struct {
	Step    string
	Phase   string
	Success bool
}

// ReplyMapping maps reply event types to replies
type ReplyMapping map[string]Reply

// FailureReasoner is implemented by payloads of failure replies
type FailureReasoner interface {
	FailureReason() string
}

// ReplyHandler feeds reply events into the orchestrator. Stale replies are logged and acknowledged.
type ReplyHandler struct {
	sagaType     string
	orchestrator saga.Orchestrator
	replies      ReplyMapping
	logger       log.Logger
}

func NewReplyHandler(sagaType string, orchestrator saga.Orchestrator, replies ReplyMapping, logger log.Logger) *ReplyHandler {
	return &ReplyHandler{sagaType: sagaType, orchestrator: orchestrator, replies: replies, logger: logger}
}

// EventTypes returns sorted reply event types the handler is able to handle
func (h *ReplyHandler) EventTypes() []string {
	types := make([]string, 0, len(h.replies))
	for eventType := range h.replies {
		types = append(types, eventType)
	}

	sort.Strings(types)

	return types
}

func (h *ReplyHandler) Handle(ctx context.Context, msg *message.ReceivedMessage) error {
	env := msg.Envelope

	reply, exists := h.replies[env.EventType]
	if !exists {
		return consumer.NoRetry(errors.Errorf("event %s of type %s isn't a reply of saga %s", env.EventID, env.EventType, h.sagaType))
	}

	sagaID, err := h.sagaID(ctx, env)
	if err != nil {
		if errors.Is(err, saga.ErrNotFound) {
			return consumer.NoRetry(err)
		}

		return err
	}

	step := reply.Step
	if step == "" {
		step = env.Headers.StepName()
	}

	outcome, err := outcomeOf(env, reply.Success)
	if err != nil {
		return consumer.NoRetry(err)
	}

	if reply.Phase == saga.PhaseCompensation {
		err = h.orchestrator.OnCompensationReply(ctx, sagaID, step, outcome)
	} else {
		err = h.orchestrator.OnStepReply(ctx, sagaID, step, outcome)
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, saga.ErrUnexpectedReply), errors.Is(err, saga.ErrTerminal):
		h.logger.Logf(log.WarnLevel, "stale reply %s of type %s for saga %s ignored. %s", env.EventID, env.EventType, sagaID, err)
		return nil
	case errors.Is(err, saga.ErrNotFound):
		return consumer.NoRetry(err)
	}

	return errors.Wrapf(err, "handling reply %s of type %s for saga %s", env.EventID, env.EventType, sagaID)
}

// sagaID is taken from the header echoed by the participant, the saga of the correlation id is used otherwise
func (h *ReplyHandler) sagaID(ctx context.Context, env *message.Envelope) (string, error) {
	if sagaID := env.Headers.SagaID(); sagaID != "" {
		return sagaID, nil
	}

	if env.CorrelationID == "" {
		return "", errors.Wrapf(saga.ErrNotFound, "reply %s has neither saga id nor correlation id", env.EventID)
	}

	inst, err := h.orchestrator.FindByCorrelationKey(ctx, h.sagaType, env.CorrelationID)
	if err != nil {
		return "", errors.Wrapf(err, "resolving saga of reply %s", env.EventID)
	}

	return inst.ID, nil
}

func outcomeOf(env *message.Envelope, success bool) (saga.Outcome, error) {
	outcome := saga.Outcome{Success: success}

	if success {
		if env.Payload != nil {
			result, err := json.Marshal(env.Payload)
			if err != nil {
				return outcome, errors.Wrapf(err, "encoding result of reply %s", env.EventID)
			}

			outcome.Result = result
		}

		return outcome, nil
	}

	outcome.Reason = env.EventType

	if reasoner, ok := env.Payload.(FailureReasoner); ok && reasoner.FailureReason() != "" {
		outcome.Reason = reasoner.FailureReason()
	}

	return outcome, nil
}
