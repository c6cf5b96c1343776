package orders

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/consumer"
	"github.com/go-foreman/orderflow/log"
	"github.com/go-foreman/orderflow/pubsub/endpoint"
	"github.com/go-foreman/orderflow/pubsub/message"
)

// ConfirmHandler is the orders service side of the ConfirmOrder step
type ConfirmHandler struct {
	store     WriteStore
	publisher endpoint.Publisher
	logger    log.Logger
	now       func() time.Time
}

func NewConfirmHandler(store WriteStore, publisher endpoint.Publisher, logger log.Logger) *ConfirmHandler {
	return &ConfirmHandler{store: store, publisher: publisher, logger: logger, now: time.Now}
}

func (h *ConfirmHandler) Handle(ctx context.Context, msg *message.ReceivedMessage) error {
	cmd := msg.Envelope

	payload := &OrderCreatedEvent{}
	if err := message.DecodePayload(cmd.Payload, payload); err != nil {
		return consumer.NoRetry(errors.Wrapf(err, "decoding %s", cmd.EventID))
	}

	orderID := payload.OrderID
	if orderID == "" {
		orderID = cmd.CorrelationID
	}

	order, err := h.store.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return h.reply(ctx, cmd, OrderConfirmationFailedType, &ParticipantFailedEvent{OrderID: orderID, Reason: "order doesn't exist"})
		}

		return err
	}

	if order.Status == StatusCancelled {
		return h.reply(ctx, cmd, OrderConfirmationFailedType, &ParticipantFailedEvent{OrderID: orderID, Reason: "order is cancelled"})
	}

	if _, err := ChangeStatus(ctx, h.store, h.publisher, orderID, StatusConfirmed, "", h.now()); err != nil {
		return err
	}

	h.logger.Logf(log.InfoLevel, "order %s confirmed", orderID)

	return h.reply(ctx, cmd, OrderConfirmedType, &ParticipantSucceededEvent{OrderID: orderID})
}

// reply echoes saga headers of the command, its event id is derived from the command id so a redelivered command gives the same reply
func (h *ConfirmHandler) reply(ctx context.Context, cmd *message.Envelope, eventType string, payload interface{}) error {
	env := message.NewEnvelope(eventType, cmd.CorrelationID, payload, message.WithEventID(cmd.EventID+":reply"))
	env.Headers.SetSagaID(cmd.Headers.SagaID())
	env.Headers.SetStepName(cmd.Headers.StepName())

	return errors.Wrapf(h.publisher.Publish(ctx, env), "replying %s to %s", eventType, cmd.EventID)
}
