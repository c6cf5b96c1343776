package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/log"
	"github.com/go-foreman/orderflow/pubsub/endpoint"
	"github.com/go-foreman/orderflow/pubsub/message"
)

// Service is the write side entry point: it stores a new order and announces it with order.created
type Service struct {
	store     WriteStore
	publisher endpoint.Publisher
	logger    log.Logger
	now       func() time.Time
	newID     func() string
}

func NewService(store WriteStore, publisher endpoint.Publisher, logger log.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

func (s *Service) PlaceOrder(ctx context.Context, customerID string, items []Item) (*Order, error) {
	order, err := NewOrder(s.newID(), customerID, items, s.now().UTC())
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err := s.store.Save(ctx, order); err != nil {
		return nil, errors.Wrapf(err, "saving order %s", order.ID)
	}

	env := message.NewEnvelope(OrderCreatedType, order.ID, &OrderCreatedEvent{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Items:      order.Items,
		Total:      order.Total,
	}, message.WithEventID(order.ID+":created"))

	if err := s.publisher.Publish(ctx, env); err != nil {
		return order, errors.Wrapf(err, "publishing creation of order %s", order.ID)
	}

	s.logger.Logf(log.InfoLevel, "order %s placed by %s, total %d", order.ID, customerID, order.Total)

	return order, nil
}

func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.store.Get(ctx, orderID)
}
