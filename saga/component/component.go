package component

import (
	"github.com/go-foreman/orderflow"
	"github.com/go-foreman/orderflow/saga"
	"github.com/go-foreman/orderflow/saga/contracts"
	"github.com/go-foreman/orderflow/saga/handlers"
)

// Component subscribes handlers of one saga type to the message bus
type Component struct {
	sagaType     string
	orchestrator saga.Orchestrator
	replies      handlers.ReplyMapping
	startEvents  []string
}

type configOption func(c *Component)

// WithStartEvents sets event types which start a saga for their correlation id
func WithStartEvents(eventTypes ...string) configOption {
	return func(c *Component) {
		c.startEvents = append(c.startEvents, eventTypes...)
	}
}

func NewSagaComponent(sagaType string, orchestrator saga.Orchestrator, replies handlers.ReplyMapping, opts ...configOption) *Component {
	c := &Component{sagaType: sagaType, orchestrator: orchestrator, replies: replies}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ConsumerName is the name handlers of the saga type are subscribed with, duplicates are tracked under it
func ConsumerName(sagaType string) string {
	return "saga." + sagaType
}

func (c Component) Init(mBus *orderflow.MessageBus) error {
	contracts.RegisterSagaContracts(mBus.SchemeRegistry())

	consumerName := ConsumerName(c.sagaType)

	replyHandler := handlers.NewReplyHandler(c.sagaType, c.orchestrator, c.replies, mBus.Logger())
	for _, eventType := range replyHandler.EventTypes() {
		mBus.Subscribe(consumerName, eventType, replyHandler.Handle)
	}

	startHandler := handlers.NewStartHandler(c.sagaType, c.orchestrator, mBus.Logger())
	for _, eventType := range c.startEvents {
		mBus.Subscribe(consumerName, eventType, startHandler.Handle)
	}

	compensateHandler := handlers.NewCompensateHandler(c.sagaType, c.orchestrator, mBus.Logger())
	mBus.Subscribe(consumerName, contracts.CompensateSagaType, compensateHandler.Handle)

	return nil
}
