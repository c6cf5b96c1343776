package dispatcher

import (
	"sort"
	"sync"

	"github.com/go-foreman/orderflow/consumer"
)

// Dispatcher matches handlers by event type. Handlers of an event type are returned in order of subscription,
// handlers subscribed for all event types go after them.
type Dispatcher interface {
	Match(eventType string) []consumer.Handler
	// Subscribe registers handler of consumerName for eventType. Second registration of the same consumer is ignored.
	Subscribe(eventType, consumerName string, handler consumer.Handler) Dispatcher
	SubscribeForAll(consumerName string, handler consumer.Handler) Dispatcher
	// EventTypes returns event types with at least one handler, sorted
	EventTypes() []string
}

func NewDispatcher() Dispatcher {
	return &dispatcher{
		handlers: make(map[string][]namedHandler),
	}
}

// handlers are functions and closures made by the same literal share a code pointer,
// so registrations are told apart by consumer names
type namedHandler struct {
	consumerName string
	handler      consumer.Handler
}

type dispatcher struct {
	mutex          sync.RWMutex
	handlers       map[string][]namedHandler
	allEvsHandlers []namedHandler
}

func (d *dispatcher) Match(eventType string) []consumer.Handler {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	typed := d.handlers[eventType]
	res := make([]consumer.Handler, 0, len(typed)+len(d.allEvsHandlers))

	for _, h := range typed {
		res = append(res, h.handler)
	}

	for _, h := range d.allEvsHandlers {
		if !containsConsumer(typed, h.consumerName) {
			res = append(res, h.handler)
		}
	}

	return res
}

func (d *dispatcher) Subscribe(eventType, consumerName string, handler consumer.Handler) Dispatcher {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if containsConsumer(d.handlers[eventType], consumerName) {
		return d
	}

	d.handlers[eventType] = append(d.handlers[eventType], namedHandler{consumerName: consumerName, handler: handler})

	return d
}

func (d *dispatcher) SubscribeForAll(consumerName string, handler consumer.Handler) Dispatcher {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if containsConsumer(d.allEvsHandlers, consumerName) {
		return d
	}

	d.allEvsHandlers = append(d.allEvsHandlers, namedHandler{consumerName: consumerName, handler: handler})

	return d
}

func (d *dispatcher) EventTypes() []string {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	res := make([]string, 0, len(d.handlers))
	for eventType := range d.handlers {
		res = append(res, eventType)
	}

	sort.Strings(res)

	return res
}

func containsConsumer(handlers []namedHandler, consumerName string) bool {
	for _, h := range handlers {
		if h.consumerName == consumerName {
			return true
		}
	}

	return false
}
