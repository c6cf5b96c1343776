package endpoint

import (
	"sync"
)

//go:generate mockgen --build_flags=--mod=mod -destination ../../testing/mocks/pubsub/endpoint/router.go -package endpoint . Router

// Router is a registry of Endpoints and event types. Each event type can have multiple endpoints assigned.
type Router interface {
	// RegisterEndpoint assigns event types to an endpoint
	RegisterEndpoint(endpoint Endpoint, eventTypes ...string)
	// Route returns a list of endpoints that were assigned to an event type
	Route(eventType string) []Endpoint
}

// NewRouter creates new instance of Router with default implementation
func NewRouter() Router {
	return &router{
		routes: make(map[string][]Endpoint),
	}
}

type router struct {
	mutex  sync.RWMutex
	routes map[string][]Endpoint
}

func (r *router) RegisterEndpoint(endpoint Endpoint, eventTypes ...string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, eventType := range eventTypes {
		r.routes[eventType] = append(r.routes[eventType], endpoint)
	}
}

func (r *router) Route(eventType string) []Endpoint {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if routes, ok := r.routes[eventType]; ok {
		return routes
	}

	return []Endpoint{}
}
