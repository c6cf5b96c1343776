package scheme

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// KnownTypesRegistry maps event types (e.g. "order.created") to Go payload types.
// An instance is created explicitly and passed to whoever needs to decode payloads.
type KnownTypesRegistry interface {
	// AddKnownType registers obj's struct type under eventType. obj must be a struct or a pointer to a struct.
	AddKnownType(eventType string, obj interface{})
	// NewObject returns a pointer to a new zero value of the type registered for eventType
	NewObject(eventType string) (interface{}, error)
	// Known reports whether eventType is registered
	Known(eventType string) bool
	// EventType returns an event type obj's type was registered with
	EventType(obj interface{}) (string, error)
	// EventTypes returns all registered event types sorted
	EventTypes() []string
}

func NewKnownTypesRegistry() KnownTypesRegistry {
	return &knownTypesRegistry{
		eventTypeToType: map[string]reflect.Type{},
		typeToEventType: map[reflect.Type]string{},
	}
}

type knownTypesRegistry struct {
	mutex           sync.RWMutex
	eventTypeToType map[string]reflect.Type
	// The reflect.Type we index by is never a pointer
	typeToEventType map[reflect.Type]string
}

func (r *knownTypesRegistry) AddKnownType(eventType string, obj interface{}) {
	if eventType == "" {
		panic("event type is required on all types")
	}

	structType := getStructType(obj)

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if oldT, found := r.eventTypeToType[eventType]; found && oldT != structType {
		panic(fmt.Sprintf("double registration of different types for %s: old=%v.%v, new=%v.%v", eventType, oldT.PkgPath(), oldT.Name(), structType.PkgPath(), structType.Name()))
	}

	r.eventTypeToType[eventType] = structType
	r.typeToEventType[structType] = eventType
}

func (r *knownTypesRegistry) NewObject(eventType string) (interface{}, error) {
	r.mutex.RLock()
	t, exists := r.eventTypeToType[eventType]
	r.mutex.RUnlock()

	if !exists {
		return nil, errors.Errorf("type %s is not registered in KnownTypes", eventType)
	}

	return reflect.New(t).Interface(), nil
}

func (r *knownTypesRegistry) Known(eventType string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	_, exists := r.eventTypeToType[eventType]

	return exists
}

func (r *knownTypesRegistry) EventType(obj interface{}) (string, error) {
	structType := getStructType(obj)

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	eventType, ok := r.typeToEventType[structType]
	if !ok {
		return "", errors.Errorf("no event type is registered in schema for the type %s", structType.Name())
	}

	return eventType, nil
}

func (r *knownTypesRegistry) EventTypes() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	res := make([]string, 0, len(r.eventTypeToType))
	for eventType := range r.eventTypeToType {
		res = append(res, eventType)
	}

	sort.Strings(res)

	return res
}

func getStructType(obj interface{}) reflect.Type {
	structType := reflect.TypeOf(obj)

	if structType == nil {
		panic("nil can't be registered as a known type")
	}

	if structType.Kind() == reflect.Ptr {
		structType = structType.Elem()
	}

	if structType.Kind() != reflect.Struct {
		panic("all types must be structs or pointers to structs")
	}

	return structType
}
