package saga

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// StepDefinition describes one forward step: the command that executes it and the command that undoes it.
// Empty Compensation means there is nothing to undo.
type StepDefinition struct {
	Name         string
	Command      string
	Compensation string
}

// Definition is an ordered list of steps of a saga type
type Definition struct {
	Type    string
	Timeout time.Duration
	Steps   []StepDefinition
}

func (d Definition) Validate() error {
	if d.Type == "" {
		return errors.New("saga type is required")
	}

	if d.Timeout <= 0 {
		return errors.Errorf("saga %s must have a positive timeout", d.Type)
	}

	if len(d.Steps) == 0 {
		return errors.Errorf("saga %s has no steps", d.Type)
	}

	names := make(map[string]struct{}, len(d.Steps))

	for _, s := range d.Steps {
		if s.Name == "" || s.Command == "" {
			return errors.Errorf("step of saga %s must have a name and a command", d.Type)
		}

		if _, exists := names[s.Name]; exists {
			return errors.Errorf("saga %s has step %s defined twice", d.Type, s.Name)
		}

		names[s.Name] = struct{}{}
	}

	return nil
}

func (d Definition) Step(name string) (StepDefinition, bool) {
	for _, s := range d.Steps {
		if s.Name == name {
			return s, true
		}
	}

	return StepDefinition{}, false
}

// Definitions is a registry of saga definitions passed explicitly to the orchestrator
type Definitions interface {
	Register(def Definition) error
	Get(sagaType string) (Definition, error)
}

func NewDefinitions(defs ...Definition) (Definitions, error) {
	r := &definitions{defs: make(map[string]Definition)}

	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return nil, err
		}
	}

	return r, nil
}

type definitions struct {
	mutex sync.RWMutex
	defs  map[string]Definition
}

func (r *definitions) Register(def Definition) error {
	if err := def.Validate(); err != nil {
		return errors.WithStack(err)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.defs[def.Type]; exists {
		return errors.Errorf("saga %s is already registered", def.Type)
	}

	r.defs[def.Type] = def

	return nil
}

func (r *definitions) Get(sagaType string) (Definition, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	def, exists := r.defs[sagaType]
	if !exists {
		return Definition{}, errors.Errorf("saga %s is not registered", sagaType)
	}

	return def, nil
}
