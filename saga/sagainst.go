package saga

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// Instance is the persisted state of a saga. It is mutated only by the Orchestrator.
type Instance struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	CorrelationKey string          `json:"correlationKey"`
	Status         Status          `json:"status"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	FailureReason  string          `json:"failureReason,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	TimeoutAt      time.Time       `json:"timeoutAt"`
	// Version is incremented by every store update
	Version int              `json:"version"`
	Steps   []*StepExecution `json:"steps"`
	History []Transition     `json:"history"`

	// number of history entries already in the store
	persistedHistory int
}

type StepExecution struct {
	Name          string          `json:"name"`
	Order         int             `json:"order"`
	Status        StepStatus      `json:"status"`
	StartedAt     time.Time       `json:"startedAt,omitempty"`
	CompletedAt   time.Time       `json:"completedAt,omitempty"`
	CompensatedAt time.Time       `json:"compensatedAt,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	FailureReason string          `json:"failureReason,omitempty"`
}

// Transition is an audit entry of a saga status change
type Transition struct {
	From   Status    `json:"from"`
	To     Status    `json:"to"`
	Step   string    `json:"step,omitempty"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

func newInstance(id string, def Definition, correlationKey string, payload json.RawMessage, now time.Time) *Instance {
	inst := &Instance{
		ID:             id,
		Type:           def.Type,
		CorrelationKey: correlationKey,
		Status:         StatusStarted,
		Payload:        payload,
		CreatedAt:      now,
		UpdatedAt:      now,
		TimeoutAt:      now.Add(def.Timeout),
		History:        []Transition{{To: StatusStarted, At: now}},
	}

	for i, stepDef := range def.Steps {
		inst.Steps = append(inst.Steps, &StepExecution{Name: stepDef.Name, Order: i + 1, Status: StepPending})
	}

	return inst
}

// Step returns the step execution by name
func (i *Instance) Step(name string) (*StepExecution, bool) {
	for _, s := range i.Steps {
		if s.Name == name {
			return s, true
		}
	}

	return nil, false
}

func (i *Instance) transition(to Status, step, reason string, at time.Time) error {
	if i.Status.Terminal() {
		return errors.Wrapf(ErrTerminal, "saga %s is %s", i.ID, i.Status)
	}

	if !CanTransition(i.Status, to) {
		return errors.Wrapf(ErrIllegalTransition, "saga %s from %s to %s", i.ID, i.Status, to)
	}

	i.History = append(i.History, Transition{From: i.Status, To: to, Step: step, Reason: reason, At: at})
	i.Status = to
	i.UpdatedAt = at

	return nil
}

func (i *Instance) stepTransition(step *StepExecution, to StepStatus, at time.Time) error {
	if !CanStepTransition(step.Status, to) {
		return errors.Wrapf(ErrIllegalTransition, "step %s of saga %s from %s to %s", step.Name, i.ID, step.Status, to)
	}

	switch to {
	case StepExecuting:
		step.StartedAt = at
	case StepSucceeded:
		step.CompletedAt = at
	case StepCompensated:
		step.CompensatedAt = at
	}

	step.Status = to
	i.UpdatedAt = at

	return nil
}

// nextPending returns the first PENDING step in forward order
func (i *Instance) nextPending() *StepExecution {
	var next *StepExecution

	for _, s := range i.Steps {
		if s.Status == StepPending && (next == nil || s.Order < next.Order) {
			next = s
		}
	}

	return next
}

func (i *Instance) stepsIn(status StepStatus) []*StepExecution {
	var res []*StepExecution

	for _, s := range i.Steps {
		if s.Status == status {
			res = append(res, s)
		}
	}

	return res
}

// compensationQueue returns SUCCEEDED steps in reverse completion order, step order breaks ties
func (i *Instance) compensationQueue() []*StepExecution {
	queue := i.stepsIn(StepSucceeded)

	sort.SliceStable(queue, func(a, b int) bool {
		if !queue[a].CompletedAt.Equal(queue[b].CompletedAt) {
			return queue[a].CompletedAt.After(queue[b].CompletedAt)
		}

		return queue[a].Order > queue[b].Order
	})

	return queue
}

// Clone returns a deep copy
func (i *Instance) Clone() *Instance {
	c := *i

	c.Payload = append(json.RawMessage(nil), i.Payload...)
	c.History = append([]Transition(nil), i.History...)
	c.Steps = make([]*StepExecution, len(i.Steps))

	for idx, s := range i.Steps {
		stepCopy := *s
		stepCopy.Result = append(json.RawMessage(nil), s.Result...)
		c.Steps[idx] = &stepCopy
	}

	return &c
}
