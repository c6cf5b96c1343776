package saga

import (
	"github.com/pkg/errors"
)

// Status of a saga instance. COMPLETED, COMPENSATED and FAILED are terminal.
type Status string

const (
	StatusStarted      Status = "STARTED"
	StatusInProgress   Status = "IN_PROGRESS"
	StatusCompleted    Status = "COMPLETED"
	StatusCompensating Status = "COMPENSATING"
	StatusCompensated  Status = "COMPENSATED"
	StatusFailed       Status = "FAILED"
	// StatusTimedOut is passed through on the way to COMPENSATING
	StatusTimedOut Status = "TIMED_OUT"
)

var transitions = map[Status][]Status{
	StatusStarted:      {StatusInProgress, StatusCompensating, StatusTimedOut},
	StatusInProgress:   {StatusCompleted, StatusCompensating, StatusTimedOut},
	StatusTimedOut:     {StatusCompensating},
	StatusCompensating: {StatusCompensated, StatusFailed},
}

func (s Status) String() string {
	return string(s)
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCompensated || s == StatusFailed
}

// CanTransition reports whether the saga state machine allows moving from one status to another
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}

	return false
}

func ParseStatus(s string) (Status, error) {
	switch status := Status(s); status {
	case StatusStarted, StatusInProgress, StatusCompleted, StatusCompensating, StatusCompensated, StatusFailed, StatusTimedOut:
		return status, nil
	}

	return "", errors.Errorf("unknown saga status '%s'", s)
}

// StepStatus of a single step execution
type StepStatus string

const (
	StepPending      StepStatus = "PENDING"
	StepExecuting    StepStatus = "EXECUTING"
	StepSucceeded    StepStatus = "SUCCEEDED"
	StepFailed       StepStatus = "FAILED"
	StepCompensating StepStatus = "COMPENSATING"
	StepCompensated  StepStatus = "COMPENSATED"
)

var stepTransitions = map[StepStatus][]StepStatus{
	StepPending:   {StepExecuting},
	StepExecuting: {StepSucceeded, StepFailed},
	// a step without compensation command goes straight to COMPENSATED
	StepSucceeded:    {StepCompensating, StepCompensated},
	StepCompensating: {StepCompensated, StepFailed},
}

func (s StepStatus) String() string {
	return string(s)
}

func CanStepTransition(from, to StepStatus) bool {
	for _, allowed := range stepTransitions[from] {
		if allowed == to {
			return true
		}
	}

	return false
}

func ParseStepStatus(s string) (StepStatus, error) {
	switch status := StepStatus(s); status {
	case StepPending, StepExecuting, StepSucceeded, StepFailed, StepCompensating, StepCompensated:
		return status, nil
	}

	return "", errors.Errorf("unknown step status '%s'", s)
}
