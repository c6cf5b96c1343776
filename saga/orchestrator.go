package saga

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/log"
	"github.com/go-foreman/orderflow/metrics"
	"github.com/go-foreman/orderflow/mutex"
)

const (
	// ReasonTimedOut is the failure reason of steps abandoned by the timeout scan
	ReasonTimedOut   = "saga timed out"
	defaultScanLimit = 100
)

// Outcome of a step or of its compensation reported by a participant
type Outcome struct {
	Success bool
	Reason  string
	Result  json.RawMessage
}

// Observer is notified after every persisted change of a saga. An error is logged and doesn't affect the saga.
type Observer interface {
	SagaUpdated(ctx context.Context, inst *Instance, previous Status) error
}

//go:generate mockgen --build_flags=--mod=mod -destination ../testing/mocks/saga/orchestrator.go -package saga . Orchestrator

// Orchestrator is the only writer of saga instances. Every change of one instance happens under its lock,
// the change is persisted before any command it produced is dispatched.
type Orchestrator interface {
	// StartSaga starts a saga for the correlation key and dispatches its first step.
	// An existing saga of the same type and key is returned instead, its in-flight commands are dispatched again.
	StartSaga(ctx context.Context, sagaType, correlationKey string, payload json.RawMessage) (string, error)
	OnStepReply(ctx context.Context, sagaID, stepName string, outcome Outcome) error
	OnCompensationReply(ctx context.Context, sagaID, stepName string, outcome Outcome) error
	// ScanTimeouts moves STARTED and IN_PROGRESS sagas with a deadline before now into COMPENSATING.
	// Ids of the moved sagas are returned, a failure of one saga doesn't stop the scan.
	ScanTimeouts(ctx context.Context, now time.Time) ([]string, error)
	// Compensate forces compensation of a running saga
	Compensate(ctx context.Context, sagaID, reason string) error
	Get(ctx context.Context, sagaID string) (*Instance, error)
	FindByCorrelationKey(ctx context.Context, sagaType, correlationKey string) (*Instance, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Instance, error)
}

type Option func(o *orchestrator)

func WithRecorder(recorder metrics.Recorder) Option {
	return func(o *orchestrator) {
		o.recorder = recorder
	}
}

func WithObservers(observers ...Observer) Option {
	return func(o *orchestrator) {
		o.observers = append(o.observers, observers...)
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *orchestrator) {
		o.now = now
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(o *orchestrator) {
		o.newID = newID
	}
}

// WithScanLimit bounds the number of sagas moved by one timeout scan
func WithScanLimit(limit int) Option {
	return func(o *orchestrator) {
		o.scanLimit = limit
	}
}

func NewOrchestrator(store Store, definitions Definitions, dispatcher CommandDispatcher, m mutex.Mutex, logger log.Logger, opts ...Option) Orchestrator {
	o := &orchestrator{
		store:       store,
		definitions: definitions,
		dispatcher:  dispatcher,
		mutex:       m,
		logger:      logger,
		recorder:    metrics.Noop{},
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
		scanLimit:   defaultScanLimit,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

type orchestrator struct {
	store       Store
	definitions Definitions
	dispatcher  CommandDispatcher
	mutex       mutex.Mutex
	logger      log.Logger
	recorder    metrics.Recorder
	observers   []Observer
	now         func() time.Time
	newID       func() string
	scanLimit   int
}

// mutation changes inst in place. changed=false leaves the store untouched, commands are dispatched anyway.
type mutation func(inst *Instance, def Definition) (changed bool, cmds []Command, err error)

func (o *orchestrator) StartSaga(ctx context.Context, sagaType, correlationKey string, payload json.RawMessage) (string, error) {
	def, err := o.definitions.Get(sagaType)
	if err != nil {
		return "", errors.WithStack(err)
	}

	var (
		inst    *Instance
		created bool
		cmds    []Command
	)

	err = o.locked(ctx, fmt.Sprintf("saga-start:%s:%s", sagaType, correlationKey), func() error {
		existing, err := o.store.FindByCorrelationKey(ctx, sagaType, correlationKey)
		if err == nil {
			inst, cmds = existing, o.inFlight(existing, def)
			return nil
		}

		if !errors.Is(err, ErrNotFound) {
			return errors.Wrapf(err, "looking up saga %s for %s", sagaType, correlationKey)
		}

		now := o.now().UTC()
		inst = newInstance(o.newID(), def, correlationKey, payload, now)

		first := inst.nextPending()
		if err := inst.stepTransition(first, StepExecuting, now); err != nil {
			return err
		}

		if err := inst.transition(StatusInProgress, first.Name, "", now); err != nil {
			return err
		}

		if err := o.store.Create(ctx, inst); err != nil {
			if !errors.Is(err, ErrAlreadyExists) {
				return errors.Wrapf(err, "creating saga %s for %s", sagaType, correlationKey)
			}

			// another process has started it first
			existing, findErr := o.store.FindByCorrelationKey(ctx, sagaType, correlationKey)
			if findErr != nil {
				return errors.Wrapf(findErr, "reading concurrently created saga %s for %s", sagaType, correlationKey)
			}

			inst, cmds = existing, nil

			return nil
		}

		created = true
		cmds = o.inFlight(inst, def)

		return nil
	})
	if err != nil {
		return "", err
	}

	if created {
		o.logger.Logf(log.InfoLevel, "saga %s of type %s started for %s", inst.ID, sagaType, correlationKey)
		o.recordTransitions(ctx, inst, 0)
		o.notify(ctx, inst, "")
	} else {
		o.logger.Logf(log.InfoLevel, "saga %s of type %s already exists for %s", inst.ID, sagaType, correlationKey)
	}

	return inst.ID, o.dispatch(ctx, cmds)
}

func (o *orchestrator) OnStepReply(ctx context.Context, sagaID, stepName string, outcome Outcome) error {
	return o.mutate(ctx, sagaID, func(inst *Instance, def Definition) (bool, []Command, error) {
		step, exists := inst.Step(stepName)
		if !exists {
			return false, nil, errors.Wrapf(ErrUnexpectedReply, "saga %s has no step %s", sagaID, stepName)
		}

		// the participant has done the work after the step was given up, it must be undone.
		// A step with CompletedAt set had succeeded and then failed its compensation.
		if step.Status == StepFailed && step.CompletedAt.IsZero() && outcome.Success {
			stepDef, _ := def.Step(stepName)
			if stepDef.Compensation == "" {
				return false, nil, errors.Wrapf(ErrUnexpectedReply, "late success of step %s of saga %s", stepName, sagaID)
			}

			o.logger.Logf(log.WarnLevel, "step %s of saga %s succeeded after it had failed, dispatching %s", stepName, sagaID, stepDef.Compensation)

			return false, []Command{o.command(inst, stepDef, PhaseCompensation)}, nil
		}

		if inst.Status.Terminal() {
			return false, nil, errors.Wrapf(ErrTerminal, "reply of step %s for saga %s which is %s", stepName, sagaID, inst.Status)
		}

		if step.Status == StepSucceeded || step.Status == StepFailed {
			o.logger.Logf(log.InfoLevel, "duplicate reply of step %s for saga %s, step is %s", stepName, sagaID, step.Status)
			return false, o.inFlight(inst, def), nil
		}

		if step.Status != StepExecuting || inst.Status != StatusInProgress {
			return false, nil, errors.Wrapf(ErrUnexpectedReply, "step %s of saga %s is %s, saga is %s", stepName, sagaID, step.Status, inst.Status)
		}

		now := o.now().UTC()

		if !outcome.Success {
			if err := inst.stepTransition(step, StepFailed, now); err != nil {
				return false, nil, err
			}
			step.FailureReason = outcome.Reason

			if err := inst.transition(StatusCompensating, stepName, fmt.Sprintf("step %s failed: %s", stepName, outcome.Reason), now); err != nil {
				return false, nil, err
			}

			cmds, err := o.compensateNext(inst, def, now)

			return true, cmds, err
		}

		if err := inst.stepTransition(step, StepSucceeded, now); err != nil {
			return false, nil, err
		}
		step.Result = outcome.Result

		next := inst.nextPending()
		if next == nil {
			return true, nil, inst.transition(StatusCompleted, stepName, "", now)
		}

		if err := inst.stepTransition(next, StepExecuting, now); err != nil {
			return false, nil, err
		}

		return true, o.inFlight(inst, def), nil
	})
}

func (o *orchestrator) OnCompensationReply(ctx context.Context, sagaID, stepName string, outcome Outcome) error {
	return o.mutate(ctx, sagaID, func(inst *Instance, def Definition) (bool, []Command, error) {
		step, exists := inst.Step(stepName)
		if !exists {
			return false, nil, errors.Wrapf(ErrUnexpectedReply, "saga %s has no step %s", sagaID, stepName)
		}

		if inst.Status.Terminal() {
			return false, nil, errors.Wrapf(ErrTerminal, "compensation reply of step %s for saga %s which is %s", stepName, sagaID, inst.Status)
		}

		if step.Status == StepCompensated && inst.Status == StatusCompensating {
			o.logger.Logf(log.InfoLevel, "duplicate compensation reply of step %s for saga %s", stepName, sagaID)
			return false, o.inFlight(inst, def), nil
		}

		if step.Status != StepCompensating || inst.Status != StatusCompensating {
			return false, nil, errors.Wrapf(ErrUnexpectedReply, "compensation of step %s of saga %s, step is %s, saga is %s", stepName, sagaID, step.Status, inst.Status)
		}

		now := o.now().UTC()

		if !outcome.Success {
			if err := inst.stepTransition(step, StepFailed, now); err != nil {
				return false, nil, err
			}

			step.FailureReason = outcome.Reason
			inst.FailureReason = fmt.Sprintf("compensation of %s failed: %s", stepName, outcome.Reason)

			o.logger.Logf(log.ErrorLevel, "saga %s failed, operator intervention is required. %s", sagaID, inst.FailureReason)

			return true, nil, inst.transition(StatusFailed, stepName, inst.FailureReason, now)
		}

		if err := inst.stepTransition(step, StepCompensated, now); err != nil {
			return false, nil, err
		}

		cmds, err := o.compensateNext(inst, def, now)

		return true, cmds, err
	})
}

func (o *orchestrator) ScanTimeouts(ctx context.Context, now time.Time) ([]string, error) {
	ids, err := o.store.ListExpired(ctx, now, o.scanLimit)
	if err != nil {
		return nil, errors.Wrap(err, "listing expired sagas")
	}

	var moved []string

	for _, id := range ids {
		timedOut := false

		err := o.mutate(ctx, id, func(inst *Instance, def Definition) (bool, []Command, error) {
			// a reply could have been processed since the listing
			if !isExpirable(inst.Status) || !inst.TimeoutAt.Before(now) {
				return false, nil, nil
			}

			if err := o.abandonExecuting(inst, ReasonTimedOut, now); err != nil {
				return false, nil, err
			}

			if err := inst.transition(StatusTimedOut, "", fmt.Sprintf("deadline %s exceeded", inst.TimeoutAt.Format(time.RFC3339)), now); err != nil {
				return false, nil, err
			}

			if err := inst.transition(StatusCompensating, "", ReasonTimedOut, now); err != nil {
				return false, nil, err
			}

			timedOut = true
			cmds, err := o.compensateNext(inst, def, now)

			return true, cmds, err
		})
		if err != nil {
			o.logger.Logf(log.ErrorLevel, "moving timed out saga %s to compensation. %s", id, err)
			continue
		}

		if timedOut {
			o.logger.Logf(log.WarnLevel, "saga %s timed out, compensating", id)
			moved = append(moved, id)
		}
	}

	return moved, nil
}

func (o *orchestrator) Compensate(ctx context.Context, sagaID, reason string) error {
	return o.mutate(ctx, sagaID, func(inst *Instance, def Definition) (bool, []Command, error) {
		if inst.Status.Terminal() {
			return false, nil, errors.Wrapf(ErrTerminal, "compensating saga %s which is %s", sagaID, inst.Status)
		}

		if inst.Status == StatusCompensating {
			return false, o.inFlight(inst, def), nil
		}

		now := o.now().UTC()

		if err := o.abandonExecuting(inst, reason, now); err != nil {
			return false, nil, err
		}

		if err := inst.transition(StatusCompensating, "", "compensation requested: "+reason, now); err != nil {
			return false, nil, err
		}

		cmds, err := o.compensateNext(inst, def, now)

		return true, cmds, err
	})
}

func (o *orchestrator) Get(ctx context.Context, sagaID string) (*Instance, error) {
	return o.store.Get(ctx, sagaID)
}

func (o *orchestrator) FindByCorrelationKey(ctx context.Context, sagaType, correlationKey string) (*Instance, error) {
	return o.store.FindByCorrelationKey(ctx, sagaType, correlationKey)
}

func (o *orchestrator) ListByStatus(ctx context.Context, status Status, limit int) ([]*Instance, error) {
	return o.store.ListByStatus(ctx, status, limit)
}

// abandonExecuting fails every EXECUTING step, a late success of such a step triggers its compensation
func (o *orchestrator) abandonExecuting(inst *Instance, reason string, now time.Time) error {
	for _, step := range inst.stepsIn(StepExecuting) {
		if err := inst.stepTransition(step, StepFailed, now); err != nil {
			return err
		}
		step.FailureReason = reason
	}

	return nil
}

// compensateNext moves the most recently completed SUCCEEDED step into COMPENSATING.
// Steps without a compensation command are marked COMPENSATED on the way, the saga is COMPENSATED when none is left.
func (o *orchestrator) compensateNext(inst *Instance, def Definition, now time.Time) ([]Command, error) {
	for {
		queue := inst.compensationQueue()
		if len(queue) == 0 {
			return nil, inst.transition(StatusCompensated, "", "", now)
		}

		step := queue[0]
		stepDef, _ := def.Step(step.Name)

		if stepDef.Compensation == "" {
			if err := inst.stepTransition(step, StepCompensated, now); err != nil {
				return nil, err
			}

			continue
		}

		if err := inst.stepTransition(step, StepCompensating, now); err != nil {
			return nil, err
		}

		return []Command{o.command(inst, stepDef, PhaseCompensation)}, nil
	}
}

// inFlight returns commands of steps awaiting a reply
func (o *orchestrator) inFlight(inst *Instance, def Definition) []Command {
	if inst.Status.Terminal() {
		return nil
	}

	var cmds []Command

	for _, step := range inst.Steps {
		stepDef, exists := def.Step(step.Name)
		if !exists {
			continue
		}

		switch step.Status {
		case StepExecuting:
			cmds = append(cmds, o.command(inst, stepDef, PhaseForward))
		case StepCompensating:
			cmds = append(cmds, o.command(inst, stepDef, PhaseCompensation))
		}
	}

	return cmds
}

func (o *orchestrator) command(inst *Instance, stepDef StepDefinition, phase string) Command {
	cmdType := stepDef.Command
	if phase == PhaseCompensation {
		cmdType = stepDef.Compensation
	}

	return Command{
		ID:             CommandID(inst.ID, stepDef.Name, phase),
		SagaID:         inst.ID,
		SagaType:       inst.Type,
		Step:           stepDef.Name,
		Phase:          phase,
		Type:           cmdType,
		CorrelationKey: inst.CorrelationKey,
		Payload:        inst.Payload,
	}
}

// mutate applies fn to the stored instance under its lock and persists it.
// Observers and the command dispatcher are called after the lock is released.
func (o *orchestrator) mutate(ctx context.Context, sagaID string, fn mutation) error {
	var (
		updated  *Instance
		previous Status
		cmds     []Command
		from     int
	)

	err := o.locked(ctx, "saga:"+sagaID, func() error {
		inst, err := o.store.Get(ctx, sagaID)
		if err != nil {
			return err
		}

		def, err := o.definitions.Get(inst.Type)
		if err != nil {
			return errors.Wrapf(err, "saga %s", sagaID)
		}

		previous, from = inst.Status, len(inst.History)

		changed, produced, err := fn(inst, def)
		if err != nil {
			return err
		}

		if changed {
			if err := o.store.Update(ctx, inst); err != nil {
				return errors.Wrapf(err, "persisting saga %s", sagaID)
			}

			updated = inst
		}

		cmds = produced

		return nil
	})
	if err != nil {
		return err
	}

	if updated != nil {
		o.recordTransitions(ctx, updated, from)
		o.notify(ctx, updated, previous)
	}

	return o.dispatch(ctx, cmds)
}

func (o *orchestrator) locked(ctx context.Context, key string, fn func() error) error {
	lock, err := o.mutex.Lock(ctx, key)
	if err != nil {
		return errors.Wrapf(err, "acquiring lock %s", key)
	}

	defer func() {
		if err := lock.Release(ctx); err != nil {
			o.logger.Logf(log.ErrorLevel, "releasing lock %s. %s", key, err)
		}
	}()

	return fn()
}

func (o *orchestrator) dispatch(ctx context.Context, cmds []Command) error {
	for _, cmd := range cmds {
		if err := o.dispatcher.Dispatch(ctx, cmd); err != nil {
			o.logger.Logf(log.ErrorLevel, "dispatching %s command %s of saga %s. %s", cmd.Phase, cmd.Type, cmd.SagaID, err)
			return err
		}

		o.logger.Logf(log.DebugLevel, "dispatched %s command %s of saga %s", cmd.Phase, cmd.Type, cmd.SagaID)
	}

	return nil
}

func (o *orchestrator) notify(ctx context.Context, inst *Instance, previous Status) {
	for _, observer := range o.observers {
		if err := observer.SagaUpdated(ctx, inst.Clone(), previous); err != nil {
			o.logger.Logf(log.ErrorLevel, "notifying observer of saga %s. %s", inst.ID, err)
		}
	}
}

func (o *orchestrator) recordTransitions(ctx context.Context, inst *Instance, from int) {
	for _, t := range inst.History[from:] {
		o.recorder.SagaTransition(ctx, inst.Type, t.From.String(), t.To.String())
	}
}
