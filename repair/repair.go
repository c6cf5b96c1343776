// Package repair finds orders whose read rows drifted from the write side and re-projects them.
package repair

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/log"
	"github.com/go-foreman/orderflow/metrics"
	"github.com/go-foreman/orderflow/mutex"
	"github.com/go-foreman/orderflow/orders"
	"github.com/go-foreman/orderflow/readmodel"
	"github.com/go-foreman/orderflow/saga"
)

const (
	defaultPageSize    = 100
	defaultReportLimit = 100
	runLockKey         = "repair:run"
)

//go:generate mockgen --build_flags=--mod=mod -destination ../testing/mocks/repair/projector.go -package repair . Projector

// Projector re-projects a single order from the write side
type Projector interface {
	Reproject(ctx context.Context, orderID string) (*readmodel.OrderRead, error)
}

// Result of a repair or full sync run. Failed maps order id to the error of its re-projection.
type Result struct {
	Checked   int               `json:"checked"`
	Divergent []string          `json:"divergent"`
	Repaired  []string          `json:"repaired"`
	Failed    map[string]string `json:"failed,omitempty"`
}

type SagaSummary struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	CorrelationKey string    `json:"correlationKey"`
	FailureReason  string    `json:"failureReason,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Report is what an operator looks at before deciding on manual actions
type Report struct {
	GeneratedAt     time.Time                   `json:"generatedAt"`
	Divergent       []string                    `json:"divergent"`
	SyncCounts      map[readmodel.SyncState]int `json:"syncCounts"`
	UnresolvedSyncs []readmodel.SyncStatus      `json:"unresolvedSyncs"`
	FailedSagas     []SagaSummary               `json:"failedSagas"`
}

type Option func(j *Job)

func WithRecorder(recorder metrics.Recorder) Option {
	return func(j *Job) {
		j.recorder = recorder
	}
}

// WithMutex serializes runs of the job, pass sql mutex when several instances share the database
func WithMutex(m mutex.Mutex) Option {
	return func(j *Job) {
		j.mutex = m
	}
}

func WithPageSize(pageSize int) Option {
	return func(j *Job) {
		j.pageSize = pageSize
	}
}

// WithReportLimit bounds the number of unresolved syncs and failed sagas in Report
func WithReportLimit(limit int) Option {
	return func(j *Job) {
		j.reportLimit = limit
	}
}

func WithClock(now func() time.Time) Option {
	return func(j *Job) {
		j.now = now
	}
}

type Job struct {
	orders      orders.WriteStore
	reads       readmodel.Store
	statuses    readmodel.SyncStatusStore
	projector   Projector
	sagas       saga.Orchestrator
	mutex       mutex.Mutex
	logger      log.Logger
	recorder    metrics.Recorder
	now         func() time.Time
	pageSize    int
	reportLimit int
}

func NewJob(orderStore orders.WriteStore, reads readmodel.Store, statuses readmodel.SyncStatusStore, projector Projector, sagas saga.Orchestrator, logger log.Logger, opts ...Option) *Job {
	j := &Job{
		orders:      orderStore,
		reads:       reads,
		statuses:    statuses,
		projector:   projector,
		sagas:       sagas,
		mutex:       mutex.NewInProcessMutex(),
		logger:      logger,
		recorder:    metrics.Noop{},
		now:         time.Now,
		pageSize:    defaultPageSize,
		reportLimit: defaultReportLimit,
	}

	for _, opt := range opts {
		opt(j)
	}

	return j
}

// CheckDataConsistency returns ids of orders whose read row is missing or differs from the write side
func (j *Job) CheckDataConsistency(ctx context.Context) ([]string, error) {
	_, divergent, err := j.check(ctx)
	return divergent, err
}

// RepairInconsistentData re-projects every divergent order. Failures of single orders are collected in Result.
func (j *Job) RepairInconsistentData(ctx context.Context) (Result, error) {
	var result Result

	err := j.locked(ctx, func() error {
		checked, divergent, err := j.check(ctx)
		if err != nil {
			return err
		}

		result = j.reproject(ctx, divergent)
		result.Checked = checked
		result.Divergent = divergent

		j.recorder.RepairRun(ctx, len(result.Divergent), len(result.Repaired))

		if len(divergent) > 0 {
			j.logger.Logf(log.InfoLevel, "repair checked %d orders, repaired %d of %d divergent", checked, len(result.Repaired), len(divergent))
		}

		return nil
	})

	return result, err
}

// SyncSingleOrder forces re-projection of the order
func (j *Job) SyncSingleOrder(ctx context.Context, orderID string) error {
	if _, err := j.projector.Reproject(ctx, orderID); err != nil {
		return errors.Wrapf(err, "syncing order %s", orderID)
	}

	return nil
}

// SyncAllOrders forces re-projection of every order regardless of its consistency
func (j *Job) SyncAllOrders(ctx context.Context) (Result, error) {
	var result Result

	err := j.locked(ctx, func() error {
		var ids []string

		err := j.eachOrderID(ctx, func(orderID string) error {
			ids = append(ids, orderID)
			return nil
		})
		if err != nil {
			return err
		}

		result = j.reproject(ctx, ids)
		result.Checked = len(ids)

		j.logger.Logf(log.InfoLevel, "full sync re-projected %d of %d orders", len(result.Repaired), len(ids))

		return nil
	})

	return result, err
}

func (j *Job) Report(ctx context.Context) (*Report, error) {
	_, divergent, err := j.check(ctx)
	if err != nil {
		return nil, err
	}

	counts, err := j.statuses.CountByStatus(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "counting sync statuses")
	}

	unresolved, err := j.statuses.ListUnresolved(ctx, j.reportLimit)
	if err != nil {
		return nil, errors.Wrap(err, "listing unresolved sync statuses")
	}

	failed, err := j.sagas.ListByStatus(ctx, saga.StatusFailed, j.reportLimit)
	if err != nil {
		return nil, errors.Wrap(err, "listing failed sagas")
	}

	report := &Report{
		GeneratedAt:     j.now(),
		Divergent:       divergent,
		SyncCounts:      counts,
		UnresolvedSyncs: unresolved,
		FailedSagas:     make([]SagaSummary, 0, len(failed)),
	}

	for _, inst := range failed {
		report.FailedSagas = append(report.FailedSagas, SagaSummary{
			ID:             inst.ID,
			Type:           inst.Type,
			CorrelationKey: inst.CorrelationKey,
			FailureReason:  inst.FailureReason,
			UpdatedAt:      inst.UpdatedAt,
		})
	}

	return report, nil
}

func (j *Job) check(ctx context.Context) (int, []string, error) {
	checked := 0
	divergent := make([]string, 0)

	err := j.eachOrderID(ctx, func(orderID string) error {
		order, err := j.orders.Get(ctx, orderID)
		if err != nil {
			// removed after it was listed
			if errors.Is(err, orders.ErrNotFound) {
				return nil
			}

			return errors.Wrapf(err, "loading order %s", orderID)
		}

		checked++

		row, err := j.reads.Get(ctx, orderID)
		if err != nil {
			if errors.Is(err, readmodel.ErrOrderNotFound) {
				j.logger.Logf(log.WarnLevel, "order %s has no read model", orderID)
				divergent = append(divergent, orderID)
				return nil
			}

			return errors.Wrapf(err, "loading read model of order %s", orderID)
		}

		if diffs := row.Diverges(order); len(diffs) > 0 {
			j.logger.Logf(log.WarnLevel, "read model of order %s diverges in %v", orderID, diffs)
			divergent = append(divergent, orderID)
		}

		return nil
	})

	return checked, divergent, err
}

func (j *Job) eachOrderID(ctx context.Context, fn func(orderID string) error) error {
	afterID := ""

	for {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}

		ids, err := j.orders.ListIDs(ctx, afterID, j.pageSize)
		if err != nil {
			return errors.Wrapf(err, "listing orders after '%s'", afterID)
		}

		for _, id := range ids {
			if err := fn(id); err != nil {
				return err
			}
		}

		if len(ids) < j.pageSize {
			return nil
		}

		afterID = ids[len(ids)-1]
	}
}

func (j *Job) reproject(ctx context.Context, ids []string) Result {
	result := Result{Repaired: make([]string, 0, len(ids))}

	for _, id := range ids {
		if _, err := j.projector.Reproject(ctx, id); err != nil {
			j.logger.Logf(log.ErrorLevel, "re-projecting order %s. %s", id, err)

			if result.Failed == nil {
				result.Failed = make(map[string]string)
			}

			result.Failed[id] = err.Error()
			continue
		}

		result.Repaired = append(result.Repaired, id)
	}

	return result
}

func (j *Job) locked(ctx context.Context, fn func() error) error {
	lock, err := j.mutex.Lock(ctx, runLockKey)
	if err != nil {
		return errors.Wrap(err, "locking repair run")
	}

	defer func() {
		if err := lock.Release(ctx); err != nil {
			j.logger.Logf(log.ErrorLevel, "releasing lock of repair run. %s", err)
		}
	}()

	return fn()
}
