package operator

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/orders"
	"github.com/go-foreman/orderflow/repair"
	"github.com/go-foreman/orderflow/saga"
)

//go:generate mockgen --build_flags=--mod=mod -destination ../testing/mocks/operator/service.go -package operator . Service

// Service holds the control operations. Errors of unknown entities and illegal requests are ResponseError.
type Service interface {
	ResyncOrder(ctx context.Context, orderID string) error
	ResyncAll(ctx context.Context) (repair.Result, error)
	ConsistencyReport(ctx context.Context) (*repair.Report, error)
	Repair(ctx context.Context) (repair.Result, error)
	GetSaga(ctx context.Context, sagaID string) (*saga.Instance, error)
	ListSagas(ctx context.Context, status saga.Status, limit int) ([]*saga.Instance, error)
	CompensateSaga(ctx context.Context, sagaID, reason string) (*saga.Instance, error)
	ScanTimeouts(ctx context.Context) ([]string, error)
}

type service struct {
	job          *repair.Job
	orchestrator saga.Orchestrator
	now          func() time.Time
}

func NewService(job *repair.Job, orchestrator saga.Orchestrator) Service {
	return &service{job: job, orchestrator: orchestrator, now: time.Now}
}

func (s *service) ResyncOrder(ctx context.Context, orderID string) error {
	return mapErr(s.job.SyncSingleOrder(ctx, orderID))
}

func (s *service) ResyncAll(ctx context.Context) (repair.Result, error) {
	return s.job.SyncAllOrders(ctx)
}

func (s *service) ConsistencyReport(ctx context.Context) (*repair.Report, error) {
	return s.job.Report(ctx)
}

func (s *service) Repair(ctx context.Context) (repair.Result, error) {
	return s.job.RepairInconsistentData(ctx)
}

func (s *service) GetSaga(ctx context.Context, sagaID string) (*saga.Instance, error) {
	inst, err := s.orchestrator.Get(ctx, sagaID)
	if err != nil {
		return nil, mapErr(err)
	}

	return inst, nil
}

func (s *service) ListSagas(ctx context.Context, status saga.Status, limit int) ([]*saga.Instance, error) {
	return s.orchestrator.ListByStatus(ctx, status, limit)
}

// CompensateSaga forces compensation of a running saga and returns its state afterwards
func (s *service) CompensateSaga(ctx context.Context, sagaID, reason string) (*saga.Instance, error) {
	if reason == "" {
		reason = "compensation requested by operator"
	}

	if err := s.orchestrator.Compensate(ctx, sagaID, reason); err != nil {
		return nil, mapErr(err)
	}

	return s.GetSaga(ctx, sagaID)
}

func (s *service) ScanTimeouts(ctx context.Context) ([]string, error) {
	return s.orchestrator.ScanTimeouts(ctx, s.now())
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, saga.ErrNotFound), errors.Is(err, orders.ErrNotFound):
		return NewResponseError(http.StatusNotFound, err)
	case errors.Is(err, saga.ErrTerminal), errors.Is(err, saga.ErrIllegalTransition):
		return NewResponseError(http.StatusConflict, err)
	}

	return err
}
