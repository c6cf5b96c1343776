package readmodel

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/consumer"
	"github.com/go-foreman/orderflow/log"
	"github.com/go-foreman/orderflow/metrics"
	"github.com/go-foreman/orderflow/mutex"
	"github.com/go-foreman/orderflow/orders"
	"github.com/go-foreman/orderflow/pubsub/message"
)

const (
	defaultMaxRetries = 3
	defaultBatchSize  = 100
)

// UnknownOrderID keys sync statuses of trigger events no order could be resolved for
const UnknownOrderID = "unknown"

// TriggerEventTypes are the write side events which change the projection of an order
func TriggerEventTypes() []string {
	return []string{orders.OrderCreatedType, orders.OrderStatusChangedType}
}

// RetryReport sums up one RetryFailedSync run
type RetryReport struct {
	Retried   int `json:"retried"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

type Option func(s *Synchronizer)

func WithRecorder(recorder metrics.Recorder) Option {
	return func(s *Synchronizer) {
		s.recorder = recorder
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) {
		s.now = now
	}
}

// WithMutex serializes projections of the same order. In-process mutex is used by default.
func WithMutex(m mutex.Mutex) Option {
	return func(s *Synchronizer) {
		s.mutex = m
	}
}

// WithMaxRetries sets how many failed attempts a sync status may have before RetryFailedSync gives up on it
func WithMaxRetries(maxRetries int) Option {
	return func(s *Synchronizer) {
		s.maxRetries = maxRetries
	}
}

func WithBatchSize(batchSize int) Option {
	return func(s *Synchronizer) {
		s.batchSize = batchSize
	}
}

// Synchronizer keeps order read rows in line with the write side. The projection is always computed
// from the current write side order, the triggering event only tells which order to project.
type Synchronizer struct {
	orders     orders.WriteStore
	reads      Store
	statuses   SyncStatusStore
	marshaller message.Marshaller
	mutex      mutex.Mutex
	logger     log.Logger
	recorder   metrics.Recorder
	now        func() time.Time
	maxRetries int
	batchSize  int
}

func NewSynchronizer(orderStore orders.WriteStore, reads Store, statuses SyncStatusStore, marshaller message.Marshaller, logger log.Logger, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		orders:     orderStore,
		reads:      reads,
		statuses:   statuses,
		marshaller: marshaller,
		mutex:      mutex.NewInProcessMutex(),
		logger:     logger,
		recorder:   metrics.Noop{},
		now:        time.Now,
		maxRetries: defaultMaxRetries,
		batchSize:  defaultBatchSize,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Handler applies projection trigger events. Failures are recorded in sync status and never returned,
// so a broken projection doesn't hold the delivery.
func (s *Synchronizer) Handler() consumer.Handler {
	return func(ctx context.Context, msg *message.ReceivedMessage) error {
		s.ApplyEvent(ctx, msg)
		return nil
	}
}

// ApplyEvent projects the order the event belongs to and returns the recorded sync status
func (s *Synchronizer) ApplyEvent(ctx context.Context, msg *message.ReceivedMessage) SyncStatus {
	raw := msg.Raw
	if len(raw) == 0 {
		var err error
		if raw, err = s.marshaller.Marshal(msg.Envelope); err != nil {
			s.logger.Logf(log.ErrorLevel, "marshalling event for sync status. %s", err)
		}
	}

	return s.apply(ctx, msg.Envelope, raw)
}

// RetryFailedSync applies again the stored events of FAILED sync statuses which still have attempts left
func (s *Synchronizer) RetryFailedSync(ctx context.Context) (RetryReport, error) {
	report := RetryReport{}

	failed, err := s.statuses.ListFailed(ctx, s.maxRetries, s.batchSize)
	if err != nil {
		return report, errors.Wrap(err, "listing failed sync statuses")
	}

	for _, status := range failed {
		if err := ctx.Err(); err != nil {
			return report, errors.WithStack(err)
		}

		report.Retried++

		env, err := s.marshaller.Unmarshal(status.Event)
		if err != nil {
			// a stored event which can't be decoded never succeeds, no attempts are left for it
			status.Status = SyncFailed
			status.RetryCount = s.maxRetries
			status.LastError = err.Error()
			status.UpdatedAt = s.now()
			s.save(ctx, status)
			report.Failed++
			continue
		}

		if s.apply(ctx, env, status.Event).Status == SyncSucceeded {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}

	if report.Retried > 0 {
		s.logger.Logf(log.InfoLevel, "retried %d failed syncs, %d succeeded", report.Retried, report.Succeeded)
	}

	return report, nil
}

// Reproject overwrites the read row with the current write side state of the order,
// even when the row claims a newer source.
func (s *Synchronizer) Reproject(ctx context.Context, orderID string) (*OrderRead, error) {
	return s.project(ctx, orderID, "", true)
}

func (s *Synchronizer) apply(ctx context.Context, env *message.Envelope, raw []byte) SyncStatus {
	status := SyncStatus{Status: SyncPending, Event: raw}

	if env != nil {
		status.OrderID = orderIDOf(env)
		status.EventID = env.EventID
		status.EventType = env.EventType
	}

	if status.OrderID == "" || status.EventID == "" {
		s.logger.Logf(log.ErrorLevel, "event %s of type %s has no order id, projection skipped", status.EventID, status.EventType)

		// kept for the operator report, a retry can't resolve the order either
		if status.OrderID == "" {
			status.OrderID = UnknownOrderID
		}
		status.Status = SyncFailed
		status.RetryCount = s.maxRetries
		status.LastError = "event has no order id"
		status.UpdatedAt = s.now()
		s.save(ctx, status)
		s.recorder.SyncOutcome(ctx, status.Status.String())

		return status
	}

	previous, err := s.statuses.Get(ctx, status.OrderID, status.EventID)
	if err != nil {
		s.logger.Logf(log.WarnLevel, "getting sync status of event %s of order %s. %s", status.EventID, status.OrderID, err)
	}

	if previous != nil {
		status.RetryCount = previous.RetryCount
	}

	status.UpdatedAt = s.now()
	if err := s.statuses.Save(ctx, status); err != nil {
		return s.fail(ctx, status, err)
	}

	if _, err := s.project(ctx, status.OrderID, status.EventID, false); err != nil {
		return s.fail(ctx, status, err)
	}

	status.Status = SyncSucceeded
	status.LastError = ""
	status.UpdatedAt = s.now()
	s.save(ctx, status)
	s.recorder.SyncOutcome(ctx, status.Status.String())

	return status
}

func (s *Synchronizer) fail(ctx context.Context, status SyncStatus, cause error) SyncStatus {
	s.logger.Logf(log.ErrorLevel, "syncing read model of order %s on event %s of type %s. %s", status.OrderID, status.EventID, status.EventType, cause)

	status.Status = SyncFailed
	status.RetryCount++
	status.LastError = cause.Error()
	status.UpdatedAt = s.now()
	s.save(ctx, status)
	s.recorder.SyncOutcome(ctx, status.Status.String())

	return status
}

func (s *Synchronizer) save(ctx context.Context, status SyncStatus) {
	if err := s.statuses.Save(ctx, status); err != nil {
		s.logger.Logf(log.ErrorLevel, "saving %s sync status of event %s of order %s. %s", status.Status, status.EventID, status.OrderID, err)
	}
}

func (s *Synchronizer) project(ctx context.Context, orderID, eventID string, overwrite bool) (*OrderRead, error) {
	lock, err := s.mutex.Lock(ctx, "readmodel:"+orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "locking read model of order %s", orderID)
	}

	defer func() {
		if err := lock.Release(ctx); err != nil {
			s.logger.Logf(log.ErrorLevel, "releasing lock of read model of order %s. %s", orderID, err)
		}
	}()

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "loading order %s", orderID)
	}

	existing, err := s.reads.Get(ctx, orderID)
	if err != nil && !errors.Is(err, ErrOrderNotFound) {
		return nil, errors.Wrapf(err, "loading read model of order %s", orderID)
	}

	row := Project(order, eventID, s.now())

	if existing != nil {
		if existing.SourceUpdatedAt.After(order.UpdatedAt) {
			// the row was projected from a newer state of the order, an event never moves it back
			if !overwrite {
				return existing, nil
			}

			s.logger.Logf(log.WarnLevel, "read model of order %s claims source %s newer than write side %s, overwriting", orderID, existing.SourceUpdatedAt, order.UpdatedAt)
		}

		if eventID == "" {
			row.LastEventID = existing.LastEventID
		}
	}

	if err := s.reads.Upsert(ctx, row); err != nil {
		return nil, err
	}

	return &row, nil
}

func orderIDOf(env *message.Envelope) string {
	if env.CorrelationID != "" {
		return env.CorrelationID
	}

	payload := struct {
		OrderID string `json:"orderId"`
	}{}

	if err := message.DecodePayload(env.Payload, &payload); err != nil {
		return ""
	}

	return payload.OrderID
}
