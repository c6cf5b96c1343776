package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/go-foreman/orderflow/log"
)

const meterName = "orderflow"

// Outcomes of consumed events
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
)

// Recorder records orderflow metrics.
// Use NewRecorder for OTel metrics or Noop{} when disabled.
type Recorder interface {
	EventConsumed(ctx context.Context, eventType, outcome string)
	RetryAttempt(ctx context.Context, eventType string, attempt int)
	DeadLettered(ctx context.Context, eventType string)
	SagaTransition(ctx context.Context, sagaType, from, to string)
	SyncOutcome(ctx context.Context, status string)
	RepairRun(ctx context.Context, divergent, repaired int)
}

type otelRecorder struct {
	eventsConsumed  metric.Int64Counter
	retryAttempts   metric.Int64Counter
	deadLettered    metric.Int64Counter
	sagaTransitions metric.Int64Counter
	syncOutcomes    metric.Int64Counter
	repairDivergent metric.Int64Histogram
	repairRepaired  metric.Int64Counter
}

// NewRecorder creates OTel backed Recorder from meter
func NewRecorder(meter metric.Meter) (Recorder, error) {
	r := &otelRecorder{}

	var err error

	if r.eventsConsumed, err = meter.Int64Counter("orderflow.events.consumed",
		metric.WithDescription("Number of consumed events by outcome"),
	); err != nil {
		return nil, err
	}

	if r.retryAttempts, err = meter.Int64Counter("orderflow.events.retries",
		metric.WithDescription("Number of redelivery attempts"),
	); err != nil {
		return nil, err
	}

	if r.deadLettered, err = meter.Int64Counter("orderflow.events.dead_lettered",
		metric.WithDescription("Number of events routed to the dead-letter channel"),
	); err != nil {
		return nil, err
	}

	if r.sagaTransitions, err = meter.Int64Counter("orderflow.saga.transitions",
		metric.WithDescription("Number of saga status transitions"),
	); err != nil {
		return nil, err
	}

	if r.syncOutcomes, err = meter.Int64Counter("orderflow.readmodel.sync",
		metric.WithDescription("Read model synchronization outcomes"),
	); err != nil {
		return nil, err
	}

	if r.repairDivergent, err = meter.Int64Histogram("orderflow.repair.divergent",
		metric.WithDescription("Number of divergent orders found by a repair run"),
	); err != nil {
		return nil, err
	}

	if r.repairRepaired, err = meter.Int64Counter("orderflow.repair.repaired",
		metric.WithDescription("Number of read rows re-projected by repair runs"),
	); err != nil {
		return nil, err
	}

	return r, nil
}

// NewGlobalRecorder uses the global OTel meter provider. If initialization fails a no-op recorder is returned.
func NewGlobalRecorder(logger log.Logger) Recorder {
	r, err := NewRecorder(otel.Meter(meterName))
	if err != nil {
		logger.Logf(log.WarnLevel, "metrics initialization failed, using no-op recorder. %s", err)
		return Noop{}
	}

	return r
}

func (r *otelRecorder) EventConsumed(ctx context.Context, eventType, outcome string) {
	r.eventsConsumed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("outcome", outcome),
	))
}

func (r *otelRecorder) RetryAttempt(ctx context.Context, eventType string, attempt int) {
	r.retryAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.Int("attempt", attempt),
	))
}

func (r *otelRecorder) DeadLettered(ctx context.Context, eventType string) {
	r.deadLettered.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}

func (r *otelRecorder) SagaTransition(ctx context.Context, sagaType, from, to string) {
	r.sagaTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("saga_type", sagaType),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func (r *otelRecorder) SyncOutcome(ctx context.Context, status string) {
	r.syncOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (r *otelRecorder) RepairRun(ctx context.Context, divergent, repaired int) {
	r.repairDivergent.Record(ctx, int64(divergent))
	r.repairRepaired.Add(ctx, int64(repaired))
}

// Noop discards everything
type Noop struct{}

func (Noop) EventConsumed(context.Context, string, string)          {}
func (Noop) RetryAttempt(context.Context, string, int)              {}
func (Noop) DeadLettered(context.Context, string)                   {}
func (Noop) SagaTransition(context.Context, string, string, string) {}
func (Noop) SyncOutcome(context.Context, string)                    {}
func (Noop) RepairRun(context.Context, int, int)                    {}
