package consumer

import (
	"context"

	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/idempotency"
	"github.com/go-foreman/orderflow/log"
	"github.com/go-foreman/orderflow/metrics"
	"github.com/go-foreman/orderflow/mutex"
	"github.com/go-foreman/orderflow/pubsub/message"
)

// Idempotent skips messages whose event id is in the ledger under scope, usually the consumer name.
// Deliveries of the same event to the same scope are serialized with m, so concurrent duplicates see
// the ledger entry of the winner. The event is marked only after next succeeded.
func Idempotent(scope string, ledger idempotency.Ledger, m mutex.Mutex, logger log.Logger, recorder metrics.Recorder) Middleware {
	ledger = idempotency.Scoped(ledger, scope)

	lockPrefix := "event:"
	if scope != "" {
		lockPrefix += scope + "/"
	}

	return func(next Handler) Handler {
		return func(ctx context.Context, msg *message.ReceivedMessage) error {
			env := msg.Envelope
			if env == nil || env.EventID == "" {
				return NoRetry(errors.New("message has no event id"))
			}

			lock, err := m.Lock(ctx, lockPrefix+env.EventID)
			if err != nil {
				return errors.Wrapf(err, "locking event %s", env.EventID)
			}

			defer func() {
				if err := lock.Release(ctx); err != nil {
					logger.Logf(log.ErrorLevel, "releasing lock of event %s. %s", env.EventID, err)
				}
			}()

			duplicate, err := ledger.IsDuplicate(ctx, env.EventID)
			if err != nil {
				return errors.Wrapf(err, "checking ledger for event %s", env.EventID)
			}

			if duplicate {
				logger.Logf(log.InfoLevel, "event %s of type %s was already processed, skipped", env.EventID, env.EventType)
				recorder.EventConsumed(ctx, env.EventType, metrics.OutcomeDuplicate)
				return nil
			}

			if err := next(ctx, msg); err != nil {
				recorder.EventConsumed(ctx, env.EventType, metrics.OutcomeFailed)
				return err
			}

			if err := ledger.MarkProcessed(ctx, env.EventID); err != nil {
				return errors.Wrapf(err, "marking event %s", env.EventID)
			}

			recorder.EventConsumed(ctx, env.EventType, metrics.OutcomeProcessed)

			return nil
		}
	}
}
