package consumer

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/log"
	"github.com/go-foreman/orderflow/metrics"
	"github.com/go-foreman/orderflow/pubsub/message"
)

// Policy bounds redelivery of a failing message
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		Multiplier:   2,
		MaxDelay:     time.Second * 30,
	}
}

// Delay returns the wait after the failed attempt, attempt is one-based.
// Each next delay is Multiplier times the previous one, capped by MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := time.Duration(float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1)))

	if p.MaxDelay > 0 && (delay > p.MaxDelay || delay < 0) {
		delay = p.MaxDelay
	}

	return delay
}

// NoRetryErr sends a message to the dead letter channel without further attempts
type NoRetryErr struct {
	error
}

func NoRetry(err error) error {
	return NoRetryErr{err}
}

func (e NoRetryErr) Unwrap() error {
	return e.error
}

func IsNoRetry(err error) bool {
	var noRetry NoRetryErr
	return errors.As(err, &noRetry)
}

type SleepFunc func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type retryOptions struct {
	sleep SleepFunc
}

type RetryOption func(o *retryOptions)

// WithSleep replaces waiting between attempts, mostly used in tests
func WithSleep(sleep SleepFunc) RetryOption {
	return func(o *retryOptions) {
		o.sleep = sleep
	}
}

// WithRetry runs next up to policy.MaxAttempts times. When the attempts are exhausted or next returned NoRetryErr
// exactly one DeadLetter is published and nil is returned, so the delivery is acknowledged.
// An error is returned only when ctx is done while waiting or the dead letter can't be published.
func WithRetry(policy Policy, deadLetterer DeadLetterer, logger log.Logger, recorder metrics.Recorder, opts ...RetryOption) Middleware {
	o := &retryOptions{sleep: sleep}
	for _, opt := range opts {
		opt(o)
	}

	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	return func(next Handler) Handler {
		return func(ctx context.Context, msg *message.ReceivedMessage) error {
			var (
				err      error
				attempt  int
				eventRef = describe(msg)
			)

			for attempt = 1; attempt <= policy.MaxAttempts; attempt++ {
				if err = next(ctx, msg); err == nil {
					return nil
				}

				if IsNoRetry(err) {
					logger.Logf(log.WarnLevel, "%s failed with non retryable error. %s", eventRef, err)
					break
				}

				if attempt == policy.MaxAttempts {
					break
				}

				delay := policy.Delay(attempt)
				logger.Logf(log.WarnLevel, "attempt %d of %d for %s failed, retrying in %s. %s", attempt, policy.MaxAttempts, eventRef, delay, err)
				recorder.RetryAttempt(ctx, eventType(msg), attempt+1)

				if sleepErr := o.sleep(ctx, delay); sleepErr != nil {
					return errors.Wrapf(err, "waiting for attempt %d of %s interrupted: %s", attempt+1, eventRef, sleepErr)
				}
			}

			dl := message.NewDeadLetter(msg, err.Error(), attempt)

			if dlErr := deadLetterer.DeadLetter(ctx, dl); dlErr != nil {
				return errors.Wrapf(dlErr, "dead lettering %s after %d attempts", eventRef, attempt)
			}

			logger.Logf(log.ErrorLevel, "%s moved to the dead letter channel after %d attempts. %s", eventRef, attempt, err)
			recorder.DeadLettered(ctx, eventType(msg))

			return nil
		}
	}
}

func eventType(msg *message.ReceivedMessage) string {
	if msg.Envelope == nil {
		return ""
	}

	return msg.Envelope.EventType
}

func describe(msg *message.ReceivedMessage) string {
	if msg.Envelope == nil {
		return "message from " + msg.Origin.String()
	}

	return "event " + msg.Envelope.EventID + " of type " + msg.Envelope.EventType
}
