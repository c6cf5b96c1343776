package consumer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-foreman/orderflow/idempotency"
	"github.com/go-foreman/orderflow/metrics"
	"github.com/go-foreman/orderflow/mutex"
	"github.com/go-foreman/orderflow/pubsub/message"
	"github.com/go-foreman/orderflow/pubsub/transport"
	"github.com/go-foreman/orderflow/testing/log"
	mockIdempotency "github.com/go-foreman/orderflow/testing/mocks/idempotency"
)

func receivedMsg(eventID string) *message.ReceivedMessage {
	env := message.NewEnvelope("inventory.reserved", "order-1", map[string]interface{}{"orderId": "order-1"}, message.WithEventID(eventID))

	return message.NewReceivedMessage(env, transport.Origin{Topic: "inventory", Partition: 2, Offset: 17, Key: "order-1"}, []byte(`{"raw":true}`))
}

func noSleep(sleeps *[]time.Duration) RetryOption {
	return WithSleep(func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	})
}

func TestChain(t *testing.T) {
	var calls []string

	mw := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, msg *message.ReceivedMessage) error {
				calls = append(calls, name)
				return next(ctx, msg)
			}
		}
	}

	h := Chain(func(ctx context.Context, msg *message.ReceivedMessage) error {
		calls = append(calls, "handler")
		return nil
	}, mw("outer"), mw("inner"))

	require.NoError(t, h(context.Background(), receivedMsg("evt-1")))
	assert.Equal(t, []string{"outer", "inner", "handler"}, calls)
}

type keyRecordingMutex struct {
	mutex.Mutex
	keys []string
}

func (m *keyRecordingMutex) Lock(ctx context.Context, key string) (mutex.Lock, error) {
	m.keys = append(m.keys, key)
	return m.Mutex.Lock(ctx, key)
}

func TestIdempotent(t *testing.T) {
	ctx := context.Background()

	t.Run("n deliveries produce one effect", func(t *testing.T) {
		ledger := idempotency.NewMemoryLedger()
		logger := log.NewNilLogger()
		var effects int32

		h := Chain(func(ctx context.Context, msg *message.ReceivedMessage) error {
			atomic.AddInt32(&effects, 1)
			return nil
		}, Idempotent("", ledger, mutex.NewInProcessMutex(), logger, metrics.Noop{}))

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, h(ctx, receivedMsg("evt-1")))
			}()
		}
		wg.Wait()

		assert.EqualValues(t, 1, atomic.LoadInt32(&effects))
		assert.Equal(t, 1, ledger.MarkCount("evt-1"))
		assert.True(t, logger.Contains("event evt-1 of type inventory.reserved was already processed, skipped"))
	})

	t.Run("failed handler leaves event unmarked", func(t *testing.T) {
		ledger := idempotency.NewMemoryLedger()

		h := Chain(func(ctx context.Context, msg *message.ReceivedMessage) error {
			return errors.New("inventory service unavailable")
		}, Idempotent("", ledger, mutex.NewInProcessMutex(), log.NewNilLogger(), metrics.Noop{}))

		err := h(ctx, receivedMsg("evt-1"))
		assert.EqualError(t, err, "inventory service unavailable")
		assert.Equal(t, 0, ledger.MarkCount("evt-1"))
	})

	t.Run("message without event id", func(t *testing.T) {
		h := Chain(func(ctx context.Context, msg *message.ReceivedMessage) error {
			t.Fatal("must not be called")
			return nil
		}, Idempotent("", idempotency.NewMemoryLedger(), mutex.NewInProcessMutex(), log.NewNilLogger(), metrics.Noop{}))

		msg := receivedMsg("evt-1")
		msg.Envelope.EventID = ""

		err := h(ctx, msg)
		assert.True(t, IsNoRetry(err))
	})

	t.Run("consumers of the same event don't share lock or ledger entry", func(t *testing.T) {
		ledger := idempotency.NewMemoryLedger()
		locks := &keyRecordingMutex{Mutex: mutex.NewInProcessMutex()}
		var effects []string

		handler := func(name string) Handler {
			return Chain(func(ctx context.Context, msg *message.ReceivedMessage) error {
				effects = append(effects, name)
				return nil
			}, Idempotent(name, ledger, locks, log.NewNilLogger(), metrics.Noop{}))
		}

		billing, shipping := handler("billing"), handler("shipping")

		require.NoError(t, billing(ctx, receivedMsg("evt-1")))
		require.NoError(t, shipping(ctx, receivedMsg("evt-1")))
		require.NoError(t, billing(ctx, receivedMsg("evt-1")))

		assert.Equal(t, []string{"billing", "shipping"}, effects)
		assert.Equal(t, []string{"event:billing/evt-1", "event:shipping/evt-1", "event:billing/evt-1"}, locks.keys)
		assert.Equal(t, 1, ledger.MarkCount("billing/evt-1"))
		assert.Equal(t, 1, ledger.MarkCount("shipping/evt-1"))
	})

	t.Run("ledger errors", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		ledger := mockIdempotency.NewMockLedger(ctrl)
		var handled int

		h := Chain(func(ctx context.Context, msg *message.ReceivedMessage) error {
			handled++
			return nil
		}, Idempotent("", ledger, mutex.NewInProcessMutex(), log.NewNilLogger(), metrics.Noop{}))

		ledger.EXPECT().IsDuplicate(gomock.Any(), "evt-1").Return(false, errors.New("db down"))

		err := h(ctx, receivedMsg("evt-1"))
		assert.EqualError(t, err, "checking ledger for event evt-1: db down")
		assert.Equal(t, 0, handled)

		ledger.EXPECT().IsDuplicate(gomock.Any(), "evt-2").Return(false, nil)
		ledger.EXPECT().MarkProcessed(gomock.Any(), "evt-2").Return(errors.New("db down"))

		err = h(ctx, receivedMsg("evt-2"))
		assert.EqualError(t, err, "marking event evt-2: db down")
		assert.Equal(t, 1, handled)
	})
}

func TestPolicyDelay(t *testing.T) {
	p := Policy{MaxAttempts: 5, InitialDelay: time.Second, Multiplier: 2, MaxDelay: time.Second * 5}

	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, time.Second*2, p.Delay(2))
	assert.Equal(t, time.Second*4, p.Delay(3))
	assert.Equal(t, time.Second*5, p.Delay(4))
	assert.Equal(t, time.Second*5, p.Delay(60))

	assert.Equal(t, DefaultPolicy(), Policy{MaxAttempts: 3, InitialDelay: time.Second, Multiplier: 2, MaxDelay: time.Second * 30})
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("always failing handler is dead lettered once", func(t *testing.T) {
		deadLetters := NewMemoryDeadLetters()
		var sleeps []time.Duration
		var calls int

		h := Chain(func(ctx context.Context, msg *message.ReceivedMessage) error {
			calls++
			return errors.New("payment gateway timeout")
		}, WithRetry(DefaultPolicy(), deadLetters, log.NewNilLogger(), metrics.Noop{}, noSleep(&sleeps)))

		msg := receivedMsg("evt-1")
		require.NoError(t, h(ctx, msg))

		assert.Equal(t, 3, calls)
		assert.Equal(t, []time.Duration{time.Second, time.Second * 2}, sleeps)

		letters := deadLetters.Letters()
		require.Len(t, letters, 1)
		assert.Equal(t, "payment gateway timeout", letters[0].FailureReason)
		assert.Equal(t, 3, letters[0].Attempts)
		assert.Equal(t, "inventory", letters[0].OriginalTopic)
		assert.Equal(t, 2, letters[0].OriginalPartition)
		assert.EqualValues(t, 17, letters[0].OriginalOffset)
		assert.Equal(t, []byte(`{"raw":true}`), letters[0].Raw)
		assert.Same(t, msg.Envelope, letters[0].Envelope)
	})

	t.Run("recovers on a later attempt", func(t *testing.T) {
		deadLetters := NewMemoryDeadLetters()
		var sleeps []time.Duration
		var calls int

		h := Chain(func(ctx context.Context, msg *message.ReceivedMessage) error {
			calls++
			if calls < 2 {
				return errors.New("transient")
			}
			return nil
		}, WithRetry(DefaultPolicy(), deadLetters, log.NewNilLogger(), metrics.Noop{}, noSleep(&sleeps)))

		require.NoError(t, h(ctx, receivedMsg("evt-1")))
		assert.Equal(t, 2, calls)
		assert.Len(t, sleeps, 1)
		assert.Empty(t, deadLetters.Letters())
	})

	t.Run("non retryable error goes straight to dead letter", func(t *testing.T) {
		deadLetters := NewMemoryDeadLetters()
		var sleeps []time.Duration
		var calls int

		h := Chain(func(ctx context.Context, msg *message.ReceivedMessage) error {
			calls++
			return NoRetry(errors.New("malformed payload"))
		}, WithRetry(DefaultPolicy(), deadLetters, log.NewNilLogger(), metrics.Noop{}, noSleep(&sleeps)))

		require.NoError(t, h(ctx, receivedMsg("evt-1")))
		assert.Equal(t, 1, calls)
		assert.Empty(t, sleeps)

		letters := deadLetters.Letters()
		require.Len(t, letters, 1)
		assert.Equal(t, 1, letters[0].Attempts)
		assert.Equal(t, "malformed payload", letters[0].FailureReason)
	})

	t.Run("canceled while waiting", func(t *testing.T) {
		deadLetters := NewMemoryDeadLetters()

		h := Chain(func(ctx context.Context, msg *message.ReceivedMessage) error {
			return errors.New("transient")
		}, WithRetry(DefaultPolicy(), deadLetters, log.NewNilLogger(), metrics.Noop{}, WithSleep(func(ctx context.Context, d time.Duration) error {
			return context.Canceled
		})))

		err := h(ctx, receivedMsg("evt-1"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "waiting for attempt 2 of event evt-1 of type inventory.reserved interrupted: context canceled")
		assert.Empty(t, deadLetters.Letters())
	})

	t.Run("dead lettered event is not marked processed", func(t *testing.T) {
		deadLetters := NewMemoryDeadLetters()
		ledger := idempotency.NewMemoryLedger()
		var sleeps []time.Duration

		h := Chain(
			func(ctx context.Context, msg *message.ReceivedMessage) error {
				return errors.New("always")
			},
			WithRetry(DefaultPolicy(), deadLetters, log.NewNilLogger(), metrics.Noop{}, noSleep(&sleeps)),
			Idempotent("", ledger, mutex.NewInProcessMutex(), log.NewNilLogger(), metrics.Noop{}),
		)

		require.NoError(t, h(ctx, receivedMsg("evt-1")))
		assert.Len(t, deadLetters.Letters(), 1)
		assert.Equal(t, 0, ledger.MarkCount("evt-1"))
	})
}
