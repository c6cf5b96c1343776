package orderflow

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

	"github.com/go-foreman/orderflow/consumer"
	"github.com/go-foreman/orderflow/idempotency"
	"github.com/go-foreman/orderflow/metrics"
	"github.com/go-foreman/orderflow/mutex"
	"github.com/go-foreman/orderflow/pubsub/message"
	"github.com/go-foreman/orderflow/pubsub/transport/memory"
	"github.com/go-foreman/orderflow/runtime/scheme"
	testLog "github.com/go-foreman/orderflow/testing/log"
	endpointMock "github.com/go-foreman/orderflow/testing/mocks/pubsub/endpoint"
)

type aComponent struct {
	err   error
	inits int
}

func (a *aComponent) Init(b *MessageBus) error {
	a.inits++
	return a.err
}

func TestMessageBusConfigOptions(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	routerMock := endpointMock.NewMockRouter(ctrl)
	registry := scheme.NewKnownTypesRegistry()
	ledger := idempotency.NewMemoryLedger()
	m := mutex.NewInProcessMutex()
	deadLetters := consumer.NewMemoryDeadLetters()
	component := &aComponent{}
	policy := consumer.Policy{MaxAttempts: 5}

	c := &container{}

	opts := []ConfigOption{
		WithRouter(routerMock),
		WithSchemeRegistry(registry),
		WithLedger(ledger),
		WithMutex(m),
		WithRetryPolicy(policy),
		WithDeadLetterer(deadLetters),
		WithDeadLetterTopic("dlq"),
		WithRecorder(metrics.Noop{}),
		WithComponents(component),
	}

	for _, o := range opts {
		o(c)
	}

	assert.Same(t, routerMock, c.router)
	assert.Same(t, ledger, c.ledger)
	assert.Same(t, deadLetters, c.deadLetterer)
	assert.Equal(t, registry, c.scheme)
	assert.Equal(t, m, c.mutex)
	assert.Equal(t, &policy, c.policy)
	assert.Equal(t, "dlq", c.deadLetterTopic)
	assert.Equal(t, metrics.Noop{}, c.recorder)
	assert.Equal(t, []Component{component}, c.components)
}

func TestMessageBusConstructor(t *testing.T) {
	logger := testLog.NewNilLogger()

	t.Run("transport is required", func(t *testing.T) {
		_, err := NewMessageBus(logger, nil)
		assert.EqualError(t, err, "transport is nil")
	})

	t.Run("component error", func(t *testing.T) {
		good := &aComponent{}
		bad := &aComponent{err: errors.New("component error")}

		mBus, err := NewMessageBus(logger, memory.NewTransport(), WithComponents(good, bad))
		assert.EqualError(t, err, "component error")
		assert.Nil(t, mBus)
		assert.Equal(t, 1, good.inits)
	})

	t.Run("defaults", func(t *testing.T) {
		tr := memory.NewTransport()
		registry := scheme.NewKnownTypesRegistry()

		mBus, err := NewMessageBus(logger, tr, WithSchemeRegistry(registry))
		require.NoError(t, err)

		assert.Same(t, logger, mBus.Logger())
		assert.Same(t, tr, mBus.Transport())
		assert.Equal(t, registry, mBus.SchemeRegistry())
		assert.NotNil(t, mBus.Marshaller())
		assert.NotNil(t, mBus.Dispatcher())
		assert.NotNil(t, mBus.Router())
		assert.NotNil(t, mBus.Publisher())
		assert.NotNil(t, mBus.Subscriber())
		assert.IsType(t, metrics.Noop{}, mBus.recorder)
		assert.IsType(t, &idempotency.MemoryLedger{}, mBus.ledger)
	})
}

type countingHandler struct {
	calls int32
	err   error
}

func (h *countingHandler) handle(ctx context.Context, msg *message.ReceivedMessage) error {
	atomic.AddInt32(&h.calls, 1)
	return h.err
}

func (h *countingHandler) Calls() int {
	return int(atomic.LoadInt32(&h.calls))
}

func runBus(t *testing.T, mBus *MessageBus, topics ...string) {
	ctx, cancel := context.WithCancel(context.Background())
	wg := sync.WaitGroup{}
	wg.Add(1)

	go func() {
		defer wg.Done()
		_ = mBus.Run(ctx, topics...)
	}()

	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
}

func TestMessageBusConsumers(t *testing.T) {
	ctx := context.Background()

	tr := memory.NewTransport()
	require.NoError(t, tr.Connect(ctx))

	ledger := idempotency.NewMemoryLedger()
	deadLetters := consumer.NewMemoryDeadLetters()

	mBus, err := NewMessageBus(testLog.NewNilLogger(), tr,
		WithLedger(ledger),
		WithDeadLetterer(deadLetters),
		WithRetryPolicy(consumer.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond}, consumer.WithSleep(func(ctx context.Context, d time.Duration) error {
			return nil
		})),
	)
	require.NoError(t, err)

	mBus.RouteToTopic("orders", "order.created", "order.cancelled")

	billing := &countingHandler{}
	shipping := &countingHandler{}
	broken := &countingHandler{err: errors.New("db down")}

	mBus.Subscribe("billing", "order.created", billing.handle)
	mBus.Subscribe("shipping", "order.created", shipping.handle)
	mBus.Subscribe("audit", "order.cancelled", broken.handle)

	runBus(t, mBus, "orders")

	created := message.NewEnvelope("order.created", "o-1", map[string]interface{}{"orderId": "o-1"}, message.WithEventID("evt-1"))

	t.Run("duplicates reach every consumer once", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			require.NoError(t, mBus.Publisher().Publish(ctx, created))
		}

		require.Eventually(t, func() bool {
			return len(tr.Acked()) >= 3
		}, time.Second*5, time.Millisecond*10)

		assert.Equal(t, 1, billing.Calls())
		assert.Equal(t, 1, shipping.Calls())
		assert.Equal(t, 1, ledger.MarkCount("billing/evt-1"))
	})

	t.Run("failing consumer is dead lettered once", func(t *testing.T) {
		cancelled := message.NewEnvelope("order.cancelled", "o-1", map[string]interface{}{"orderId": "o-1"}, message.WithEventID("evt-2"))
		require.NoError(t, mBus.Publisher().Publish(ctx, cancelled))

		require.Eventually(t, func() bool {
			return len(deadLetters.Letters()) == 1
		}, time.Second*5, time.Millisecond*10)

		assert.Equal(t, 3, broken.Calls())

		letter := deadLetters.Letters()[0]
		assert.Equal(t, "evt-2", letter.Envelope.EventID)
		assert.Equal(t, "orders", letter.OriginalTopic)
		assert.Equal(t, 3, letter.Attempts)
		assert.Equal(t, "db down", letter.FailureReason)
	})
}
