package orderflow

import (
	"context"

	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/consumer"
	"github.com/go-foreman/orderflow/idempotency"
	"github.com/go-foreman/orderflow/log"
	"github.com/go-foreman/orderflow/metrics"
	"github.com/go-foreman/orderflow/mutex"
	"github.com/go-foreman/orderflow/pubsub/dispatcher"
	"github.com/go-foreman/orderflow/pubsub/endpoint"
	"github.com/go-foreman/orderflow/pubsub/message"
	"github.com/go-foreman/orderflow/pubsub/subscriber"
	"github.com/go-foreman/orderflow/pubsub/transport"
	"github.com/go-foreman/orderflow/runtime/scheme"
)

const DefaultDeadLetterTopic = "orderflow.dead_letter"

// Component allow to wrap and prepare booting of your component, which will be initialized by MessageBus
type Component interface {
	Init(b *MessageBus) error
}

// ConfigOption allows to configure MessageBus's container
type ConfigOption func(o *container)

type container struct {
	scheme          scheme.KnownTypesRegistry
	marshaller      message.Marshaller
	dispatcher      dispatcher.Dispatcher
	router          endpoint.Router
	ledger          idempotency.Ledger
	mutex           mutex.Mutex
	policy          *consumer.Policy
	retryOpts       []consumer.RetryOption
	deadLetterer    consumer.DeadLetterer
	deadLetterTopic string
	recorder        metrics.Recorder
	subscriberOpts  []subscriber.Opt
	components      []Component
}

// WithComponents specifies a list of additional components you want to be registered in MessageBus
func WithComponents(components ...Component) ConfigOption {
	return func(c *container) {
		c.components = append(c.components, components...)
	}
}

// WithSchemeRegistry allows to specify scheme scheme.KnownTypesRegistry
func WithSchemeRegistry(scheme scheme.KnownTypesRegistry) ConfigOption {
	return func(c *container) {
		c.scheme = scheme
	}
}

// WithRouter allows to provide another endpoint.Router implementation
func WithRouter(router endpoint.Router) ConfigOption {
	return func(c *container) {
		c.router = router
	}
}

// WithDispatcher allows to provide another dispatcher.Dispatcher implementation
func WithDispatcher(dispatcher dispatcher.Dispatcher) ConfigOption {
	return func(c *container) {
		c.dispatcher = dispatcher
	}
}

// WithLedger sets the idempotency ledger shared by all consumers, in-memory one is used by default
func WithLedger(ledger idempotency.Ledger) ConfigOption {
	return func(c *container) {
		c.ledger = ledger
	}
}

// WithMutex sets the mutex serializing deliveries of the same event
func WithMutex(m mutex.Mutex) ConfigOption {
	return func(c *container) {
		c.mutex = m
	}
}

func WithRetryPolicy(policy consumer.Policy, opts ...consumer.RetryOption) ConfigOption {
	return func(c *container) {
		c.policy = &policy
		c.retryOpts = append(c.retryOpts, opts...)
	}
}

// WithDeadLetterer replaces publishing of dead letters to DefaultDeadLetterTopic
func WithDeadLetterer(deadLetterer consumer.DeadLetterer) ConfigOption {
	return func(c *container) {
		c.deadLetterer = deadLetterer
	}
}

func WithDeadLetterTopic(topic string) ConfigOption {
	return func(c *container) {
		c.deadLetterTopic = topic
	}
}

func WithRecorder(recorder metrics.Recorder) ConfigOption {
	return func(c *container) {
		c.recorder = recorder
	}
}

// WithSubscriberOpts configures the default subscriber
func WithSubscriberOpts(opts ...subscriber.Opt) ConfigOption {
	return func(c *container) {
		c.subscriberOpts = append(c.subscriberOpts, opts...)
	}
}

// MessageBus is a main component, kind of a container which aggregates other components
type MessageBus struct {
	logger       log.Logger
	transport    transport.Transport
	scheme       scheme.KnownTypesRegistry
	marshaller   message.Marshaller
	dispatcher   dispatcher.Dispatcher
	router       endpoint.Router
	publisher    endpoint.Publisher
	ledger       idempotency.Ledger
	mutex        mutex.Mutex
	retry        consumer.Middleware
	deadLetterer consumer.DeadLetterer
	recorder     metrics.Recorder
	subscriber   subscriber.Subscriber
}

// NewMessageBus constructs MessageBus on top of transport t. Every handler subscribed through the bus
// is wrapped into the consumer chain: bounded retries with dead lettering around duplicate suppression.
func NewMessageBus(logger log.Logger, t transport.Transport, configOpts ...ConfigOption) (*MessageBus, error) {
	if t == nil {
		return nil, errors.New("transport is nil")
	}

	opts := &container{}
	for _, config := range configOpts {
		config(opts)
	}

	if opts.scheme == nil {
		opts.scheme = scheme.NewKnownTypesRegistry()
	}

	if opts.marshaller == nil {
		opts.marshaller = message.NewJsonMarshaller(opts.scheme)
	}

	if opts.dispatcher == nil {
		opts.dispatcher = dispatcher.NewDispatcher()
	}

	if opts.router == nil {
		opts.router = endpoint.NewRouter()
	}

	if opts.ledger == nil {
		opts.ledger = idempotency.NewMemoryLedger()
	}

	if opts.mutex == nil {
		opts.mutex = mutex.NewInProcessMutex()
	}

	if opts.policy == nil {
		policy := consumer.DefaultPolicy()
		opts.policy = &policy
	}

	if opts.recorder == nil {
		opts.recorder = metrics.Noop{}
	}

	if opts.deadLetterer == nil {
		topic := opts.deadLetterTopic
		if topic == "" {
			topic = DefaultDeadLetterTopic
		}

		opts.deadLetterer = consumer.NewDeadLetterPublisher(t, topic, opts.marshaller)
	}

	b := &MessageBus{
		logger:       logger,
		transport:    t,
		scheme:       opts.scheme,
		marshaller:   opts.marshaller,
		dispatcher:   opts.dispatcher,
		router:       opts.router,
		publisher:    endpoint.NewPublisher(opts.router),
		ledger:       opts.ledger,
		mutex:        opts.mutex,
		retry:        consumer.WithRetry(*opts.policy, opts.deadLetterer, logger, opts.recorder, opts.retryOpts...),
		deadLetterer: opts.deadLetterer,
		recorder:     opts.recorder,
	}

	processor := subscriber.NewMessageProcessor(b.marshaller, b.dispatcher, b.deadLetterer, logger)
	b.subscriber = subscriber.NewSubscriber(t, processor, logger, opts.subscriberOpts...)

	for _, component := range opts.components {
		if err := component.Init(b); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// Subscribe registers handler of consumerName for eventType. The handler is wrapped into the consumer chain,
// duplicates are tracked per consumer, so another consumer of the same event still gets it.
func (b *MessageBus) Subscribe(consumerName, eventType string, handler consumer.Handler) {
	b.dispatcher.Subscribe(eventType, consumerName, b.Consumer(consumerName, handler))
}

// Consumer wraps handler into the consumer chain without subscribing it
func (b *MessageBus) Consumer(consumerName string, handler consumer.Handler) consumer.Handler {
	return consumer.Chain(
		handler,
		b.retry,
		consumer.Idempotent(consumerName, b.ledger, b.mutex, b.logger, b.recorder),
	)
}

// RouteToTopic sends envelopes of eventTypes published through Publisher to topic of the bus transport
func (b *MessageBus) RouteToTopic(topic string, eventTypes ...string) {
	b.router.RegisterEndpoint(endpoint.NewTransportEndpoint(topic, b.transport, topic, b.marshaller), eventTypes...)
}

// Run consumes topics until ctx is done or a termination signal is received. The transport must be connected.
func (b *MessageBus) Run(ctx context.Context, topics ...string) error {
	return b.subscriber.Run(ctx, topics...)
}

// Dispatcher returns an instance of dispatcher.Dispatcher
func (b *MessageBus) Dispatcher() dispatcher.Dispatcher {
	return b.dispatcher
}

// Router returns an instance of endpoint.Router
func (b *MessageBus) Router() endpoint.Router {
	return b.router
}

func (b *MessageBus) Publisher() endpoint.Publisher {
	return b.publisher
}

// SchemeRegistry returns an instance of current scheme.KnownTypesRegistry which should contain all the types of events MB works with
func (b *MessageBus) SchemeRegistry() scheme.KnownTypesRegistry {
	return b.scheme
}

func (b *MessageBus) Marshaller() message.Marshaller {
	return b.marshaller
}

// Subscriber returns an instance of subscriber.Subscriber which controls the main flow of messages
func (b *MessageBus) Subscriber() subscriber.Subscriber {
	return b.subscriber
}

func (b *MessageBus) Transport() transport.Transport {
	return b.transport
}

// Logger returns an instance of logger
func (b *MessageBus) Logger() log.Logger {
	return b.logger
}
