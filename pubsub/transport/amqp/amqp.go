package amqp

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/go-foreman/orderflow/log"
	"github.com/go-foreman/orderflow/pubsub/transport"
)

// Dialer opens a connection to the broker
type Dialer func(url string, logger log.Logger) (AmqpConnection, error)

func defaultDialer(url string, logger log.Logger) (AmqpConnection, error) {
	return Dial(url, logger)
}

type Option func(t *amqpTransport)

// WithQueuePrefix sets prefix of durable queues, each consumed topic gets own queue "<prefix>.<topic>"
func WithQueuePrefix(prefix string) Option {
	return func(t *amqpTransport) {
		t.queuePrefix = prefix
	}
}

func WithDialer(dialer Dialer) Option {
	return func(t *amqpTransport) {
		t.dialer = dialer
	}
}

// NewTransport creates amqp transport. Every topic is a durable exchange of "topic" kind,
// a destination key becomes a routing key.
func NewTransport(url string, logger log.Logger, opts ...Option) transport.Transport {
	t := &amqpTransport{
		url:               url,
		logger:            logger,
		dialer:            defaultDialer,
		queuePrefix:       "orderflow",
		declaredExchanges: map[string]struct{}{},
	}

	for _, o := range opts {
		o(t)
	}

	return t
}

type amqpTransport struct {
	url               string
	queuePrefix       string
	dialer            Dialer
	connection        AmqpConnection
	publishingChannel AmqpChannel
	logger            log.Logger

	exchangesMutex    sync.Mutex
	declaredExchanges map[string]struct{}
}

func (t *amqpTransport) Connect(ctx context.Context) error {
	conn, err := t.dialer(t.url, t.logger)
	if err != nil {
		return errors.WithStack(err)
	}

	publishingChannel, err := conn.Channel()
	if err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			t.logger.Logf(log.ErrorLevel, "closing amqp connection. %s", closeErr)
		}
		return errors.Wrap(err, "creating publishing channel")
	}

	t.connection = conn
	t.publishingChannel = publishingChannel

	return nil
}

// declareExchange creates a durable topic exchange once per transport
func (t *amqpTransport) declareExchange(ch AmqpChannel, name string) error {
	t.exchangesMutex.Lock()
	defer t.exchangesMutex.Unlock()

	if _, declared := t.declaredExchanges[name]; declared {
		return nil
	}

	if err := ch.ExchangeDeclare(name, "topic", true, false, false, false, nil); err != nil {
		return errors.Wrapf(err, "declaring exchange %s", name)
	}

	t.declaredExchanges[name] = struct{}{}

	return nil
}

func (t *amqpTransport) queueName(topic string) string {
	return t.queuePrefix + "." + topic
}

func (t *amqpTransport) Send(ctx context.Context, outboundPkg transport.OutboundPkg, options ...transport.SendOpt) error {
	if err := t.checkConnection(); err != nil {
		return errors.WithStack(err)
	}

	sendOpts := &sendOptions{}

	for _, opt := range options {
		if err := opt(sendOpts); err != nil {
			return errors.WithStack(err)
		}
	}

	destination := outboundPkg.Destination()

	if err := t.declareExchange(t.publishingChannel, destination.DestinationTopic); err != nil {
		return errors.WithStack(err)
	}

	publishing := amqp.Publishing{
		Headers:      outboundPkg.Headers(),
		ContentType:  outboundPkg.ContentType(),
		Body:         outboundPkg.Payload(),
		DeliveryMode: amqp.Persistent,
		Priority:     sendOpts.Priority,
		Expiration:   sendOpts.Expiration,
		Timestamp:    time.Now(),
	}

	if id, ok := outboundPkg.Headers()["eventId"].(string); ok {
		publishing.MessageId = id
	}

	if err := t.publishingChannel.Publish(
		destination.DestinationTopic,
		destination.Key,
		sendOpts.Mandatory,
		false,
		publishing,
	); err != nil {
		return errors.Wrapf(err, "sending out pkg to %s", destination.DestinationTopic)
	}

	return nil
}

func (t *amqpTransport) Consume(ctx context.Context, topics []string, options ...transport.ConsumeOpt) (<-chan transport.IncomingPkg, error) {
	if err := t.checkConnection(); err != nil {
		return nil, errors.WithStack(err)
	}

	consumeOpts := &consumeOptions{}

	for _, opt := range options {
		if err := opt(consumeOpts); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	consumingChannel, err := t.connection.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "creating consuming channel")
	}

	if consumeOpts.PrefetchCount > 0 {
		if err := consumingChannel.Qos(int(consumeOpts.PrefetchCount), 0, false); err != nil {
			t.closeChannel(consumingChannel)
			return nil, errors.Wrap(err, "setting qos")
		}
	}

	income := make(chan transport.IncomingPkg)

	consumersWait := &sync.WaitGroup{}

	consumersCtx, cancelConsumers := context.WithCancel(ctx)

	abort := func() {
		// shuts down all goroutines previously created in the loop
		cancelConsumers()
		consumersWait.Wait()
		t.closeChannel(consumingChannel)
	}

	for _, topic := range topics {
		queue := t.queueName(topic)

		if err := t.bindQueue(consumingChannel, topic, queue); err != nil {
			abort()
			return nil, errors.WithStack(err)
		}

		consumerTag := consumeOpts.tag(queue)

		deliveries, err := consumingChannel.Consume(
			queue,
			consumerTag,
			false,
			consumeOpts.Exclusive,
			false,
			consumeOpts.NoWait,
			nil,
		)

		if err != nil {
			abort()
			return nil, errors.Wrapf(err, "consuming %s", queue)
		}

		consumersWait.Add(1)

		go func(topic, queue, consumerTag string, deliveries <-chan amqp.Delivery) {
			defer consumersWait.Done()

			defer func() {
				if err := consumingChannel.Cancel(consumerTag, true); err != nil {
					t.logger.Logf(log.ErrorLevel, "error canceling consumer %s. %s", consumerTag, err)
				} else {
					t.logger.Logf(log.InfoLevel, "canceled consumer %s", consumerTag)
				}
			}()

			for {
				select {
				case d, open := <-deliveries:
					if !open {
						t.logger.Logf(log.WarnLevel, "amqp consumer closed deliveries of queue %s", queue)
						return
					}

					select {
					case income <- &inAmqpPkg{topic: topic, receivedAt: time.Now(), delivery: d}:
					case <-consumersCtx.Done():
						return
					}
				case <-consumersCtx.Done():
					t.logger.Logf(log.InfoLevel, "canceled context. Stopped consuming queue %s", queue)
					return
				}
			}
		}(topic, queue, consumerTag, deliveries)
	}

	go func() {
		consumersWait.Wait()
		cancelConsumers()
		close(income)
		t.closeChannel(consumingChannel)
	}()

	return income, nil
}

func (t *amqpTransport) closeChannel(ch AmqpChannel) {
	if err := ch.Close(); err != nil {
		t.logger.Logf(log.ErrorLevel, "error closing amqp consuming channel. %s", err)
		return
	}

	t.logger.Log(log.InfoLevel, "closed amqp consuming channel")
}

func (t *amqpTransport) bindQueue(ch AmqpChannel, topic, queue string) error {
	if err := t.declareExchange(ch, topic); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return errors.Wrapf(err, "declaring queue %s", queue)
	}

	if err := ch.QueueBind(queue, "#", topic, false, nil); err != nil {
		return errors.Wrapf(err, "binding queue %s to %s", queue, topic)
	}

	return nil
}

func (t *amqpTransport) Disconnect(ctx context.Context) error {
	if t.connection == nil || t.publishingChannel == nil {
		return nil
	}

	if err := t.publishingChannel.Close(); err != nil {
		return errors.Wrap(err, "error closing publishing channel")
	}

	if err := t.connection.Close(); err != nil {
		return errors.Wrap(err, "error closing connection")
	}

	t.connection = nil
	t.publishingChannel = nil

	return nil
}

func (t *amqpTransport) checkConnection() error {
	if t.connection == nil {
		return errors.New("connection wasn't established. Use transport.Connect first")
	}

	return nil
}
