package amqp

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/go-foreman/orderflow/log"
)

const (
	delay          = time.Second * 3 // reconnect after delay
	reconnectCount = 20
)

// UnderlyingDialer dials a broker. amqp.Dial is used by default
type UnderlyingDialer func(url string) (UnderlyingConnection, error)

func amqpDial(url string) (UnderlyingConnection, error) {
	return amqp.Dial(url)
}

// Dial opens a connection which reconnects after the broker closes it with an error
func Dial(url string, logger log.Logger) (*Connection, error) {
	return dial(url, amqpDial, delay, logger)
}

func dial(url string, dialer UnderlyingDialer, reconnectDelay time.Duration, logger log.Logger) (*Connection, error) {
	underlying, err := dialer(url)
	if err != nil {
		return nil, errors.Wrap(err, "dialing amqp broker")
	}

	c := &Connection{
		url:                 url,
		dial:                dialer,
		logger:              logger,
		underlying:          underlying,
		chReconnectionDelay: reconnectDelay,
	}

	go c.watch()

	return c, nil
}

// Connection swaps an underlying connection when the broker drops it. Channels opened from it reopen themselves.
type Connection struct {
	url                 string
	dial                UnderlyingDialer
	logger              log.Logger
	mutex               sync.RWMutex
	underlying          UnderlyingConnection
	chReconnectionDelay time.Duration
	closed              int32
}

func (c *Connection) current() UnderlyingConnection {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.underlying
}

func (c *Connection) watch() {
	for {
		reason, ok := <-c.current().NotifyClose(make(chan *amqp.Error, 1))
		// exit if closed by developer
		if !ok || c.isClosedExplicitly() {
			c.logger.Log(log.InfoLevel, "amqp connection closed explicitly")
			return
		}

		c.logger.Logf(log.WarnLevel, "amqp connection closed, reason: %v", reason)

		var reconnected bool

		for attempt := 1; attempt <= reconnectCount; attempt++ {
			time.Sleep(c.chReconnectionDelay)

			conn, err := c.dial(c.url)
			if err != nil {
				c.logger.Logf(log.ErrorLevel, "amqp reconnect attempt %d failed, err: %v", attempt, err)
				continue
			}

			c.mutex.Lock()
			c.underlying = conn
			c.mutex.Unlock()

			reconnected = true
			c.logger.Log(log.InfoLevel, "successfully reconnected amqp connection")

			break
		}

		if !reconnected {
			c.logger.Logf(log.ErrorLevel, "reached limit of amqp reconnects %d", reconnectCount)
			return
		}
	}
}

func (c *Connection) isClosedExplicitly() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

func (c *Connection) Close() error {
	atomic.StoreInt32(&c.closed, 1)

	return c.current().Close()
}

func (c *Connection) IsClosed() bool {
	return c.current().IsClosed()
}

// Channel opens an auto reopening channel
func (c *Connection) Channel() (AmqpChannel, error) {
	ch, err := c.current().Channel()
	if err != nil {
		return nil, errors.Wrap(err, "creating channel")
	}

	channel := &Channel{
		underlying:               ch,
		logger:                   c.logger,
		consumeReconnectionDelay: c.chReconnectionDelay,
	}

	go func() {
		for {
			reason, ok := <-channel.NotifyClose(make(chan *amqp.Error, 1))
			// exit if closed by developer
			if !ok || channel.IsClosed() {
				c.logger.Log(log.DebugLevel, "amqp channel closed")
				return
			}

			c.logger.Logf(log.WarnLevel, "amqp channel closed, reason: %v", reason)

			for {
				// wait for the connection to come back
				time.Sleep(c.chReconnectionDelay)

				if channel.IsClosed() {
					return
				}

				reopened, err := c.current().Channel()
				if err == nil {
					channel.swap(reopened)
					break
				}

				c.logger.Logf(log.ErrorLevel, "amqp channel recreate failed, err: %v", err)
			}
		}
	}()

	return channel, nil
}

// Channel wraps amqp.Channel. Every call goes to the most recently opened underlying channel.
type Channel struct {
	mutex                    sync.RWMutex
	underlying               AmqpChannel
	closed                   int32
	logger                   log.Logger
	consumeReconnectionDelay time.Duration
}

func (ch *Channel) current() AmqpChannel {
	ch.mutex.RLock()
	defer ch.mutex.RUnlock()

	return ch.underlying
}

func (ch *Channel) swap(underlying AmqpChannel) {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	ch.underlying = underlying
}

// IsClosed indicates the channel was closed by developer
func (ch *Channel) IsClosed() bool {
	return atomic.LoadInt32(&ch.closed) == 1
}

// Close ensures closed flag is set
func (ch *Channel) Close() error {
	if ch.IsClosed() {
		return amqp.ErrClosed
	}

	atomic.StoreInt32(&ch.closed, 1)

	return ch.current().Close()
}

func (ch *Channel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return ch.current().ExchangeDeclare(name, kind, durable, autoDelete, internal, noWait, args)
}

func (ch *Channel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	return ch.current().QueueDeclare(name, durable, autoDelete, exclusive, noWait, args)
}

func (ch *Channel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	return ch.current().QueueBind(name, key, exchange, noWait, args)
}

func (ch *Channel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return ch.current().Publish(exchange, key, mandatory, immediate, msg)
}

func (ch *Channel) NotifyClose(c chan *amqp.Error) chan *amqp.Error {
	return ch.current().NotifyClose(c)
}

func (ch *Channel) Qos(prefetchCount, prefetchSize int, global bool) error {
	return ch.current().Qos(prefetchCount, prefetchSize, global)
}

func (ch *Channel) Cancel(consumer string, noWait bool) error {
	return ch.current().Cancel(consumer, noWait)
}

// Consume wraps amqp.Channel.Consume, the returned deliveries end only when the channel is closed by developer
func (ch *Channel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	deliveries := make(chan amqp.Delivery)

	go func() {
		defer close(deliveries)

		var reconnectedCount uint

		for {
			d, err := ch.current().Consume(queue, consumer, autoAck, exclusive, noLocal, noWait, args)
			if err != nil {
				ch.logger.Logf(log.ErrorLevel, "consume failed, err: %v", err)
				time.Sleep(ch.consumeReconnectionDelay)

				if reconnectedCount > reconnectCount {
					ch.logger.Logf(log.ErrorLevel, "reached limit of consumer reconnects %d", reconnectCount)
					return
				}

				reconnectedCount++
				ch.logger.Logf(log.DebugLevel, "retrying to reconnect consumer %s", consumer)

				continue
			}

			ch.logger.Logf(log.DebugLevel, "started consuming %s", consumer)

			for msg := range d {
				deliveries <- msg
			}

			// closed flag may be set a bit later than deliveries are closed
			time.Sleep(ch.consumeReconnectionDelay)

			if ch.IsClosed() {
				return
			}
		}
	}()

	return deliveries, nil
}
