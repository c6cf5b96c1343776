package amqp

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-foreman/orderflow/log"
	"github.com/go-foreman/orderflow/pubsub/transport"
	testLog "github.com/go-foreman/orderflow/testing/log"
)

type ackRecorder struct {
	acked   []uint64
	nacked  []uint64
	requeue bool
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error {
	a.acked = append(a.acked, tag)
	return nil
}

func (a *ackRecorder) Nack(tag uint64, multiple bool, requeue bool) error {
	a.nacked = append(a.nacked, tag)
	a.requeue = requeue
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error {
	return nil
}

func connectedTransport(t *testing.T, ctrl *gomock.Controller, opts ...Option) (transport.Transport, *MockAmqpConnection, *MockAmqpChannel) {
	conn := NewMockAmqpConnection(ctrl)
	publishing := NewMockAmqpChannel(ctrl)

	conn.EXPECT().Channel().Return(publishing, nil)

	opts = append(opts, WithDialer(func(url string, logger log.Logger) (AmqpConnection, error) {
		assert.Equal(t, "amqp://broker", url)
		return conn, nil
	}))

	tr := NewTransport("amqp://broker", testLog.NewNilLogger(), opts...)
	require.NoError(t, tr.Connect(context.Background()))

	return tr, conn, publishing
}

func TestAmqpTransportConnect(t *testing.T) {
	ctx := context.Background()

	t.Run("dialer fails", func(t *testing.T) {
		tr := NewTransport("amqp://broker", testLog.NewNilLogger(), WithDialer(func(url string, logger log.Logger) (AmqpConnection, error) {
			return nil, errors.New("refused")
		}))

		err := tr.Connect(ctx)
		assert.EqualError(t, err, "refused")
	})

	t.Run("publishing channel fails", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		conn := NewMockAmqpConnection(ctrl)
		conn.EXPECT().Channel().Return(nil, errors.New("no channel"))
		conn.EXPECT().Close().Return(nil)

		tr := NewTransport("amqp://broker", testLog.NewNilLogger(), WithDialer(func(url string, logger log.Logger) (AmqpConnection, error) {
			return conn, nil
		}))

		err := tr.Connect(ctx)
		assert.EqualError(t, err, "creating publishing channel: no channel")
	})

	t.Run("send and consume require connection", func(t *testing.T) {
		tr := NewTransport("amqp://broker", testLog.NewNilLogger())

		err := tr.Send(ctx, transport.NewOutboundPkg([]byte("{}"), "application/json", transport.DeliveryDestination{DestinationTopic: "orders"}, nil))
		assert.EqualError(t, err, "connection wasn't established. Use transport.Connect first")

		_, err = tr.Consume(ctx, []string{"orders"})
		assert.EqualError(t, err, "connection wasn't established. Use transport.Connect first")
	})

	t.Run("disconnect closes channel and connection", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		tr, conn, publishing := connectedTransport(t, ctrl)
		publishing.EXPECT().Close().Return(nil)
		conn.EXPECT().Close().Return(nil)

		require.NoError(t, tr.Disconnect(ctx))
		// second disconnect is a noop
		require.NoError(t, tr.Disconnect(ctx))
	})
}

func TestAmqpTransportSend(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes persistent message to topic exchange", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		tr, _, publishing := connectedTransport(t, ctrl)

		publishing.EXPECT().ExchangeDeclare("orders", "topic", true, false, false, false, nil).Return(nil).Times(1)
		publishing.EXPECT().
			Publish("orders", "order-1", true, false, gomock.Any()).
			DoAndReturn(func(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
				assert.Equal(t, []byte(`{"a":1}`), msg.Body)
				assert.Equal(t, "application/json", msg.ContentType)
				assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
				assert.Equal(t, "evt-1", msg.MessageId)
				assert.EqualValues(t, "evt-1", msg.Headers["eventId"])
				assert.EqualValues(t, 5, msg.Priority)
				assert.Equal(t, "30000", msg.Expiration)
				return nil
			}).Times(2)

		pkg := transport.NewOutboundPkg(
			[]byte(`{"a":1}`),
			"application/json",
			transport.DeliveryDestination{DestinationTopic: "orders", Key: "order-1"},
			map[string]interface{}{"eventId": "evt-1"},
		)

		require.NoError(t, tr.Send(ctx, pkg, WithMandatory(), WithPriority(5), WithExpiration(time.Second*30)))
		// exchange is declared once
		require.NoError(t, tr.Send(ctx, pkg, WithMandatory(), WithPriority(5), WithExpiration(time.Second*30)))
	})

	t.Run("publish error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		tr, _, publishing := connectedTransport(t, ctrl)

		publishing.EXPECT().ExchangeDeclare("orders", "topic", true, false, false, false, nil).Return(nil)
		publishing.EXPECT().Publish("orders", "", false, false, gomock.Any()).Return(errors.New("blocked"))

		err := tr.Send(ctx, transport.NewOutboundPkg(nil, "application/json", transport.DeliveryDestination{DestinationTopic: "orders"}, nil))
		assert.EqualError(t, err, "sending out pkg to orders: blocked")
	})

	t.Run("exchange declare error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		tr, _, publishing := connectedTransport(t, ctrl)

		publishing.EXPECT().ExchangeDeclare("orders", "topic", true, false, false, false, nil).Return(errors.New("denied"))

		err := tr.Send(ctx, transport.NewOutboundPkg(nil, "application/json", transport.DeliveryDestination{DestinationTopic: "orders"}, nil))
		assert.EqualError(t, err, "declaring exchange orders: denied")
	})

	t.Run("consume option passed to send", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		tr, _, _ := connectedTransport(t, ctrl)

		wrongOpt := func(options interface{}) error {
			return WithExclusive()(options)
		}

		err := tr.Send(ctx, transport.NewOutboundPkg(nil, "application/json", transport.DeliveryDestination{DestinationTopic: "orders"}, nil), wrongOpt)
		assert.EqualError(t, err, "calling WithExclusive opt: this option must be called on amqp.consumeOptions type")
	})
}

func TestAmqpTransportConsume(t *testing.T) {
	t.Run("consumes durable queue per topic", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		tr, conn, _ := connectedTransport(t, ctrl, WithQueuePrefix("svc"))
		consuming := NewMockAmqpChannel(ctrl)
		conn.EXPECT().Channel().Return(consuming, nil)

		deliveries := make(chan amqp.Delivery, 1)
		channelClosed := make(chan struct{})

		consuming.EXPECT().Qos(5, 0, false).Return(nil)
		consuming.EXPECT().ExchangeDeclare("orders", "topic", true, false, false, false, nil).Return(nil)
		consuming.EXPECT().QueueDeclare("svc.orders", true, false, false, false, nil).Return(amqp.Queue{Name: "svc.orders"}, nil)
		consuming.EXPECT().QueueBind("svc.orders", "#", "orders", false, nil).Return(nil)
		consuming.EXPECT().
			Consume("svc.orders", "orderflow-1.svc.orders", false, true, false, false, nil).
			Return((<-chan amqp.Delivery)(deliveries), nil)
		consuming.EXPECT().Cancel("orderflow-1.svc.orders", true).Return(nil)
		consuming.EXPECT().Close().DoAndReturn(func() error {
			close(channelClosed)
			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		income, err := tr.Consume(ctx, []string{"orders"}, WithQosPrefetchCount(5), WithExclusive(), WithConsumerTag("orderflow-1"))
		require.NoError(t, err)

		acks := &ackRecorder{}
		deliveries <- amqp.Delivery{
			Acknowledger: acks,
			DeliveryTag:  7,
			MessageId:    "evt-1",
			Exchange:     "orders",
			RoutingKey:   "order-1",
			Body:         []byte(`{}`),
		}

		var pkg transport.IncomingPkg
		select {
		case pkg = <-income:
		case <-time.After(time.Second):
			t.Fatal("no pkg received")
		}

		assert.Equal(t, "evt-1", pkg.UID())
		assert.Equal(t, transport.Origin{Topic: "orders", Offset: 7, Key: "order-1"}, pkg.Origin())
		assert.Equal(t, []byte(`{}`), pkg.Payload())
		assert.NotNil(t, pkg.Headers())
		assert.False(t, pkg.ReceivedAt().IsZero())

		require.NoError(t, pkg.Ack())
		require.NoError(t, pkg.Nack(transport.WithRequeue()))
		assert.Equal(t, []uint64{7}, acks.acked)
		assert.Equal(t, []uint64{7}, acks.nacked)
		assert.True(t, acks.requeue)

		cancel()

		select {
		case _, open := <-income:
			assert.False(t, open)
		case <-time.After(time.Second):
			t.Fatal("income wasn't closed")
		}

		select {
		case <-channelClosed:
		case <-time.After(time.Second):
			t.Fatal("consuming channel wasn't closed")
		}
	})

	t.Run("queue declare error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		tr, conn, _ := connectedTransport(t, ctrl)
		consuming := NewMockAmqpChannel(ctrl)
		conn.EXPECT().Channel().Return(consuming, nil)

		consuming.EXPECT().ExchangeDeclare("payments", "topic", true, false, false, false, nil).Return(nil)
		consuming.EXPECT().QueueDeclare("orderflow.payments", true, false, false, false, nil).Return(amqp.Queue{}, errors.New("locked"))
		consuming.EXPECT().Close().Return(nil)

		_, err := tr.Consume(context.Background(), []string{"payments"})
		assert.EqualError(t, err, "declaring queue orderflow.payments: locked")
	})

	t.Run("send option passed to consume", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		tr, _, _ := connectedTransport(t, ctrl)

		_, err := tr.Consume(context.Background(), []string{"orders"}, func(options interface{}) error {
			return WithMandatory()(options)
		})
		assert.EqualError(t, err, "calling WithMandatory opt: this option must be called on amqp.sendOptions type")
	})
}

func TestInAmqpPkgUIDFallback(t *testing.T) {
	pkg := &inAmqpPkg{topic: "inventory", delivery: amqp.Delivery{DeliveryTag: 12}}

	assert.Equal(t, "inventory-12", pkg.UID())
	assert.Equal(t, "inventory", pkg.Origin().Topic)
}
