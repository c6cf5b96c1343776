package endpoint_test

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-foreman/orderflow/pubsub/endpoint"
	"github.com/go-foreman/orderflow/pubsub/message"
	endpointMock "github.com/go-foreman/orderflow/testing/mocks/pubsub/endpoint"
)

func TestPublisher(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes to every routed endpoint", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		first := &stubEndpoint{name: "first"}
		second := &stubEndpoint{name: "second"}

		router := endpointMock.NewMockRouter(ctrl)
		router.EXPECT().Route("inventory.reserve").Return([]endpoint.Endpoint{first, second})

		env := message.NewEnvelope("inventory.reserve", "o-1", nil)
		require.NoError(t, endpoint.NewPublisher(router).Publish(ctx, env))

		assert.Equal(t, []*message.Envelope{env}, first.sent)
		assert.Equal(t, []*message.Envelope{env}, second.sent)
	})

	t.Run("no route", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		router := endpointMock.NewMockRouter(ctrl)
		router.EXPECT().Route("payment.charge").Return([]endpoint.Endpoint{})

		err := endpoint.NewPublisher(router).Publish(ctx, message.NewEnvelope("payment.charge", "o-1", nil))
		assert.EqualError(t, err, "no endpoints defined for event type payment.charge")
	})

	t.Run("endpoint error", func(t *testing.T) {
		router := endpoint.NewRouter()
		router.RegisterEndpoint(&stubEndpoint{name: "payments", sendErr: errors.New("broker down")}, "payment.charge")

		env := message.NewEnvelope("payment.charge", "o-1", nil, message.WithEventID("ev-1"))
		err := endpoint.NewPublisher(router).Publish(ctx, env)
		assert.EqualError(t, err, "publishing event ev-1 via endpoint payments: broker down")
	})
}

type stubEndpoint struct {
	name    string
	sent    []*message.Envelope
	sendErr error
}

func (s *stubEndpoint) Name() string {
	return s.name
}

func (s *stubEndpoint) Send(ctx context.Context, env *message.Envelope, options ...endpoint.DeliveryOption) error {
	if s.sendErr != nil {
		return s.sendErr
	}

	s.sent = append(s.sent, env)

	return nil
}
