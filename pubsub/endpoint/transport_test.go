package endpoint

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-foreman/orderflow/pubsub/message"
	"github.com/go-foreman/orderflow/pubsub/transport/memory"
	"github.com/go-foreman/orderflow/runtime/scheme"
)

func TestTransportEndpoint(t *testing.T) {
	ctx := context.Background()
	marshaller := message.NewJsonMarshaller(scheme.NewKnownTypesRegistry())

	t.Run("sends keyed by correlation id", func(t *testing.T) {
		tr := memory.NewTransport()
		require.NoError(t, tr.Connect(ctx))

		e := NewTransportEndpoint("inventory", tr, "orderflow.inventory", marshaller)
		assert.Equal(t, "inventory", e.Name())

		env := message.NewEnvelope("inventory.reserve", "o-1", map[string]interface{}{"orderId": "o-1"}, message.WithEventID("ev-1"))
		env.Headers.SetSagaID("saga-1")

		require.NoError(t, e.Send(ctx, env))

		sent := tr.Sent("orderflow.inventory")
		require.Len(t, sent, 1)
		assert.Equal(t, "o-1", sent[0].Destination().Key)
		assert.Equal(t, message.ContentType, sent[0].ContentType())
		assert.Equal(t, "ev-1", sent[0].Headers()["eventId"])
		assert.Equal(t, "inventory.reserve", sent[0].Headers()["eventType"])
		assert.Equal(t, "saga-1", sent[0].Headers()["sagaId"])

		decoded := map[string]interface{}{}
		require.NoError(t, json.Unmarshal(sent[0].Payload(), &decoded))
		assert.Equal(t, "ev-1", decoded["eventId"])
		assert.Equal(t, "o-1", decoded["correlationId"])
	})

	t.Run("delayed send is interrupted by context", func(t *testing.T) {
		tr := memory.NewTransport()
		require.NoError(t, tr.Connect(ctx))

		e := NewTransportEndpoint("inventory", tr, "orderflow.inventory", marshaller)

		cancelledCtx, cancel := context.WithCancel(ctx)
		cancel()

		err := e.Send(cancelledCtx, message.NewEnvelope("inventory.reserve", "o-1", nil, message.WithEventID("ev-2")), WithDelay(time.Hour))
		assert.EqualError(t, err, "failed to send event ev-2. Was waiting for the delay and parent ctx closed")
		assert.Empty(t, tr.Sent())
	})

	t.Run("transport error", func(t *testing.T) {
		tr := memory.NewTransport()

		e := NewTransportEndpoint("inventory", tr, "orderflow.inventory", marshaller)

		err := e.Send(ctx, message.NewEnvelope("inventory.reserve", "o-1", nil, message.WithEventID("ev-3")))
		assert.EqualError(t, err, "sending event ev-3 to orderflow.inventory: connection wasn't established. Use transport.Connect first")
	})
}
