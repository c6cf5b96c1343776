package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrder(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("computes total and counts", func(t *testing.T) {
		order, err := NewOrder("o-1", "c-1", []Item{
			{SKU: "sku-1", Name: "Keyboard", Quantity: 2, UnitPrice: 4500},
			{SKU: "sku-2", Name: "Mouse", Quantity: 1, UnitPrice: 2000},
		}, now)
		require.NoError(t, err)

		assert.Equal(t, StatusPending, order.Status)
		assert.EqualValues(t, 11000, order.Total)
		assert.Equal(t, 3, order.ItemCount())
		assert.Equal(t, []string{"Keyboard", "Mouse"}, order.ItemNames())
		assert.Equal(t, now, order.CreatedAt)
		assert.Equal(t, now, order.UpdatedAt)
	})

	t.Run("invalid orders", func(t *testing.T) {
		_, err := NewOrder("", "c-1", []Item{{SKU: "a", Quantity: 1}}, now)
		assert.EqualError(t, err, "order id and customer id are required")

		_, err = NewOrder("o-1", "c-1", nil, now)
		assert.EqualError(t, err, "order o-1 has no items")

		_, err = NewOrder("o-1", "c-1", []Item{{SKU: "a", Quantity: 0}}, now)
		assert.EqualError(t, err, "item 0 of order o-1 is invalid")
	})

	t.Run("clone doesn't share items", func(t *testing.T) {
		order, err := NewOrder("o-1", "c-1", []Item{{SKU: "a", Quantity: 1}}, now)
		require.NoError(t, err)

		clone := order.Clone()
		clone.Items[0].Quantity = 5
		assert.Equal(t, 1, order.Items[0].Quantity)
	})
}

func TestStatus(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusInventoryReserved, StatusPaid, StatusConfirmed, StatusCancelled} {
		parsed, err := ParseStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
		assert.NotEqual(t, s.String(), s.Text())
	}

	_, err := ParseStatus("SHIPPED")
	assert.EqualError(t, err, "unknown order status 'SHIPPED'")
	assert.Equal(t, "SHIPPED", Status("SHIPPED").Text())

	assert.True(t, StatusConfirmed.Final())
	assert.True(t, StatusCancelled.Final())
	assert.False(t, StatusPaid.Final())
}
