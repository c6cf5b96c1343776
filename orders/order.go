package orders

import (
	"time"

	"github.com/pkg/errors"
)

type Status string

const (
	StatusPending           Status = "PENDING"
	StatusInventoryReserved Status = "INVENTORY_RESERVED"
	StatusPaid              Status = "PAID"
	StatusConfirmed         Status = "CONFIRMED"
	StatusCancelled         Status = "CANCELLED"
)

var statusTexts = map[Status]string{
	StatusPending:           "Order received",
	StatusInventoryReserved: "Items reserved",
	StatusPaid:              "Payment received",
	StatusConfirmed:         "Order confirmed",
	StatusCancelled:         "Order cancelled",
}

func (s Status) String() string {
	return string(s)
}

// Text is a human readable description of the status
func (s Status) Text() string {
	if text, exists := statusTexts[s]; exists {
		return text
	}

	return string(s)
}

// Final statuses are never changed by the placement saga
func (s Status) Final() bool {
	return s == StatusConfirmed || s == StatusCancelled
}

func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if _, exists := statusTexts[status]; !exists {
		return "", errors.Errorf("unknown order status '%s'", s)
	}

	return status, nil
}

var ErrNotFound = errors.New("order not found")

type Item struct {
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	// UnitPrice in minor units
	UnitPrice int64 `json:"unitPrice"`
}

// Order is the write side aggregate
type Order struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customerId"`
	Status     Status    `json:"status"`
	Items      []Item    `json:"items"`
	Total      int64     `json:"total"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func NewOrder(id, customerID string, items []Item, now time.Time) (*Order, error) {
	if id == "" || customerID == "" {
		return nil, errors.New("order id and customer id are required")
	}

	if len(items) == 0 {
		return nil, errors.Errorf("order %s has no items", id)
	}

	order := &Order{
		ID:         id,
		CustomerID: customerID,
		Status:     StatusPending,
		Items:      make([]Item, len(items)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	for i, item := range items {
		if item.SKU == "" || item.Quantity <= 0 || item.UnitPrice < 0 {
			return nil, errors.Errorf("item %d of order %s is invalid", i, id)
		}

		order.Items[i] = item
		order.Total += int64(item.Quantity) * item.UnitPrice
	}

	return order, nil
}

// ItemCount is the sum of quantities
func (o *Order) ItemCount() int {
	count := 0
	for _, item := range o.Items {
		count += item.Quantity
	}

	return count
}

func (o *Order) ItemNames() []string {
	names := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		names = append(names, item.Name)
	}

	return names
}

func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]Item(nil), o.Items...)

	return &c
}
