package readmodel

import (
	"time"

	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/orders"
)

var ErrOrderNotFound = errors.New("order read model not found")

// OrderRead is the denormalized view of an order
type OrderRead struct {
	OrderID    string   `json:"orderId"`
	CustomerID string   `json:"customerId"`
	Status     string   `json:"status"`
	StatusText string   `json:"statusText"`
	ItemCount  int      `json:"itemCount"`
	ItemNames  []string `json:"itemNames"`
	Total      int64    `json:"total"`
	// LastEventID is the event which triggered the latest projection, empty for forced re-projections
	LastEventID string `json:"lastEventId,omitempty"`
	// SourceUpdatedAt is UpdatedAt of the write side order the row was projected from
	SourceUpdatedAt time.Time `json:"sourceUpdatedAt"`
	SyncedAt        time.Time `json:"syncedAt"`
}

// Project derives the read row from the write side order
func Project(order *orders.Order, eventID string, syncedAt time.Time) OrderRead {
	return OrderRead{
		OrderID:         order.ID,
		CustomerID:      order.CustomerID,
		Status:          order.Status.String(),
		StatusText:      order.Status.Text(),
		ItemCount:       order.ItemCount(),
		ItemNames:       order.ItemNames(),
		Total:           order.Total,
		LastEventID:     eventID,
		SourceUpdatedAt: order.UpdatedAt,
		SyncedAt:        syncedAt,
	}
}

// Diverges returns what differs between the read row and the write side order, empty if they are consistent
func (r OrderRead) Diverges(order *orders.Order) []string {
	var diffs []string

	if r.Status != order.Status.String() {
		diffs = append(diffs, "status")
	}

	if !r.SourceUpdatedAt.Equal(order.UpdatedAt) {
		diffs = append(diffs, "updatedAt")
	}

	if r.ItemCount != order.ItemCount() {
		diffs = append(diffs, "itemCount")
	}

	if r.Total != order.Total {
		diffs = append(diffs, "total")
	}

	return diffs
}

type SyncState string

const (
	SyncPending   SyncState = "PENDING"
	SyncSucceeded SyncState = "SUCCEEDED"
	SyncFailed    SyncState = "FAILED"
)

func (s SyncState) String() string {
	return string(s)
}

func ParseSyncState(s string) (SyncState, error) {
	switch state := SyncState(s); state {
	case SyncPending, SyncSucceeded, SyncFailed:
		return state, nil
	}

	return "", errors.Errorf("unknown sync state '%s'", s)
}

// SyncStatus is the outcome of projecting one event of an order. Event keeps the envelope as it was delivered
// so the projection can be retried from it.
type SyncStatus struct {
	OrderID    string    `json:"orderId"`
	EventID    string    `json:"eventId"`
	EventType  string    `json:"eventType"`
	Event      []byte    `json:"-"`
	Status     SyncState `json:"status"`
	RetryCount int       `json:"retryCount"`
	LastError  string    `json:"lastError,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
