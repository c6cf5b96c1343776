package orders

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

//go:generate mockgen --build_flags=--mod=mod -destination ../testing/mocks/orders/store.go -package orders . WriteStore

// WriteStore is the authoritative store of orders
type WriteStore interface {
	Get(ctx context.Context, orderID string) (*Order, error)
	// Save creates the order or overwrites it with its items
	Save(ctx context.Context, order *Order) error
	UpdateStatus(ctx context.Context, orderID string, status Status, at time.Time) error
	// ListIDs returns up to limit ids greater than afterID in ascending order
	ListIDs(ctx context.Context, afterID string, limit int) ([]string, error)
}

type memoryStore struct {
	mutex  sync.RWMutex
	orders map[string]*Order
}

func NewMemoryStore() WriteStore {
	return &memoryStore{orders: make(map[string]*Order)}
}

func (m *memoryStore) Get(ctx context.Context, orderID string) (*Order, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	order, exists := m.orders[orderID]
	if !exists {
		return nil, errors.Wrapf(ErrNotFound, "order %s", orderID)
	}

	return order.Clone(), nil
}

func (m *memoryStore) Save(ctx context.Context, order *Order) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.orders[order.ID] = order.Clone()

	return nil
}

func (m *memoryStore) UpdateStatus(ctx context.Context, orderID string, status Status, at time.Time) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	order, exists := m.orders[orderID]
	if !exists {
		return errors.Wrapf(ErrNotFound, "order %s", orderID)
	}

	order.Status = status
	order.UpdatedAt = at

	return nil
}

func (m *memoryStore) ListIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	ids := make([]string, 0, len(m.orders))
	for id := range m.orders {
		if id > afterID {
			ids = append(ids, id)
		}
	}

	sort.Strings(ids)

	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	return ids, nil
}
