package readmodel

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

//go:generate mockgen --build_flags=--mod=mod -destination ../testing/mocks/readmodel/store.go -package readmodel . Store,SyncStatusStore

type Store interface {
	Get(ctx context.Context, orderID string) (*OrderRead, error)
	Upsert(ctx context.Context, row OrderRead) error
	// List returns up to limit rows with order id greater than afterID in ascending order
	List(ctx context.Context, afterID string, limit int) ([]OrderRead, error)
}

type SyncStatusStore interface {
	Save(ctx context.Context, status SyncStatus) error
	Get(ctx context.Context, orderID, eventID string) (*SyncStatus, error)
	// ListFailed returns FAILED statuses retried less than maxRetries times, oldest first
	ListFailed(ctx context.Context, maxRetries, limit int) ([]SyncStatus, error)
	// ListUnresolved returns statuses other than SUCCEEDED, oldest first
	ListUnresolved(ctx context.Context, limit int) ([]SyncStatus, error)
	CountByStatus(ctx context.Context) (map[SyncState]int, error)
}

type memoryStore struct {
	mutex sync.RWMutex
	rows  map[string]OrderRead
}

func NewMemoryStore() Store {
	return &memoryStore{rows: make(map[string]OrderRead)}
}

func (m *memoryStore) Get(ctx context.Context, orderID string) (*OrderRead, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	row, exists := m.rows[orderID]
	if !exists {
		return nil, errors.Wrapf(ErrOrderNotFound, "order %s", orderID)
	}

	row.ItemNames = append([]string(nil), row.ItemNames...)

	return &row, nil
}

func (m *memoryStore) Upsert(ctx context.Context, row OrderRead) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	row.ItemNames = append([]string(nil), row.ItemNames...)
	m.rows[row.OrderID] = row

	return nil
}

func (m *memoryStore) List(ctx context.Context, afterID string, limit int) ([]OrderRead, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var rows []OrderRead
	for id, row := range m.rows {
		if id > afterID {
			rows = append(rows, row)
		}
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].OrderID < rows[j].OrderID
	})

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	return rows, nil
}

type syncKey struct {
	orderID string
	eventID string
}

type memorySyncStatusStore struct {
	mutex    sync.RWMutex
	statuses map[syncKey]SyncStatus
}

func NewMemorySyncStatusStore() SyncStatusStore {
	return &memorySyncStatusStore{statuses: make(map[syncKey]SyncStatus)}
}

func (m *memorySyncStatusStore) Save(ctx context.Context, status SyncStatus) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.statuses[syncKey{status.OrderID, status.EventID}] = status

	return nil
}

func (m *memorySyncStatusStore) Get(ctx context.Context, orderID, eventID string) (*SyncStatus, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	status, exists := m.statuses[syncKey{orderID, eventID}]
	if !exists {
		return nil, nil
	}

	return &status, nil
}

func (m *memorySyncStatusStore) ListFailed(ctx context.Context, maxRetries, limit int) ([]SyncStatus, error) {
	return m.list(limit, func(s SyncStatus) bool {
		return s.Status == SyncFailed && s.RetryCount < maxRetries
	}), nil
}

func (m *memorySyncStatusStore) ListUnresolved(ctx context.Context, limit int) ([]SyncStatus, error) {
	return m.list(limit, func(s SyncStatus) bool {
		return s.Status != SyncSucceeded
	}), nil
}

func (m *memorySyncStatusStore) CountByStatus(ctx context.Context) (map[SyncState]int, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	counts := make(map[SyncState]int)
	for _, s := range m.statuses {
		counts[s.Status]++
	}

	return counts, nil
}

func (m *memorySyncStatusStore) list(limit int, match func(s SyncStatus) bool) []SyncStatus {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var res []SyncStatus
	for _, s := range m.statuses {
		if match(s) {
			res = append(res, s)
		}
	}

	sort.Slice(res, func(i, j int) bool {
		if res[i].UpdatedAt.Equal(res[j].UpdatedAt) {
			return res[i].OrderID+res[i].EventID < res[j].OrderID+res[j].EventID
		}

		return res[i].UpdatedAt.Before(res[j].UpdatedAt)
	})

	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}

	return res
}
