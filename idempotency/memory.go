package idempotency

import (
	"context"
	"sync"
)

// MemoryLedger is a process local ledger. It counts MarkProcessed calls per event.
type MemoryLedger struct {
	mutex     sync.Mutex
	processed map[string]int
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{processed: make(map[string]int)}
}

func (m *MemoryLedger) IsDuplicate(ctx context.Context, eventID string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	_, exists := m.processed[eventID]

	return exists, nil
}

func (m *MemoryLedger) MarkProcessed(ctx context.Context, eventID string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.processed[eventID]++

	return nil
}

func (m *MemoryLedger) MarkCount(eventID string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.processed[eventID]
}
