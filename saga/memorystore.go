package saga

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// NewMemoryStore creates a Store which keeps instances in process memory. Instances are copied in and out.
func NewMemoryStore() Store {
	return &memoryStore{instances: make(map[string]*Instance)}
}

type memoryStore struct {
	mutex     sync.RWMutex
	instances map[string]*Instance
}

func (s *memoryStore) Create(ctx context.Context, inst *Instance) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.instances[inst.ID]; exists {
		return errors.Wrapf(ErrAlreadyExists, "saga %s", inst.ID)
	}

	for _, stored := range s.instances {
		if stored.Type == inst.Type && stored.CorrelationKey == inst.CorrelationKey {
			return errors.Wrapf(ErrAlreadyExists, "saga %s with correlation key %s", inst.Type, inst.CorrelationKey)
		}
	}

	inst.Version = 1
	inst.persistedHistory = len(inst.History)
	s.instances[inst.ID] = inst.Clone()

	return nil
}

func (s *memoryStore) Get(ctx context.Context, id string) (*Instance, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	stored, exists := s.instances[id]
	if !exists {
		return nil, errors.Wrapf(ErrNotFound, "saga %s", id)
	}

	return stored.Clone(), nil
}

func (s *memoryStore) Update(ctx context.Context, inst *Instance) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	stored, exists := s.instances[inst.ID]
	if !exists {
		return errors.Wrapf(ErrNotFound, "saga %s", inst.ID)
	}

	if stored.Version != inst.Version {
		return errors.Wrapf(ErrConcurrentUpdate, "saga %s has version %d, updated %d", inst.ID, stored.Version, inst.Version)
	}

	inst.Version++
	inst.persistedHistory = len(inst.History)
	s.instances[inst.ID] = inst.Clone()

	return nil
}

func (s *memoryStore) FindByCorrelationKey(ctx context.Context, sagaType, correlationKey string) (*Instance, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, stored := range s.instances {
		if stored.Type == sagaType && stored.CorrelationKey == correlationKey {
			return stored.Clone(), nil
		}
	}

	return nil, errors.Wrapf(ErrNotFound, "saga %s with correlation key %s", sagaType, correlationKey)
}

func (s *memoryStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var expired []*Instance

	for _, stored := range s.instances {
		if isExpirable(stored.Status) && !stored.TimeoutAt.IsZero() && stored.TimeoutAt.Before(now) {
			expired = append(expired, stored)
		}
	}

	sort.Slice(expired, func(a, b int) bool {
		return expired[a].TimeoutAt.Before(expired[b].TimeoutAt)
	})

	var ids []string

	for _, inst := range expired {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, inst.ID)
	}

	return ids, nil
}

func (s *memoryStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*Instance, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var res []*Instance

	for _, stored := range s.instances {
		if stored.Status == status {
			res = append(res, stored.Clone())
		}
	}

	sort.Slice(res, func(a, b int) bool {
		return res[a].UpdatedAt.Before(res[b].UpdatedAt)
	})

	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}

	return res, nil
}
