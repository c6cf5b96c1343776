package saga

import (
	"context"
	"time"
)

//go:generate mockgen --build_flags=--mod=mod -destination ../testing/mocks/saga/store.go -package saga . Store

// Store persists saga instances with their steps and transition history.
// Update is optimistic: it fails with ErrConcurrentUpdate unless the stored version equals inst.Version,
// on success inst.Version is incremented.
type Store interface {
	Create(ctx context.Context, inst *Instance) error
	Get(ctx context.Context, id string) (*Instance, error)
	Update(ctx context.Context, inst *Instance) error
	FindByCorrelationKey(ctx context.Context, sagaType, correlationKey string) (*Instance, error)
	// ListExpired returns ids of STARTED and IN_PROGRESS sagas whose deadline is before now, earliest first
	ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Instance, error)
}

// expirable statuses are those a timeout scan moves to TIMED_OUT
var expirable = []Status{StatusStarted, StatusInProgress}

func isExpirable(s Status) bool {
	for _, e := range expirable {
		if e == s {
			return true
		}
	}

	return false
}
