// Package mutex serializes work on a key: a saga instance id or an event id.
package mutex

import (
	"context"
)

// MutexErr marks failures of the locking machinery itself, not of the guarded work
type MutexErr struct {
	error
}

func WithMutexErr(err error) error {
	return MutexErr{err}
}

func (e MutexErr) Unwrap() error {
	return e.error
}

type Lock interface {
	Release(ctx context.Context) error
}

type Mutex interface {
	// Lock blocks until the key is free or ctx is done
	Lock(ctx context.Context, key string) (Lock, error)
}
