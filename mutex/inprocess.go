package mutex

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// NewInProcessMutex serializes holders of the same key within the process
func NewInProcessMutex() Mutex {
	return &inProcessMutex{keys: make(map[string]*keyLock)}
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

type inProcessMutex struct {
	mapLock sync.Mutex
	keys    map[string]*keyLock
}

func (m *inProcessMutex) Lock(ctx context.Context, key string) (Lock, error) {
	m.mapLock.Lock()
	kl, exists := m.keys[key]
	if !exists {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		m.keys[key] = kl
	}
	kl.refs++
	m.mapLock.Unlock()

	select {
	case kl.ch <- struct{}{}:
		return &inProcessLock{mutex: m, key: key, kl: kl}, nil
	case <-ctx.Done():
		m.unref(key, kl)
		return nil, WithMutexErr(errors.Wrapf(ctx.Err(), "waiting for lock of %s", key))
	}
}

func (m *inProcessMutex) unref(key string, kl *keyLock) {
	m.mapLock.Lock()
	defer m.mapLock.Unlock()

	kl.refs--
	if kl.refs == 0 {
		delete(m.keys, key)
	}
}

type inProcessLock struct {
	mutex    *inProcessMutex
	key      string
	kl       *keyLock
	released bool
	mu       sync.Mutex
}

func (l *inProcessLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.released {
		return WithMutexErr(errors.Errorf("lock of %s is already released", l.key))
	}

	l.released = true
	<-l.kl.ch
	l.mutex.unref(l.key, l.kl)

	return nil
}
