package mutex

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcessMutex(t *testing.T) {
	t.Run("serializes holders of the same key", func(t *testing.T) {
		m := NewInProcessMutex()
		ctx := context.Background()

		var (
			wg      sync.WaitGroup
			inside  int32
			maxSeen int32
			mu      sync.Mutex
		)

		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()

				lock, err := m.Lock(ctx, "saga-1")
				if !assert.NoError(t, err) {
					return
				}

				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()

				assert.NoError(t, lock.Release(ctx))
			}()
		}

		wg.Wait()
		assert.EqualValues(t, 1, maxSeen)
		assert.Empty(t, m.(*inProcessMutex).keys)
	})

	t.Run("different keys don't block each other", func(t *testing.T) {
		m := NewInProcessMutex()
		ctx := context.Background()

		first, err := m.Lock(ctx, "a")
		require.NoError(t, err)

		second, err := m.Lock(ctx, "b")
		require.NoError(t, err)

		assert.NoError(t, first.Release(ctx))
		assert.NoError(t, second.Release(ctx))
	})

	t.Run("waiting is canceled with context", func(t *testing.T) {
		m := NewInProcessMutex()

		lock, err := m.Lock(context.Background(), "a")
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*20)
		defer cancel()

		_, err = m.Lock(ctx, "a")
		require.Error(t, err)
		assert.IsType(t, MutexErr{}, err)
		assert.Contains(t, err.Error(), "waiting for lock of a: context deadline exceeded")

		assert.NoError(t, lock.Release(context.Background()))
		assert.Empty(t, m.(*inProcessMutex).keys)
	})

	t.Run("double release", func(t *testing.T) {
		m := NewInProcessMutex()
		ctx := context.Background()

		lock, err := m.Lock(ctx, "a")
		require.NoError(t, err)

		require.NoError(t, lock.Release(ctx))
		assert.EqualError(t, lock.Release(ctx), "lock of a is already released")
	})
}
