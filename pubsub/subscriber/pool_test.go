package subscriber

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type job struct {
	key  string
	seq  int
	done func(j *job)
}

func (j *job) do() {
	// between 1 and 10ms
	time.Sleep(time.Millisecond * time.Duration(rand.Intn(10)+1))

	if j.done != nil {
		j.done(j)
	}
}

func TestWorkerPool(t *testing.T) {
	ctx := context.Background()

	t.Run("100 jobs by 10 workers", func(t *testing.T) {
		pool := newWorkerPool(10, 1)
		pool.start()

		var processed int32

		for i := 0; i < 100; i++ {
			require.NoError(t, pool.submit(ctx, "", &job{seq: i, done: func(j *job) {
				atomic.AddInt32(&processed, 1)
			}}))
		}

		pool.stop()
		pool.wait()

		assert.EqualValues(t, 100, atomic.LoadInt32(&processed))
		assert.Equal(t, 0, pool.busyWorkers())
	})

	t.Run("jobs of one key keep their order", func(t *testing.T) {
		pool := newWorkerPool(4, 2)
		pool.start()

		var (
			mutex sync.Mutex
			seen  = make(map[string][]int)
		)

		for i := 0; i < 60; i++ {
			key := fmt.Sprintf("order-%d", i%5)
			require.NoError(t, pool.submit(ctx, key, &job{key: key, seq: i, done: func(j *job) {
				mutex.Lock()
				defer mutex.Unlock()
				seen[j.key] = append(seen[j.key], j.seq)
			}}))
		}

		pool.stop()
		pool.wait()

		require.Len(t, seen, 5)
		for key, seqs := range seen {
			assert.Len(t, seqs, 12, key)
			assert.IsIncreasing(t, seqs, key)
		}
	})

	t.Run("jobs of one key never run concurrently", func(t *testing.T) {
		pool := newWorkerPool(8, 4)
		pool.start()

		var running, maxRunning int32

		for i := 0; i < 20; i++ {
			require.NoError(t, pool.submit(ctx, "order-1", &job{done: func(j *job) {
				now := atomic.AddInt32(&running, 1)
				defer atomic.AddInt32(&running, -1)

				for {
					peak := atomic.LoadInt32(&maxRunning)
					if now <= peak || atomic.CompareAndSwapInt32(&maxRunning, peak, now) {
						break
					}
				}

				time.Sleep(time.Millisecond)
			}}))
		}

		pool.stop()
		pool.wait()

		assert.EqualValues(t, 1, atomic.LoadInt32(&maxRunning))
	})

	t.Run("submit to a busy worker gives up with ctx", func(t *testing.T) {
		pool := newWorkerPool(1, 0)
		pool.start()

		release := make(chan struct{})
		require.NoError(t, pool.submit(ctx, "order-1", &job{done: func(j *job) {
			<-release
		}}))

		timeoutCtx, cancel := context.WithTimeout(ctx, time.Millisecond*50)
		defer cancel()

		err := pool.submit(timeoutCtx, "order-1", &job{})
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
		assert.Equal(t, 1, pool.busyWorkers())

		close(release)
		pool.stop()
		pool.wait()

		assert.Equal(t, 0, pool.busyWorkers())
	})

	t.Run("stopped pool rejects jobs", func(t *testing.T) {
		pool := newWorkerPool(2, 1)
		pool.start()

		pool.stop()
		pool.stop()
		pool.wait()

		assert.Equal(t, errPoolStopped, pool.submit(ctx, "order-1", &job{}))
		assert.Equal(t, 0, pool.busyWorkers())
	})
}
