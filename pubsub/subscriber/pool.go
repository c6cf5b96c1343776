package subscriber

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

var errPoolStopped = errors.New("worker pool is stopped")

type task interface {
	do()
}

// workerPool runs tasks on a fixed set of workers, each with its own queue.
// Tasks with the same key always land on the same worker, so deliveries of one order
// are processed one at a time and in the order they were consumed.
type workerPool struct {
	mutex   sync.RWMutex
	stopped bool

	queues   []chan task
	next     uint32
	inFlight int64
	wGroup   sync.WaitGroup
}

func newWorkerPool(workersCount uint, queueSize int) *workerPool {
	if workersCount == 0 {
		workersCount = 1
	}

	if queueSize < 0 {
		queueSize = 0
	}

	queues := make([]chan task, workersCount)
	for i := range queues {
		queues[i] = make(chan task, queueSize)
	}

	return &workerPool{queues: queues}
}

func (p *workerPool) start() {
	for _, queue := range p.queues {
		p.wGroup.Add(1)

		go func(queue chan task) {
			defer p.wGroup.Done()

			for t := range queue {
				t.do()
				atomic.AddInt64(&p.inFlight, -1)
			}
		}(queue)
	}
}

// submit blocks until the worker owning key accepts t or ctx is done. Tasks without a key are spread round-robin.
func (p *workerPool) submit(ctx context.Context, key string, t task) error {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	if p.stopped {
		return errPoolStopped
	}

	atomic.AddInt64(&p.inFlight, 1)

	select {
	case p.queues[p.index(key)] <- t:
		return nil
	case <-ctx.Done():
		atomic.AddInt64(&p.inFlight, -1)
		return errors.WithStack(ctx.Err())
	}
}

func (p *workerPool) index(key string) int {
	if key == "" {
		return int(atomic.AddUint32(&p.next, 1) % uint32(len(p.queues)))
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(key))

	return int(h.Sum32() % uint32(len(p.queues)))
}

// busyWorkers returns the number of accepted tasks which are queued or in progress
func (p *workerPool) busyWorkers() int {
	return int(atomic.LoadInt64(&p.inFlight))
}

// stop closes worker queues, workers finish what is already queued and exit. It is safe to call it more than once.
func (p *workerPool) stop() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.stopped {
		return
	}

	p.stopped = true

	for _, queue := range p.queues {
		close(queue)
	}
}

// wait blocks until all workers exited after stop
func (p *workerPool) wait() {
	p.wGroup.Wait()
}
