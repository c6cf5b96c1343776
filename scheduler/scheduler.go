// Package scheduler runs the periodic maintenance jobs: saga timeout scan, failed sync retry and repair.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/log"
)

type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Option func(s *Scheduler)

// WithRunOnStart makes every job run once right after Run is called instead of waiting for the first tick
func WithRunOnStart() Option {
	return func(s *Scheduler) {
		s.runOnStart = true
	}
}

type Scheduler struct {
	logger     log.Logger
	runOnStart bool

	mutex   sync.Mutex
	jobs    []Job
	running bool
}

func NewScheduler(logger log.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{logger: logger}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Add registers a job. Jobs can't be added once the scheduler runs.
func (s *Scheduler) Add(job Job) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.running {
		return errors.Errorf("scheduler is running, job %s can't be added", job.Name)
	}

	if job.Interval <= 0 {
		return errors.Errorf("interval of job %s must be positive", job.Name)
	}

	if job.Run == nil {
		return errors.Errorf("job %s has nothing to run", job.Name)
	}

	for _, j := range s.jobs {
		if j.Name == job.Name {
			return errors.Errorf("job %s is already added", job.Name)
		}
	}

	s.jobs = append(s.jobs, job)

	return nil
}

// Run blocks until ctx is done and all jobs in progress have returned. A job never overlaps with itself,
// a tick that comes while the job is running is dropped.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mutex.Lock()
	if s.running {
		s.mutex.Unlock()
		return errors.New("scheduler is already running")
	}
	s.running = true
	jobs := append([]Job(nil), s.jobs...)
	s.mutex.Unlock()

	defer func() {
		s.mutex.Lock()
		s.running = false
		s.mutex.Unlock()
	}()

	wg := sync.WaitGroup{}

	for _, job := range jobs {
		wg.Add(1)

		go func(job Job) {
			defer wg.Done()
			s.loop(ctx, job)
		}(job)
	}

	s.logger.Logf(log.InfoLevel, "scheduler started with %d jobs", len(jobs))

	wg.Wait()

	s.logger.Logf(log.InfoLevel, "scheduler stopped")

	return nil
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	if s.runOnStart {
		s.runJob(ctx, job)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runJob(ctx, job)
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Logf(log.ErrorLevel, "job %s panicked. %v", job.Name, r)
		}
	}()

	started := time.Now()

	if err := job.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}

		s.logger.Logf(log.ErrorLevel, "job %s failed after %s. %s", job.Name, time.Since(started), err)
		return
	}

	s.logger.Logf(log.DebugLevel, "job %s finished in %s", job.Name, time.Since(started))
}
