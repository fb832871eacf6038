// Package scheduler runs the periodic reconciliation jobs.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nasirucode/xerosync/internal/logutil"
)

// JobFunc is one scheduled unit of work.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	run      JobFunc
}

// Scheduler runs registered jobs on fixed intervals. Each job runs in its
// own goroutine; a run that outlasts its interval delays the next tick
// instead of overlapping it.
type Scheduler struct {
	jobs   []job
	logger *slog.Logger
	wg     sync.WaitGroup
}

// New creates an empty scheduler.
func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{logger: logutil.NoopIfNil(logger)}
}

// Add registers a job. Must be called before Start.
func (s *Scheduler) Add(name string, interval time.Duration, run JobFunc) {
	s.jobs = append(s.jobs, job{name: name, interval: interval, run: run})
}

// Start launches all registered jobs. Jobs stop when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.runLoop(ctx, j)
		s.logger.Info("scheduled job", "job", j.name, "interval", j.interval)
	}
}

// Wait blocks until all job loops have exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, j job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, j)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j job) {
	start := time.Now()
	err := j.run(ctx)
	duration := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("scheduled job failed",
			"job", j.name, "duration_ms", duration.Milliseconds(), "error", err)
		return
	}
	s.logger.Debug("scheduled job finished",
		"job", j.name, "duration_ms", duration.Milliseconds())
}
