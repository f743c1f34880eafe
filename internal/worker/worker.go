// Package worker runs the engine's periodic background jobs: the idle-session reaper,
// the alert queue drain and the weekly digest.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rrens/mattressai-engine/internal/metrics"
)

const defaultLockTTL = 10 * time.Minute

// ErrBusy is returned by locked one-shot jobs when another process holds the lock
var ErrBusy = errors.New("job already running")

// Task is one unit of periodic work
type Task interface {
	Name() string
	RunOnce(ctx context.Context) error
}

// Locker provides mutual exclusion between replicas
type Locker interface {
	// TryLock returns a release func, or nil when the lock is held elsewhere
	TryLock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error)
}

// Runner runs a task on a fixed interval, at most once at a time across replicas
type Runner struct {
	task     Task
	interval time.Duration
	locker   Locker
	lockTTL  time.Duration
	metrics  *metrics.Metrics
}

// NewRunner creates a runner. locker may be nil for single-replica deployments.
func NewRunner(task Task, interval time.Duration, locker Locker, lockTTL time.Duration, m *metrics.Metrics) *Runner {
	if interval <= 0 {
		interval = time.Minute
	}
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &Runner{
		task:     task,
		interval: interval,
		locker:   locker,
		lockTTL:  lockTTL,
		metrics:  m,
	}
}

// Run ticks until ctx is cancelled. The first tick happens immediately.
func (r *Runner) Run(ctx context.Context) error {
	log.Info().Str("worker", r.task.Name()).Dur("interval", r.interval).Msg("worker started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Tick(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Str("worker", r.task.Name()).Msg("worker run failed")
		}

		select {
		case <-ctx.Done():
			log.Info().Str("worker", r.task.Name()).Msg("worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs the task once if the lock can be taken. It reports whether the task ran.
func (r *Runner) Tick(ctx context.Context) (bool, error) {
	return r.Do(ctx, r.task.RunOnce)
}

// Do runs fn under the task's lock and metrics instead of RunOnce
func (r *Runner) Do(ctx context.Context, fn func(context.Context) error) (bool, error) {
	name := r.task.Name()

	if r.locker != nil {
		release, err := r.locker.TryLock(ctx, "worker:"+name, r.lockTTL)
		if err != nil {
			r.metrics.RecordWorkerRun(name, err)
			return false, err
		}
		if release == nil {
			log.Debug().Str("worker", name).Msg("worker lock held elsewhere, skipping")
			return false, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warn().Err(err).Str("worker", name).Msg("failed to release worker lock")
			}
		}()
	}

	err := fn(ctx)
	r.metrics.RecordWorkerRun(name, err)
	return true, err
}
