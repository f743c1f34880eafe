package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rrens/mattressai-engine/internal/domain"
	"github.com/Rrens/mattressai-engine/internal/metrics"
)

const defaultIdleMinutes = 15

// IdleChecker ends sessions that went quiet
type IdleChecker interface {
	CheckIdleSessions(ctx context.Context, idleMinutes int) (int, error)
}

// AlertProcessor drains the alert queue
type AlertProcessor interface {
	ProcessQueuedAlerts(ctx context.Context) (domain.DispatchStats, error)
	ProcessDLQ(ctx context.Context) (int, error)
}

// DigestRunner sends the weekly digest
type DigestRunner interface {
	Run(ctx context.Context) (domain.DigestStats, error)
}

// Reaper ends idle sessions so that their alerts are enqueued
type Reaper struct {
	sessions    IdleChecker
	idleMinutes int
}

// NewReaper creates a reaper. idleMinutes <= 0 means 15.
func NewReaper(sessions IdleChecker, idleMinutes int) *Reaper {
	if idleMinutes <= 0 {
		idleMinutes = defaultIdleMinutes
	}
	return &Reaper{sessions: sessions, idleMinutes: idleMinutes}
}

func (r *Reaper) Name() string { return "reaper" }

func (r *Reaper) RunOnce(ctx context.Context) error {
	_, err := r.Reap(ctx)
	return err
}

// Reap returns the number of sessions it ended
func (r *Reaper) Reap(ctx context.Context) (int, error) {
	n, err := r.sessions.CheckIdleSessions(ctx, r.idleMinutes)
	if err != nil {
		return n, fmt.Errorf("idle session check failed: %w", err)
	}
	return n, nil
}

// CycleStats is the outcome of one alert cycle
type CycleStats struct {
	Reaped       int                  `json:"reaped"`
	Dispatch     domain.DispatchStats `json:"dispatch"`
	DeadLettered int                  `json:"dead_lettered"`
}

// AlertWorker runs the reaper, then drains the queue, then moves exhausted alerts to failed
type AlertWorker struct {
	reaper     *Reaper
	dispatcher AlertProcessor
}

// NewAlertWorker creates an alert worker. reaper may be nil.
func NewAlertWorker(reaper *Reaper, dispatcher AlertProcessor) *AlertWorker {
	return &AlertWorker{reaper: reaper, dispatcher: dispatcher}
}

func (w *AlertWorker) Name() string { return "alerts" }

func (w *AlertWorker) RunOnce(ctx context.Context) error {
	_, err := w.Cycle(ctx)
	return err
}

// Cycle runs one full pass. A reaper failure does not stop the drain.
func (w *AlertWorker) Cycle(ctx context.Context) (CycleStats, error) {
	var stats CycleStats

	if w.reaper != nil {
		n, err := w.reaper.Reap(ctx)
		if err != nil {
			log.Error().Err(err).Msg("reaper failed, continuing with alert drain")
		}
		stats.Reaped = n
	}

	dispatch, err := w.dispatcher.ProcessQueuedAlerts(ctx)
	stats.Dispatch = dispatch
	if err != nil {
		return stats, err
	}

	dead, err := w.dispatcher.ProcessDLQ(ctx)
	stats.DeadLettered = dead
	if err != nil {
		return stats, err
	}
	return stats, nil
}

// DigestWorker sends the weekly digest
type DigestWorker struct {
	digests DigestRunner
}

// NewDigestWorker creates a digest worker
func NewDigestWorker(digests DigestRunner) *DigestWorker {
	return &DigestWorker{digests: digests}
}

func (w *DigestWorker) Name() string { return "digest" }

func (w *DigestWorker) RunOnce(ctx context.Context) error {
	_, err := w.digests.Run(ctx)
	return err
}

// Digest runs the digest and returns its stats
func (w *DigestWorker) Digest(ctx context.Context) (domain.DigestStats, error) {
	return w.digests.Run(ctx)
}

// LockedCycle runs AlertWorker cycles on demand under the same lock as the in-process alert runner
type LockedCycle struct {
	runner *Runner
	worker *AlertWorker
}

// NewLockedCycle creates a locked cycle. locker may be nil.
func NewLockedCycle(w *AlertWorker, locker Locker, lockTTL time.Duration, m *metrics.Metrics) *LockedCycle {
	return &LockedCycle{runner: NewRunner(w, 0, locker, lockTTL, m), worker: w}
}

// Cycle returns ErrBusy when another drain holds the lock
func (c *LockedCycle) Cycle(ctx context.Context) (CycleStats, error) {
	var stats CycleStats
	ran, err := c.runner.Do(ctx, func(ctx context.Context) error {
		var err error
		stats, err = c.worker.Cycle(ctx)
		return err
	})
	if err == nil && !ran {
		return stats, ErrBusy
	}
	return stats, err
}

// LockedDigest runs the digest on demand under the in-process digest runner's lock
type LockedDigest struct {
	runner *Runner
	worker *DigestWorker
}

// NewLockedDigest creates a locked digest. locker may be nil.
func NewLockedDigest(w *DigestWorker, locker Locker, lockTTL time.Duration, m *metrics.Metrics) *LockedDigest {
	return &LockedDigest{runner: NewRunner(w, 0, locker, lockTTL, m), worker: w}
}

func (d *LockedDigest) Digest(ctx context.Context) (domain.DigestStats, error) {
	var stats domain.DigestStats
	ran, err := d.runner.Do(ctx, func(ctx context.Context) error {
		var err error
		stats, err = d.worker.Digest(ctx)
		return err
	})
	if err == nil && !ran {
		return stats, ErrBusy
	}
	return stats, err
}
