package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/mattressai-engine/internal/domain"
	"github.com/Rrens/mattressai-engine/internal/metrics"
	redisrepo "github.com/Rrens/mattressai-engine/internal/repository/redis"
)

type countingTask struct {
	runs atomic.Int32
	err  error
}

func (t *countingTask) Name() string { return "counting" }

func (t *countingTask) RunOnce(ctx context.Context) error {
	t.runs.Add(1)
	return t.err
}

type fakeIdleChecker struct {
	ended int
	err   error
	got   int
}

func (f *fakeIdleChecker) CheckIdleSessions(ctx context.Context, idleMinutes int) (int, error) {
	f.got = idleMinutes
	return f.ended, f.err
}

type fakeProcessor struct {
	order    []string
	stats    domain.DispatchStats
	drainErr error
	dead     int
}

func (f *fakeProcessor) ProcessQueuedAlerts(ctx context.Context) (domain.DispatchStats, error) {
	f.order = append(f.order, "drain")
	return f.stats, f.drainErr
}

func (f *fakeProcessor) ProcessDLQ(ctx context.Context) (int, error) {
	f.order = append(f.order, "dlq")
	return f.dead, nil
}

type fakeDigests struct {
	stats domain.DigestStats
}

func (f *fakeDigests) Run(ctx context.Context) (domain.DigestStats, error) {
	return f.stats, nil
}

func newLocker(t *testing.T) (*redisrepo.Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisrepo.NewClientFromRedis(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	return redisrepo.NewLocker(client), mr
}

func TestRunner_Tick(t *testing.T) {
	ctx := context.Background()

	t.Run("runs and records", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m := metrics.New(reg)
		task := &countingTask{}
		locker, mr := newLocker(t)
		r := NewRunner(task, time.Minute, locker, time.Minute, m)

		ran, err := r.Tick(ctx)
		require.NoError(t, err)
		assert.True(t, ran)
		assert.EqualValues(t, 1, task.runs.Load())
		assert.False(t, mr.Exists("lock:worker:counting"), "lock released after run")
		assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkerRuns.WithLabelValues("counting", "success")))
	})

	t.Run("skips while another replica holds the lock", func(t *testing.T) {
		task := &countingTask{}
		locker, mr := newLocker(t)
		require.NoError(t, mr.Set("lock:worker:counting", "other-replica"))
		r := NewRunner(task, time.Minute, locker, time.Minute, nil)

		ran, err := r.Tick(ctx)
		require.NoError(t, err)
		assert.False(t, ran)
		assert.Zero(t, task.runs.Load())

		got, err := mr.Get("lock:worker:counting")
		require.NoError(t, err)
		assert.Equal(t, "other-replica", got)
	})

	t.Run("task error is reported", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m := metrics.New(reg)
		task := &countingTask{err: errors.New("boom")}
		r := NewRunner(task, time.Minute, nil, 0, m)

		ran, err := r.Tick(ctx)
		assert.True(t, ran)
		assert.EqualError(t, err, "boom")
		assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkerRuns.WithLabelValues("counting", "error")))
	})
}

func TestRunner_Run(t *testing.T) {
	task := &countingTask{}
	r := NewRunner(task, 10*time.Millisecond, nil, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return task.runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestAlertWorker_Cycle(t *testing.T) {
	ctx := context.Background()

	t.Run("reap then drain then dead letter", func(t *testing.T) {
		idle := &fakeIdleChecker{ended: 2}
		proc := &fakeProcessor{stats: domain.DispatchStats{Processed: 3, Sent: 2, Failed: 1}, dead: 1}
		w := NewAlertWorker(NewReaper(idle, 0), proc)

		stats, err := w.Cycle(ctx)
		require.NoError(t, err)
		assert.Equal(t, CycleStats{Reaped: 2, Dispatch: proc.stats, DeadLettered: 1}, stats)
		assert.Equal(t, 15, idle.got)
		assert.Equal(t, []string{"drain", "dlq"}, proc.order)
	})

	t.Run("reaper failure does not block the drain", func(t *testing.T) {
		idle := &fakeIdleChecker{err: errors.New("db down")}
		proc := &fakeProcessor{}
		w := NewAlertWorker(NewReaper(idle, 30), proc)

		_, err := w.Cycle(ctx)
		require.NoError(t, err)
		assert.Equal(t, 30, idle.got)
		assert.Equal(t, []string{"drain", "dlq"}, proc.order)
	})

	t.Run("drain failure stops the cycle", func(t *testing.T) {
		proc := &fakeProcessor{drainErr: errors.New("list failed")}
		w := NewAlertWorker(nil, proc)

		assert.Error(t, w.RunOnce(ctx))
		assert.Equal(t, []string{"drain"}, proc.order)
	})
}

func TestDigestWorker(t *testing.T) {
	w := NewDigestWorker(&fakeDigests{stats: domain.DigestStats{Processed: 2, Sent: 2}})
	stats, err := w.Digest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Sent)
	assert.Equal(t, "digest", w.Name())
}

func TestLockedCycle(t *testing.T) {
	ctx := context.Background()

	t.Run("skips while the in-process drain holds the lock", func(t *testing.T) {
		locker, mr := newLocker(t)
		require.NoError(t, mr.Set("lock:worker:alerts", "runner"))
		proc := &fakeProcessor{}
		c := NewLockedCycle(NewAlertWorker(nil, proc), locker, time.Minute, nil)

		_, err := c.Cycle(ctx)
		assert.ErrorIs(t, err, ErrBusy)
		assert.Empty(t, proc.order)
	})

	t.Run("runs and returns stats when free", func(t *testing.T) {
		locker, mr := newLocker(t)
		proc := &fakeProcessor{stats: domain.DispatchStats{Processed: 1, Sent: 1}}
		c := NewLockedCycle(NewAlertWorker(nil, proc), locker, time.Minute, nil)

		stats, err := c.Cycle(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Dispatch.Sent)
		assert.Equal(t, []string{"drain", "dlq"}, proc.order)
		assert.False(t, mr.Exists("lock:worker:alerts"))
	})

	t.Run("in-process runner skips while a cron drain holds the lock", func(t *testing.T) {
		locker, _ := newLocker(t)
		release, err := locker.TryLock(ctx, "worker:alerts", time.Minute)
		require.NoError(t, err)
		require.NotNil(t, release)

		proc := &fakeProcessor{}
		r := NewRunner(NewAlertWorker(nil, proc), time.Minute, locker, time.Minute, nil)
		ran, err := r.Tick(ctx)
		require.NoError(t, err)
		assert.False(t, ran)
		assert.Empty(t, proc.order)
		require.NoError(t, release(ctx))
	})
}

func TestLockedDigest(t *testing.T) {
	ctx := context.Background()
	locker, mr := newLocker(t)
	d := NewLockedDigest(NewDigestWorker(&fakeDigests{stats: domain.DigestStats{Sent: 1}}), locker, time.Minute, nil)

	stats, err := d.Digest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sent)

	require.NoError(t, mr.Set("lock:worker:digest", "other"))
	_, err = d.Digest(ctx)
	assert.ErrorIs(t, err, ErrBusy)
}
