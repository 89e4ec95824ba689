package daemon

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/fleetpulse/internal/metrics"
	"github.com/user/fleetpulse/internal/util"
)

type memConfig struct {
	mu     sync.Mutex
	values map[string]string
}

func newMemConfig() *memConfig {
	return &memConfig{values: map[string]string{}}
}

func (c *memConfig) Get(key, def string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.values[key]; ok {
		return v
	}
	return def
}

func (c *memConfig) UpdateDBKey(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

type fakeDB struct {
	pingErr      error
	reconnectErr error
	pings        atomic.Int32
	reconnects   atomic.Int32
}

func (f *fakeDB) Ping(ctx context.Context) error {
	f.pings.Add(1)
	return f.pingErr
}

func (f *fakeDB) Reconnect() error {
	f.reconnects.Add(1)
	return f.reconnectErr
}

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func TestSchedulerAtMostOneRun(t *testing.T) {
	s := NewScheduler(newMemConfig(), nil, metrics.New())

	var calls, concurrent, maxConcurrent atomic.Int32
	release := make(chan struct{})
	s.AddTask(&Task{
		Name:     "slow",
		Interval: time.Second,
		Run: func(ctx context.Context) error {
			calls.Add(1)
			n := concurrent.Add(1)
			if n > maxConcurrent.Load() {
				maxConcurrent.Store(n)
			}
			<-release
			concurrent.Add(-1)
			return nil
		},
	})

	s.Tick(t0)
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	// The body outlives its interval; further ticks are skipped, not queued.
	s.Tick(t0.Add(2 * time.Second))
	s.Tick(t0.Add(3 * time.Second))
	assert.Equal(t, int32(1), calls.Load())

	st := s.Statuses()[0]
	assert.True(t, st.Running)
	assert.Equal(t, 2, st.Skipped)

	close(release)
	s.runs.Wait()

	s.Tick(t0.Add(4 * time.Second))
	s.runs.Wait()
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(1), maxConcurrent.Load())
}

func TestSchedulerPersistsLastRun(t *testing.T) {
	cfg := newMemConfig()
	var calls atomic.Int32
	task := func() *Task {
		return &Task{Name: "discovery", Interval: time.Hour, Run: func(ctx context.Context) error {
			calls.Add(1)
			return nil
		}}
	}

	s := NewScheduler(cfg, nil, nil)
	s.AddTask(task())
	s.Tick(t0)
	s.runs.Wait()
	require.Equal(t, int32(1), calls.Load())
	assert.Equal(t, strconv.FormatInt(t0.Unix(), 10), cfg.Get("task.discovery.last_run", ""))

	s.Tick(t0.Add(30 * time.Minute))
	s.runs.Wait()
	assert.Equal(t, int32(1), calls.Load(), "not due before the interval elapses")

	// A restarted scheduler resumes the due time instead of firing at once.
	restarted := NewScheduler(cfg, nil, nil)
	restarted.AddTask(task())
	restarted.Tick(t0.Add(31 * time.Minute))
	restarted.runs.Wait()
	assert.Equal(t, int32(1), calls.Load())

	restarted.Tick(t0.Add(time.Hour))
	restarted.runs.Wait()
	assert.Equal(t, int32(2), calls.Load())
}

func TestSchedulerFailureKeepsLastRun(t *testing.T) {
	cfg := newMemConfig()
	s := NewScheduler(cfg, nil, nil)

	var calls atomic.Int32
	s.AddTask(&Task{Name: "flaky", Interval: time.Hour, Run: func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("boom")
		}
		return nil
	}})

	s.Tick(t0)
	s.runs.Wait()
	assert.Equal(t, "", cfg.Get("task.flaky.last_run", ""))
	st := s.Statuses()[0]
	assert.Equal(t, 1, st.ErrorCount)
	assert.Equal(t, "boom", st.LastError)

	// Retried on the next tick rather than after a full interval.
	s.Tick(t0.Add(time.Second))
	s.runs.Wait()
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, strconv.FormatInt(t0.Add(time.Second).Unix(), 10), cfg.Get("task.flaky.last_run", ""))
	assert.Empty(t, s.Statuses()[0].LastError)
}

func TestSchedulerIsolatesPanics(t *testing.T) {
	s := NewScheduler(newMemConfig(), nil, nil)

	var healthy atomic.Int32
	s.AddTask(&Task{Name: "broken", Interval: time.Minute, Run: func(ctx context.Context) error {
		panic("nil map")
	}})
	s.AddTask(&Task{Name: "healthy", Interval: time.Minute, Run: func(ctx context.Context) error {
		healthy.Add(1)
		return nil
	}})

	s.Tick(t0)
	s.runs.Wait()
	assert.Equal(t, int32(1), healthy.Load())

	st := s.Statuses()[0]
	assert.Equal(t, 1, st.ErrorCount)
	assert.Contains(t, st.LastError, "panicked")
	assert.Contains(t, st.LastError, "nil map")
}

func TestSchedulerIntervalOverride(t *testing.T) {
	cfg := newMemConfig()
	require.NoError(t, cfg.UpdateDBKey("task.hosts_checker.interval", "300"))
	s := NewScheduler(cfg, nil, nil)

	task := &Task{Name: "hosts_checker", Interval: time.Minute, Run: func(ctx context.Context) error { return nil }}
	s.AddTask(task)
	assert.Equal(t, 5*time.Minute, s.Statuses()[0].Interval)
}

func TestSchedulerCronTask(t *testing.T) {
	s := NewScheduler(newMemConfig(), nil, nil)
	s.started = t0.Add(5 * time.Minute)

	var calls atomic.Int32
	task, err := NewCronTask("hourly", "@hourly", func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, err)
	s.AddTask(task)

	s.Tick(t0.Add(6 * time.Minute))
	s.runs.Wait()
	assert.Equal(t, int32(0), calls.Load(), "calendar tasks wait for their slot")

	s.Tick(t0.Add(time.Hour))
	s.runs.Wait()
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, t0.Add(2*time.Hour), s.Statuses()[0].NextRun.UTC())

	_, err = NewCronTask("bad", "every tuesday", nil)
	assert.ErrorIs(t, err, util.ErrConfig)
}

func TestSchedulerDatabaseReconnect(t *testing.T) {
	db := &fakeDB{pingErr: errors.New("database is locked")}
	s := NewScheduler(newMemConfig(), db, nil)

	var calls atomic.Int32
	s.AddTask(&Task{Name: "t", Interval: time.Minute, Run: func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}})

	s.Tick(t0)
	s.runs.Wait()
	assert.Equal(t, int32(1), db.reconnects.Load())
	assert.Equal(t, int32(1), calls.Load(), "batch runs after a successful reconnect")
}

func TestSchedulerSkipsBatchWhenReconnectFails(t *testing.T) {
	db := &fakeDB{pingErr: errors.New("gone"), reconnectErr: errors.New("still gone")}
	s := NewScheduler(newMemConfig(), db, nil)

	var calls atomic.Int32
	s.AddTask(&Task{Name: "t", Interval: time.Minute, Run: func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}})

	s.Tick(t0)
	s.runs.Wait()
	assert.Equal(t, int32(0), calls.Load())

	db.pingErr = nil
	s.Tick(t0.Add(time.Second))
	s.runs.Wait()
	assert.Equal(t, int32(1), calls.Load(), "retried on the next tick")
}

func TestSchedulerReconnectsAfterDatabaseError(t *testing.T) {
	db := &fakeDB{}
	s := NewScheduler(newMemConfig(), db, nil)

	var calls atomic.Int32
	s.AddTask(&Task{Name: "t", Interval: time.Minute, Run: func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			return util.WrapError(util.CodeDatabaseConnection, "write failed", errors.New("disk I/O error"))
		}
		return nil
	}})

	s.Tick(t0)
	s.runs.Wait()
	assert.Equal(t, int32(0), db.reconnects.Load())

	s.Tick(t0.Add(time.Second))
	s.runs.Wait()
	assert.Equal(t, int32(1), db.reconnects.Load())
	assert.Equal(t, int32(2), calls.Load())
}

func TestSchedulerDefersReconnectWhileTasksRun(t *testing.T) {
	db := &fakeDB{}
	s := NewScheduler(newMemConfig(), db, nil)

	release := make(chan struct{})
	s.AddTask(&Task{Name: "slow", Interval: time.Second, Run: func(ctx context.Context) error {
		<-release
		return nil
	}})
	var fast atomic.Int32
	s.AddTask(&Task{Name: "fast", Interval: time.Second, Run: func(ctx context.Context) error {
		fast.Add(1)
		return nil
	}})

	s.Tick(t0)
	require.Eventually(t, func() bool { return s.active.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), fast.Load())

	db.pingErr = errors.New("database is locked")
	s.Tick(t0.Add(time.Second))
	assert.Equal(t, int32(0), db.reconnects.Load(), "no reconnect under a running task")
	assert.Equal(t, int32(1), fast.Load(), "batch skipped")

	close(release)
	s.runs.Wait()

	s.Tick(t0.Add(2 * time.Second))
	s.runs.Wait()
	assert.Equal(t, int32(1), db.reconnects.Load())
	assert.Equal(t, int32(2), fast.Load())
}

func TestSchedulerStop(t *testing.T) {
	s := NewScheduler(newMemConfig(), nil, nil)

	var flushed atomic.Bool
	s.OnStop(func() { flushed.Store(true) })

	started := make(chan struct{})
	s.AddTask(&Task{Name: "long", Interval: time.Minute, Run: func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		return ctx.Err()
	}})
	s.Start()
	s.Tick(t0)
	<-started

	assert.True(t, s.Stop(time.Second))
	assert.True(t, flushed.Load())

	s.Tick(t0.Add(time.Hour))
	assert.Equal(t, 1, s.Statuses()[0].Runs, "no ticks after stop")
}

func TestSchedulerStopTimeout(t *testing.T) {
	s := NewScheduler(newMemConfig(), nil, nil)

	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	s.AddTask(&Task{Name: "stuck", Interval: time.Minute, Run: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}})
	s.Tick(t0)
	<-started

	assert.False(t, s.Stop(50*time.Millisecond))
}
