package daemon

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/user/fleetpulse/internal/metrics"
	"github.com/user/fleetpulse/internal/util"
)

// ConfigProvider stores task bookkeeping that must survive restarts.
type ConfigProvider interface {
	Get(key, def string) string
	UpdateDBKey(key, value string) error
}

// Pinger checks and restores database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
	Reconnect() error
}

// Task is a named unit of periodic work.
type Task struct {
	Name     string
	Interval time.Duration
	// Schedule, when set, decides due times instead of Interval.
	Schedule cron.Schedule
	// Timeout bounds a single run. Zero means no bound other than shutdown.
	Timeout time.Duration
	Run     func(ctx context.Context) error

	// lock is held for the whole run; ticks that cannot take it are skipped.
	lock sync.Mutex

	mu         sync.RWMutex
	spec       string
	lastRun    time.Time
	lastError  error
	errorCount int
	runs       int
	skipped    int
	running    bool
}

// TaskStatus represents the status of a task.
type TaskStatus struct {
	Name       string        `json:"name"`
	Interval   time.Duration `json:"interval"`
	Schedule   string        `json:"schedule,omitempty"`
	LastRun    time.Time     `json:"last_run"`
	NextRun    time.Time     `json:"next_run"`
	LastError  string        `json:"last_error,omitempty"`
	ErrorCount int           `json:"error_count"`
	Runs       int           `json:"runs"`
	Skipped    int           `json:"skipped"`
	Running    bool          `json:"running"`
}

func lastRunKey(name string) string  { return "task." + name + ".last_run" }
func intervalKey(name string) string { return "task." + name + ".interval" }

// ParseSchedule parses a cron expression or descriptor such as "@weekly".
func ParseSchedule(spec string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, util.WrapError(util.CodeConfiguration, fmt.Sprintf("invalid schedule %q", spec), err)
	}
	return sched, nil
}

// NewCronTask creates a task due on the given cron schedule.
func NewCronTask(name, spec string, run func(ctx context.Context) error) (*Task, error) {
	sched, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}
	return &Task{Name: name, Schedule: sched, spec: spec, Run: run}, nil
}

// nextRun returns when the task is next due; the zero time means now.
func (t *Task) nextRun() time.Time {
	if t.lastRun.IsZero() {
		return time.Time{}
	}
	if t.Schedule != nil {
		return t.Schedule.Next(t.lastRun)
	}
	return t.lastRun.Add(t.Interval)
}

func (t *Task) due(now time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return !now.Before(t.nextRun())
}

// Scheduler fires tasks from a single one-second tick loop. Each task runs
// in its own goroutine, at most once at a time.
type Scheduler struct {
	config  ConfigProvider
	db      Pinger
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc

	tasks   []*Task
	mu      sync.RWMutex
	runs    sync.WaitGroup
	loop    sync.WaitGroup
	onStop  []func()
	started time.Time

	reconnect atomic.Bool
	active    atomic.Int32
}

// NewScheduler creates a scheduler persisting last-run times in cfg.
// db may be nil when tasks do not use the database.
func NewScheduler(cfg ConfigProvider, db Pinger, m *metrics.Metrics) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		config:  cfg,
		db:      db,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		started: time.Now(),
	}
}

// AddTask registers a task. Tasks are considered in registration order on
// every tick. A persisted last run and interval override are loaded here.
func (s *Scheduler) AddTask(t *Task) {
	t.mu.Lock()
	if v := s.config.Get(intervalKey(t.Name), ""); v != "" {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil && secs > 0 {
			t.Interval = time.Duration(secs) * time.Second
		} else {
			util.Warn("Ignoring invalid interval override %q for task %s", v, t.Name)
		}
	}
	if v := s.config.Get(lastRunKey(t.Name), ""); v != "" {
		if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
			t.lastRun = time.Unix(secs, 0)
		}
	}
	// Calendar tasks wait for their next slot instead of firing at startup.
	if t.Schedule != nil && t.lastRun.IsZero() {
		t.lastRun = s.started
	}
	t.mu.Unlock()

	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()
}

// OnStop registers fn to run after in-flight tasks finish during Stop.
func (s *Scheduler) OnStop(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStop = append(s.onStop, fn)
}

// Start runs the tick loop in the background.
func (s *Scheduler) Start() {
	s.mu.RLock()
	n := len(s.tasks)
	s.mu.RUnlock()
	util.Info("Scheduler started with %d tasks", n)

	s.loop.Add(1)
	go func() {
		defer s.loop.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				return
			case now := <-ticker.C:
				s.Tick(now)
			}
		}
	}()
}

// Stop ends the tick loop, waits up to timeout for running tasks and then
// runs the OnStop hooks. It reports whether every task finished in time.
func (s *Scheduler) Stop(timeout time.Duration) bool {
	util.Info("Scheduler stopping")
	s.cancel()
	s.loop.Wait()

	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()

	clean := true
	select {
	case <-done:
	case <-time.After(timeout):
		clean = false
		for _, st := range s.Statuses() {
			if st.Running {
				util.Warn("Task %s did not stop cleanly within %s", st.Name, timeout)
			}
		}
	}

	s.mu.RLock()
	hooks := s.onStop
	s.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
	return clean
}

// Tick starts every task due at now whose previous run has finished.
func (s *Scheduler) Tick(now time.Time) {
	if s.ctx.Err() != nil {
		return
	}

	s.mu.RLock()
	tasks := s.tasks
	s.mu.RUnlock()

	var due []*Task
	for _, t := range tasks {
		if t.due(now) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return
	}

	if !s.ensureDB() {
		return
	}

	for _, t := range due {
		if !t.lock.TryLock() {
			t.mu.Lock()
			t.skipped++
			t.mu.Unlock()
			s.metrics.TaskSkipped(t.Name)
			util.Debug("Task %s still running, skipping tick", t.Name)
			continue
		}
		s.runs.Add(1)
		s.active.Add(1)
		go s.run(t, now)
	}
}

// ensureDB pings the database before a batch and tries one reconnect when
// the ping fails or a task reported lost connectivity. Reconnect closes the
// old handle, so it waits until no task is running; until then a failed
// ping skips the batch.
func (s *Scheduler) ensureDB() bool {
	if s.db == nil {
		return true
	}
	busy := s.active.Load() > 0
	if !s.reconnect.Swap(false) || busy {
		err := s.db.Ping(s.ctx)
		if err == nil {
			return true
		}
		util.Warn("Database unavailable: %v", err)
		if busy {
			s.reconnect.Store(true)
			util.Info("Tasks still running, deferring database reconnect")
			return false
		}
	}

	util.Info("Reconnecting to database")
	if err := s.db.Reconnect(); err != nil {
		util.Error("Database reconnect failed, skipping this tick: %v", err)
		return false
	}
	return true
}

func (s *Scheduler) run(t *Task, now time.Time) {
	defer s.runs.Done()
	defer s.active.Add(-1)
	defer t.lock.Unlock()

	log := util.WithFields(logrus.Fields{"task": t.Name, "run_id": xid.New().String()})

	t.mu.Lock()
	t.running = true
	t.mu.Unlock()

	log.Debug("Task started")
	start := time.Now()
	err := s.invoke(t)
	elapsed := time.Since(start)

	t.mu.Lock()
	t.running = false
	t.runs++
	if err != nil {
		t.lastError = err
		t.errorCount++
	} else {
		t.lastError = nil
		t.lastRun = now
	}
	t.mu.Unlock()

	if err != nil {
		log.WithError(err).Errorf("Task failed after %s", elapsed.Round(time.Millisecond))
		s.metrics.TaskRun(t.Name, "error", elapsed)
		if errors.Is(err, util.ErrDatabase) {
			s.reconnect.Store(true)
		}
		return
	}

	s.metrics.TaskRun(t.Name, "ok", elapsed)
	log.Debugf("Task completed in %s", elapsed.Round(time.Millisecond))

	if err := s.config.UpdateDBKey(lastRunKey(t.Name), strconv.FormatInt(now.Unix(), 10)); err != nil {
		log.WithError(err).Warn("Failed to persist last run")
		if errors.Is(err, util.ErrDatabase) {
			s.reconnect.Store(true)
		}
	}
}

// invoke runs the task body, converting a panic into an error.
func (s *Scheduler) invoke(t *Task) (err error) {
	ctx := s.ctx
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			util.Debug("Task %s panic stack: %s", t.Name, debug.Stack())
			err = util.WrapError(util.CodeTaskFailed, fmt.Sprintf("task %s panicked", t.Name), fmt.Errorf("%v", r))
		}
	}()
	return t.Run(ctx)
}

// Statuses returns the status of all tasks.
func (s *Scheduler) Statuses() []TaskStatus {
	s.mu.RLock()
	tasks := s.tasks
	s.mu.RUnlock()

	statuses := make([]TaskStatus, len(tasks))
	for i, t := range tasks {
		t.mu.RLock()
		st := TaskStatus{
			Name:       t.Name,
			Interval:   t.Interval,
			Schedule:   t.spec,
			LastRun:    t.lastRun,
			NextRun:    t.nextRun(),
			ErrorCount: t.errorCount,
			Runs:       t.runs,
			Skipped:    t.skipped,
			Running:    t.running,
		}
		if t.lastError != nil {
			st.LastError = t.lastError.Error()
		}
		t.mu.RUnlock()
		statuses[i] = st
	}
	return statuses
}
