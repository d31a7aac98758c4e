package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/voicetransl/voicetransl-api/internal/config"
	"github.com/voicetransl/voicetransl-api/internal/events"
	"github.com/voicetransl/voicetransl-api/internal/redact"
)

// List paging bounds.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// Config controls the Manager.
type Config struct {
	// CleanupInterval is the period of the expired-task sweep.
	CleanupInterval time.Duration
	// Retention is how long a terminal task is kept after its last update.
	Retention time.Duration
	// Timeout bounds a single work unit. Zero disables the deadline.
	Timeout time.Duration
	// ShutdownGrace bounds how long Shutdown waits for running units.
	ShutdownGrace time.Duration
}

// ConfigFrom converts the application task settings.
func ConfigFrom(c config.TaskConfig) Config {
	return Config{
		CleanupInterval: config.Seconds(c.CleanupIntervalSeconds),
		Retention:       time.Duration(c.RetentionHours) * time.Hour,
		Timeout:         config.Seconds(c.TimeoutSeconds),
		ShutdownGrace:   config.Seconds(c.ShutdownGraceSeconds),
	}
}

func (c Config) withDefaults() Config {
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 5 * time.Minute
	}
	if c.Retention <= 0 {
		c.Retention = 24 * time.Hour
	}
	if c.Timeout < 0 {
		c.Timeout = 0
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 10 * time.Second
	}
	return c
}

// SlotPool bounds how many work units execute at once.
// Acquire blocks until a slot is free or ctx is done.
type SlotPool interface {
	Acquire(ctx context.Context) error
	Release()
	Capacity() int
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the time source used for task timestamps and expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithEmitter publishes every status transition to emitter.
func WithEmitter(emitter events.Emitter) Option {
	return func(m *Manager) {
		m.emitter = emitter
	}
}

type entry struct {
	task   *Task
	cancel context.CancelFunc
}

// queued is a pending task waiting for the dispatcher.
type queued struct {
	task   *Task
	ctx    context.Context
	cancel context.CancelFunc
	unit   WorkUnit
}

// Manager owns the task table and runs work units in the background.
// It is safe for concurrent use.
type Manager struct {
	cfg     Config
	slots   SlotPool
	logger  *slog.Logger
	emitter events.Emitter
	now     func() time.Time

	mu      sync.RWMutex
	tasks   map[string]entry
	queue   []queued
	wake    chan struct{}
	closed  bool
	cron    *cron.Cron
	seq     atomic.Uint64
	active  atomic.Int64
	started time.Time

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewManager creates a Manager drawing execution slots from slots.
func NewManager(cfg Config, slots SlotPool, logger *slog.Logger, opts ...Option) (*Manager, error) {
	if slots == nil {
		return nil, errors.New("slot pool cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:    cfg.withDefaults(),
		slots:  slots,
		logger: logger.With("component", "task_manager"),
		now:    time.Now,
		tasks:  make(map[string]entry),
		wake:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.started = m.now()
	m.baseCtx, m.baseCancel = context.WithCancel(context.Background())

	go m.dispatch()

	return m, nil
}

// Create registers a new pending task and queues unit for execution.
// It returns as soon as the task is recorded. Queued tasks take execution
// slots in creation order.
func (m *Manager) Create(kind Kind, input Payload, unit WorkUnit) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if unit == nil {
		return "", ErrNilWorkUnit
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrShuttingDown
	}
	t := newTask(uuid.NewString(), kind, input, m.now(), m.seq.Add(1))
	ctx, cancel := context.WithCancel(m.baseCtx)

	// The pending event goes out before any transition made through the
	// table can be published.
	t.emitMu.Lock()
	m.tasks[t.id] = entry{task: t, cancel: cancel}
	m.queue = append(m.queue, queued{task: t, ctx: ctx, cancel: cancel, unit: unit})
	m.wg.Add(1)
	m.mu.Unlock()
	m.emit(t, "", StatusPending)
	t.emitMu.Unlock()

	m.logger.Info("task created", "task_id", t.id, "task_kind", kind)

	select {
	case m.wake <- struct{}{}:
	default:
	}

	return t.id, nil
}

// Status returns a snapshot of the task.
func (m *Manager) Status(id string) (Snapshot, error) {
	t, err := m.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	return t.snapshot(), nil
}

// Result returns the outcome of a task. Outcome.Ready is false while the
// task is pending or processing, and for cancelled tasks.
func (m *Manager) Result(id string) (Outcome, error) {
	t, err := m.lookup(id)
	if err != nil {
		return Outcome{}, err
	}
	return t.outcome(), nil
}

// ListFilter narrows and pages List results. Zero values mean no filter.
type ListFilter struct {
	Kind   Kind
	Status Status
	Limit  int
	Offset int
}

// List returns snapshots of matching tasks, newest first.
func (m *Manager) List(filter ListFilter) []Snapshot {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	offset := max(filter.Offset, 0)

	m.mu.RLock()
	tasks := make([]*Task, 0, len(m.tasks))
	for _, e := range m.tasks {
		if filter.Kind != "" && e.task.kind != filter.Kind {
			continue
		}
		tasks = append(tasks, e.task)
	}
	m.mu.RUnlock()

	slices.SortFunc(tasks, func(a, b *Task) int {
		if c := b.createdAt.Compare(a.createdAt); c != 0 {
			return c
		}
		switch {
		case a.seq > b.seq:
			return -1
		case a.seq < b.seq:
			return 1
		}
		return 0
	})

	out := make([]Snapshot, 0, min(limit, len(tasks)))
	skipped := 0
	for _, t := range tasks {
		snap := t.snapshot()
		if filter.Status != "" && snap.Status != filter.Status {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, snap)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Cancel requests cancellation of a task. It returns false when the task is
// already terminal. A pending task is cancelled before it ever runs; a
// processing task has its work unit context cancelled.
func (m *Manager) Cancel(id string) (bool, error) {
	m.mu.RLock()
	e, ok := m.tasks[id]
	m.mu.RUnlock()
	if !ok {
		return false, ErrTaskNotFound
	}

	var prev Status
	changed := m.apply(e.task, StatusCancelled, func(now time.Time) (Status, bool) {
		var ok bool
		prev, ok = e.task.cancel(now)
		return prev, ok
	})
	if !changed {
		return false, nil
	}
	e.cancel()

	m.logger.Info("task cancelled", "task_id", id, "previous_status", prev)
	return true, nil
}

// Stats summarizes the task table.
type Stats struct {
	TotalTasks         int            `json:"total_tasks"`
	ActiveTasks        int            `json:"active_tasks"`
	MaxConcurrentTasks int            `json:"max_concurrent_tasks"`
	StatusCounts       map[Status]int `json:"status_counts"`
	UptimeSeconds      float64        `json:"uptime_seconds"`
}

// Stats returns counts over every task currently tracked.
func (m *Manager) Stats() Stats {
	counts := make(map[Status]int, len(AllStatuses))
	for _, s := range AllStatuses {
		counts[s] = 0
	}

	m.mu.RLock()
	total := len(m.tasks)
	for _, e := range m.tasks {
		counts[e.task.currentStatus()]++
	}
	m.mu.RUnlock()

	return Stats{
		TotalTasks:         total,
		ActiveTasks:        int(m.active.Load()),
		MaxConcurrentTasks: m.slots.Capacity(),
		StatusCounts:       counts,
		UptimeSeconds:      m.now().Sub(m.started).Seconds(),
	}
}

// Shutdown stops the cleanup job, cancels every running or pending task and
// waits for their goroutines to return. The wait is bounded by ctx and the
// configured grace period. Calling Shutdown more than once is a no-op.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	c := m.cron
	m.mu.Unlock()

	m.logger.Info("shutting down task manager")

	if c != nil {
		<-c.Stop().Done()
	}
	m.baseCancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	grace := time.NewTimer(m.cfg.ShutdownGrace)
	defer grace.Stop()

	select {
	case <-done:
		m.logger.Info("task manager stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running tasks: %w", ctx.Err())
	case <-grace.C:
		return fmt.Errorf("tasks still running after %s grace period", m.cfg.ShutdownGrace)
	}
}

func (m *Manager) lookup(id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return e.task, nil
}

// dispatch hands queued tasks to run one at a time, in creation order,
// each as soon as it holds a slot. It returns once the manager shuts down.
func (m *Manager) dispatch() {
	for {
		q, ok := m.dequeue()
		if !ok {
			select {
			case <-m.wake:
				continue
			case <-m.baseCtx.Done():
				m.drain()
				return
			}
		}

		if err := q.ctx.Err(); err != nil {
			m.abandon(q, err)
			continue
		}
		if err := m.slots.Acquire(q.ctx); err != nil {
			m.abandon(q, err)
			continue
		}
		go m.run(q.ctx, q.cancel, q.task, q.unit)
	}
}

func (m *Manager) dequeue() (queued, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		return queued{}, false
	}
	q := m.queue[0]
	m.queue[0] = queued{}
	m.queue = m.queue[1:]
	return q, true
}

// drain abandons every task still queued at shutdown.
func (m *Manager) drain() {
	for {
		q, ok := m.dequeue()
		if !ok {
			return
		}
		m.abandon(q, m.baseCtx.Err())
	}
}

// abandon finishes a queued task that never got a slot.
func (m *Manager) abandon(q queued, err error) {
	defer m.wg.Done()
	defer q.cancel()

	m.logger.Debug("task stopped waiting for a slot", "task_id", q.task.id, "error", err)
	m.markCancelled(q.task)
}

// run drives one task holding a slot from pending to a terminal state.
func (m *Manager) run(ctx context.Context, cancel context.CancelFunc, t *Task, unit WorkUnit) {
	defer m.wg.Done()
	defer cancel()
	defer m.slots.Release()

	log := m.logger.With("task_id", t.id, "task_kind", t.kind)

	if !m.apply(t, StatusProcessing, t.start) {
		log.Debug("task left pending before it started", "status", t.currentStatus())
		return
	}
	log.Info("task started")

	unitCtx := ctx
	if m.cfg.Timeout > 0 {
		var stop context.CancelFunc
		unitCtx, stop = context.WithTimeout(ctx, m.cfg.Timeout)
		defer stop()
	}

	m.active.Add(1)
	start := time.Now()
	result, err := invoke(unitCtx, t, unit, log)
	m.active.Add(-1)

	timedOut := err != nil && ctx.Err() == nil &&
		errors.Is(unitCtx.Err(), context.DeadlineExceeded)

	switch {
	case err == nil:
		completed := m.apply(t, StatusCompleted, func(now time.Time) (Status, bool) {
			return StatusProcessing, t.complete(result, now)
		})
		if completed {
			log.Info("task completed", "duration_ms", time.Since(start).Milliseconds())
		} else {
			log.Debug("discarding result of task that is no longer processing")
		}
	case timedOut:
		err = fmt.Errorf("%w of %s", ErrTaskTimeout, m.cfg.Timeout)
		m.markFailed(t, err, log)
	case ctx.Err() != nil:
		m.markCancelled(t)
	default:
		m.markFailed(t, err, log)
	}
}

// invoke calls unit, converting a panic into an error.
func invoke(ctx context.Context, t *Task, unit WorkUnit, log *slog.Logger) (result Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("work unit panicked", "panic", r, "stack", string(debug.Stack()))
			result, err = nil, fmt.Errorf("work unit panicked: %v", r)
		}
	}()
	return unit(ctx, &Handle{task: t})
}

func (m *Manager) markFailed(t *Task, err error, log *slog.Logger) {
	failed := m.apply(t, StatusFailed, func(now time.Time) (Status, bool) {
		return StatusProcessing, t.fail(err.Error(), now)
	})
	if failed {
		log.Error("task failed", "error", redact.Error(err))
	}
}

func (m *Manager) markCancelled(t *Task) {
	var prev Status
	cancelled := m.apply(t, StatusCancelled, func(now time.Time) (Status, bool) {
		var ok bool
		prev, ok = t.cancel(now)
		return prev, ok
	})
	if cancelled {
		m.logger.Info("task cancelled", "task_id", t.id, "previous_status", prev)
	}
}

// apply runs one transition of t and publishes its event before any later
// transition of t can be published.
func (m *Manager) apply(t *Task, to Status, transition func(now time.Time) (Status, bool)) bool {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()

	from, ok := transition(m.now())
	if ok {
		m.emit(t, from, to)
	}
	return ok
}

func (m *Manager) emit(t *Task, from, to Status) {
	if m.emitter == nil {
		return
	}
	_ = m.emitter.Emit(context.Background(), events.TransitionEvent{
		TaskID: t.id,
		Kind:   string(t.kind),
		From:   string(from),
		To:     string(to),
		At:     m.now(),
	})
}
