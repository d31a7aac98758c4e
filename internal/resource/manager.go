package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voicetransl/voicetransl-api/internal/config"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrOverloaded is returned by TryAcquire when host memory or CPU usage
	// is above the configured ceiling.
	ErrOverloaded = errors.New("server is overloaded")

	// ErrNoCapacity is returned by TryAcquire when every slot is in use.
	ErrNoCapacity = errors.New("no execution slot available")
)

// probeTimeout bounds a single probe sample.
const probeTimeout = 2 * time.Second

// Config holds the slot count and load ceilings.
type Config struct {
	MaxConcurrentTasks int
	MaxMemoryMB        float64
	MaxCPUPercent      float64
	// CheckInterval is how long a probe verdict is reused. Zero probes on
	// every admission.
	CheckInterval time.Duration
}

// ConfigFrom combines the task and resource settings of the application.
func ConfigFrom(task config.TaskConfig, res config.ResourceConfig) Config {
	return Config{
		MaxConcurrentTasks: task.MaxConcurrentTasks,
		MaxMemoryMB:        float64(res.MaxMemoryMB),
		MaxCPUPercent:      res.MaxCPUPercent,
		CheckInterval:      config.Seconds(res.CheckIntervalSeconds),
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithProbe replaces the default SystemProbe.
func WithProbe(p Probe) Option {
	return func(m *Manager) {
		if p != nil {
			m.probe = p
		}
	}
}

// WithClock replaces the time source used for probe caching.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager owns the execution slot pool and the cached load verdict.
type Manager struct {
	cfg    Config
	sem    *semaphore.Weighted
	probe  Probe
	logger *slog.Logger
	now    func() time.Time

	// mu guards the probe cache and makes the load check and the slot
	// take in TryAcquire a single step.
	mu        sync.Mutex
	inUse     int
	lastUsage Usage
	lastCheck time.Time
	healthy   bool
	checked   bool
}

// NewManager creates a Manager with cfg.MaxConcurrentTasks slots.
func NewManager(cfg Config, logger *slog.Logger, opts ...Option) (*Manager, error) {
	if cfg.MaxConcurrentTasks <= 0 {
		return nil, fmt.Errorf("max concurrent tasks must be positive, got %d", cfg.MaxConcurrentTasks)
	}
	if cfg.MaxMemoryMB <= 0 {
		return nil, fmt.Errorf("max memory must be positive, got %v", cfg.MaxMemoryMB)
	}
	if cfg.MaxCPUPercent <= 0 || cfg.MaxCPUPercent > 100 {
		return nil, fmt.Errorf("max cpu percent must be in (0,100], got %v", cfg.MaxCPUPercent)
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrentTasks)),
		probe:   SystemProbe{},
		logger:  logger.With("component", "resource_manager"),
		now:     time.Now,
		healthy: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// TryAcquire takes a slot without blocking. It returns ErrOverloaded when
// the host is above a load ceiling and ErrNoCapacity when no slot is free.
// A nil return must be paired with exactly one Release.
func (m *Manager) TryAcquire() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.checkLocked() {
		return ErrOverloaded
	}
	if !m.sem.TryAcquire(1) {
		return ErrNoCapacity
	}
	m.inUse++
	return nil
}

// Acquire blocks until a slot is free or ctx is done. Waiters are served in
// arrival order. Load ceilings are not consulted; work already admitted is
// always allowed to run.
func (m *Manager) Acquire(ctx context.Context) error {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	m.mu.Lock()
	m.inUse++
	m.mu.Unlock()
	return nil
}

// Release returns a slot taken by TryAcquire or Acquire.
func (m *Manager) Release() {
	m.mu.Lock()
	m.inUse--
	m.mu.Unlock()
	m.sem.Release(1)
}

// Capacity returns the total number of slots.
func (m *Manager) Capacity() int {
	return m.cfg.MaxConcurrentTasks
}

// Healthy reports whether the host is under its load ceilings, probing if
// the cached verdict is stale.
func (m *Manager) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkLocked()
}

// Snapshot is a point-in-time view of the pool and the last probe.
type Snapshot struct {
	Capacity      int       `json:"max_concurrent_tasks"`
	InUse         int       `json:"slots_in_use"`
	Available     int       `json:"slots_available"`
	Usage         Usage     `json:"usage"`
	MaxMemoryMB   float64   `json:"max_memory_mb"`
	MaxCPUPercent float64   `json:"max_cpu_percent"`
	Healthy       bool      `json:"healthy"`
	LastCheck     time.Time `json:"last_check"`
}

// Snapshot returns the current pool state without probing.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		Capacity:      m.cfg.MaxConcurrentTasks,
		InUse:         m.inUse,
		Available:     m.cfg.MaxConcurrentTasks - m.inUse,
		Usage:         m.lastUsage,
		MaxMemoryMB:   m.cfg.MaxMemoryMB,
		MaxCPUPercent: m.cfg.MaxCPUPercent,
		Healthy:       m.healthy,
		LastCheck:     m.lastCheck,
	}
}

// checkLocked returns the load verdict, re-probing when the cached one is
// older than CheckInterval. Probe errors leave the host considered healthy.
// m.mu must be held.
func (m *Manager) checkLocked() bool {
	now := m.now()
	if m.checked && now.Sub(m.lastCheck) < m.cfg.CheckInterval {
		return m.healthy
	}

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	m.checked = true
	m.lastCheck = now

	usage, err := m.probe.Sample(ctx)
	if err != nil {
		m.logger.Warn("resource probe failed, admitting work", "error", err)
		m.healthy = true
		return true
	}
	m.lastUsage = usage

	healthy := usage.MemoryUsedMB <= m.cfg.MaxMemoryMB && usage.CPUPercent <= m.cfg.MaxCPUPercent
	if !healthy && m.healthy {
		m.logger.Warn("resource ceiling exceeded, refusing new work",
			"memory_used_mb", usage.MemoryUsedMB,
			"max_memory_mb", m.cfg.MaxMemoryMB,
			"cpu_percent", usage.CPUPercent,
			"max_cpu_percent", m.cfg.MaxCPUPercent)
	} else if healthy && !m.healthy {
		m.logger.Info("resource usage back under ceilings",
			"memory_used_mb", usage.MemoryUsedMB,
			"cpu_percent", usage.CPUPercent)
	}
	m.healthy = healthy
	return healthy
}
