package ratelimit

import (
	"log/slog"

	"github.com/voicetransl/voicetransl-api/internal/config"
)

// Tiered holds the lenient global tier and the strict tier for
// task-creating endpoints.
type Tiered struct {
	Global *Limiter
	Task   *Limiter
}

// NewTiered builds both tiers from the application settings.
func NewTiered(cfg config.RateLimitConfig, logger *slog.Logger, opts ...Option) (*Tiered, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sweep := config.Seconds(cfg.SweepIntervalSeconds)

	global, err := NewLimiter(Config{
		RequestsPerWindow: cfg.Requests,
		Window:            config.Seconds(cfg.WindowSeconds),
		SweepInterval:     sweep,
		MaxKeys:           cfg.MaxKeys,
	}, logger.With("tier", ClassGeneral), opts...)
	if err != nil {
		return nil, err
	}

	task, err := NewLimiter(Config{
		RequestsPerWindow: cfg.TaskRequests,
		Window:            config.Seconds(cfg.TaskWindowSeconds),
		Burst:             cfg.TaskBurst,
		SweepInterval:     sweep,
		MaxKeys:           cfg.MaxKeys,
	}, logger.With("tier", ClassTask), opts...)
	if err != nil {
		return nil, err
	}

	return &Tiered{Global: global, Task: task}, nil
}

// Check applies the tier for the request: the task tier for task-creating
// requests, the global tier otherwise. It returns the class that decided.
func (t *Tiered) Check(clientID string, taskCreating bool) (bool, Info, Class) {
	if taskCreating {
		ok, info := t.Task.Allow(clientID, ClassTask)
		return ok, info, ClassTask
	}
	ok, info := t.Global.Allow(clientID, ClassGeneral)
	return ok, info, ClassGeneral
}

// Sweep sweeps both tiers.
func (t *Tiered) Sweep() int {
	return t.Global.Sweep() + t.Task.Sweep()
}

// Len returns the tracked key counts per class.
func (t *Tiered) Len() map[Class]int {
	return map[Class]int{
		ClassGeneral: t.Global.Len(),
		ClassTask:    t.Task.Len(),
	}
}
