package task

import (
	"context"
	"maps"
)

// WorkUnit performs the actual work of a task. It must watch ctx and return
// promptly once ctx is done; the manager never forcibly stops a unit.
//
// A returned error moves the task to failed, a returned payload to completed.
type WorkUnit func(ctx context.Context, h *Handle) (Payload, error)

// Handle is the view of its task a running work unit gets. It allows
// progress reporting but no status changes.
type Handle struct {
	task *Task
}

// ID returns the task id.
func (h *Handle) ID() string { return h.task.id }

// Kind returns the task kind.
func (h *Handle) Kind() Kind { return h.task.kind }

// Input returns a copy of the task input.
func (h *Handle) Input() Payload { return maps.Clone(h.task.input) }

// SetProgress records progress in percent and the current step label.
// Values are clamped to [0,100] and a lower value than the current one is
// ignored. Calls after the task left processing are no-ops.
func (h *Handle) SetProgress(pct float64, step string) {
	h.task.setProgress(pct, step)
}
