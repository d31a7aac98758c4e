package events

import (
	"context"
	"time"
)

// TransitionEvent records a single task status change.
type TransitionEvent struct {
	// TaskID identifies the task that changed status
	TaskID string `json:"task_id"`

	// Kind is the work category of the task
	Kind string `json:"kind"`

	// From is the status before the transition
	From string `json:"from"`

	// To is the status after the transition
	To string `json:"to"`

	// At is the time the transition was applied
	At time.Time `json:"at"`
}

// Terminal reports whether the event moves the task into a final state.
func (e TransitionEvent) Terminal() bool {
	switch e.To {
	case "completed", "failed", "cancelled":
		return true
	}
	return false
}

// Handler defines an interface for components that observe transitions.
// HandleTransition is called synchronously on the goroutine that applied the
// transition, so implementations must return quickly.
type Handler interface {
	HandleTransition(ctx context.Context, event TransitionEvent) error
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(ctx context.Context, event TransitionEvent) error

// HandleTransition calls f(ctx, event).
func (f HandlerFunc) HandleTransition(ctx context.Context, event TransitionEvent) error {
	return f(ctx, event)
}

// Emitter defines an interface for components that publish transitions.
type Emitter interface {
	Emit(ctx context.Context, event TransitionEvent) error
}
