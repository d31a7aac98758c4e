package task

import "errors"

// Common errors returned by the Manager.
var (
	// ErrTaskNotFound is returned when no task exists with the given id,
	// including tasks already evicted by the cleanup job.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidKind is returned when a task is created with an unknown kind.
	ErrInvalidKind = errors.New("invalid task kind")

	// ErrInvalidStatus is returned when a status filter cannot be parsed.
	ErrInvalidStatus = errors.New("invalid task status")

	// ErrNilWorkUnit is returned when a task is created without a work unit.
	ErrNilWorkUnit = errors.New("work unit cannot be nil")

	// ErrShuttingDown is returned when a task is created after Shutdown.
	ErrShuttingDown = errors.New("task manager is shutting down")

	// ErrTaskTimeout is recorded on tasks whose work unit outlived the
	// configured per-task deadline.
	ErrTaskTimeout = errors.New("task exceeded its timeout")
)
