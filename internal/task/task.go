package task

import (
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"
)

// Kind is the work category of a task.
type Kind string

// Supported task kinds
const (
	KindTranscription Kind = "transcription"
	KindTranslation   Kind = "translation"
)

// ParseKind converts a case-insensitive name into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindTranscription || k == KindTranslation
}

// Status represents the current state of a task.
type Status string

// Possible task status values
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

// ParseStatus converts a case-insensitive name into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllStatuses {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Payload is an opaque key/value document used for task input and results.
type Payload map[string]any

// Task is one unit of background work tracked by the Manager.
//
// id, kind, input, createdAt and seq never change after construction and may
// be read without the lock. Every other field is guarded by mu. emitMu is
// held across a transition and the publication of its event so that a
// task's events are observed in the order they were applied.
type Task struct {
	id        string
	kind      Kind
	input     Payload
	createdAt time.Time
	seq       uint64

	emitMu sync.Mutex

	mu          sync.Mutex
	status      Status
	updatedAt   time.Time
	startedAt   *time.Time
	completedAt *time.Time
	result      Payload
	errMsg      string
	progress    float64
	currentStep string
}

func newTask(id string, kind Kind, input Payload, now time.Time, seq uint64) *Task {
	return &Task{
		id:        id,
		kind:      kind,
		input:     maps.Clone(input),
		createdAt: now,
		seq:       seq,
		status:    StatusPending,
		updatedAt: now,
	}
}

// start moves a pending task to processing. It returns the current status
// and false when the task has already left pending.
func (t *Task) start(now time.Time) (Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusPending {
		return t.status, false
	}
	t.status = StatusProcessing
	t.startedAt = &now
	t.touch(now)
	return StatusPending, true
}

// complete records the result of a processing task.
func (t *Task) complete(result Payload, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusProcessing {
		return false
	}
	t.status = StatusCompleted
	t.result = result
	t.progress = 100
	t.completedAt = &now
	t.touch(now)
	return true
}

// fail records the error of a processing task.
func (t *Task) fail(msg string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusProcessing {
		return false
	}
	t.status = StatusFailed
	t.errMsg = msg
	t.completedAt = &now
	t.touch(now)
	return true
}

// cancel moves a non-terminal task to cancelled and returns the previous status.
func (t *Task) cancel(now time.Time) (Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.Terminal() {
		return t.status, false
	}
	prev := t.status
	t.status = StatusCancelled
	t.touch(now)
	return prev, true
}

// setProgress updates progress while processing. Progress never decreases.
func (t *Task) setProgress(pct float64, step string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusProcessing {
		return
	}
	pct = min(max(pct, 0), 100)
	if pct > t.progress {
		t.progress = pct
	}
	if step != "" {
		t.currentStep = step
	}
}

func (t *Task) touch(now time.Time) {
	if now.Before(t.updatedAt) {
		now = t.updatedAt
	}
	t.updatedAt = now
}

func (t *Task) currentStatus() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// expiredBy reports whether t is terminal and was last updated before cutoff.
func (t *Task) expiredBy(cutoff time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status.Terminal() && t.updatedAt.Before(cutoff)
}

// Snapshot is a consistent, read-only copy of a task's state.
type Snapshot struct {
	ID          string     `json:"task_id"`
	Kind        Kind       `json:"task_type"`
	Status      Status     `json:"status"`
	Progress    float64    `json:"progress"`
	CurrentStep string     `json:"current_step,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	Error       string     `json:"error,omitempty"`
}

func (t *Task) snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Snapshot{
		ID:          t.id,
		Kind:        t.kind,
		Status:      t.status,
		Progress:    t.progress,
		CurrentStep: t.currentStep,
		CreatedAt:   t.createdAt,
		UpdatedAt:   t.updatedAt,
		StartedAt:   copyTime(t.startedAt),
		CompletedAt: copyTime(t.completedAt),
		Error:       t.errMsg,
	}
}

// Outcome is the answer to a result query.
//
// Ready is true only for completed and failed tasks. Result is set for
// completed tasks, Error for failed ones and Message otherwise.
type Outcome struct {
	ID      string  `json:"task_id"`
	Status  Status  `json:"status"`
	Ready   bool    `json:"-"`
	Result  Payload `json:"result,omitempty"`
	Error   string  `json:"error,omitempty"`
	Message string  `json:"message,omitempty"`
}

// NotReadyMessage is reported for tasks without a result yet.
const NotReadyMessage = "Task not yet completed"

func (t *Task) outcome() Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := Outcome{ID: t.id, Status: t.status}
	switch t.status {
	case StatusCompleted:
		out.Ready = true
		out.Result = maps.Clone(t.result)
	case StatusFailed:
		out.Ready = true
		out.Error = t.errMsg
	default:
		out.Message = NotReadyMessage
	}
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
