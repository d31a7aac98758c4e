package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/voicetransl/voicetransl-api/internal/api/shared"
	"github.com/voicetransl/voicetransl-api/internal/ratelimit"
	"github.com/voicetransl/voicetransl-api/internal/resource"
	"github.com/voicetransl/voicetransl-api/internal/task"
)

// TaskIDParam is the chi path parameter holding a task id.
const TaskIDParam = "taskID"

// TaskManager is the subset of task.Manager used by the handlers.
type TaskManager interface {
	Create(kind task.Kind, input task.Payload, unit task.WorkUnit) (string, error)
	Status(id string) (task.Snapshot, error)
	Result(id string) (task.Outcome, error)
	List(filter task.ListFilter) []task.Snapshot
	Cancel(id string) (bool, error)
	Stats() task.Stats
}

// ResourceReporter exposes the slot pool state.
type ResourceReporter interface {
	Snapshot() resource.Snapshot
}

// LimitReporter exposes the number of tracked rate-limit keys.
type LimitReporter interface {
	Len() map[ratelimit.Class]int
}

// TaskHandler serves the task query, cancel and stats endpoints.
type TaskHandler struct {
	tasks     TaskManager
	resources ResourceReporter
	limits    LimitReporter
	logger    *slog.Logger
}

// NewTaskHandler creates a TaskHandler. resources and limits may be nil.
func NewTaskHandler(tasks TaskManager, resources ResourceReporter, limits LimitReporter, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TaskHandler")
	}
	return &TaskHandler{
		tasks:     tasks,
		resources: resources,
		limits:    limits,
		logger:    logger.With(slog.String("component", "task_handler")),
	}
}

// Status handles GET status requests. A non-empty kind restricts the route
// to tasks of that kind.
func (h *TaskHandler) Status(kind task.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := h.tasks.Status(chi.URLParam(r, TaskIDParam))
		if err == nil && kind != "" && snap.Kind != kind {
			err = ErrKindMismatch
		}
		if err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
		shared.RespondWithJSON(w, r, http.StatusOK, snap)
	}
}

// Result handles GET result requests. Tasks without a result yet are
// reported with their status and a message, not as an error.
func (h *TaskHandler) Result(kind task.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, TaskIDParam)
		if err := h.checkKind(id, kind); err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
		out, err := h.tasks.Result(id)
		if err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
		shared.RespondWithJSON(w, r, http.StatusOK, out)
	}
}

// Cancel handles DELETE requests. Cancelling a finished task is not an
// error; the message says it could not be cancelled.
func (h *TaskHandler) Cancel(kind task.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, TaskIDParam)
		if err := h.checkKind(id, kind); err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
		cancelled, err := h.tasks.Cancel(id)
		if err != nil {
			HandleAPIError(w, r, err, "")
			return
		}

		msg := fmt.Sprintf("Task %s cancelled successfully", id)
		if !cancelled {
			msg = fmt.Sprintf("Task %s could not be cancelled (already completed or failed)", id)
		}
		h.logger.Debug("cancel requested", "task_id", id, "cancelled", cancelled)
		shared.RespondWithJSON(w, r, http.StatusOK, MessageResponse{Message: msg})
	}
}

// List handles GET /api/tasks.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListFilter(r)
	if err != nil {
		HandleAPIError(w, r, err, err.Error())
		return
	}

	tasks := h.tasks.List(filter)
	shared.RespondWithJSON(w, r, http.StatusOK, TaskListResponse{
		Tasks:  tasks,
		Total:  len(tasks),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// Stats handles GET /api/stats.
func (h *TaskHandler) Stats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Stats: h.tasks.Stats()}
	if h.resources != nil {
		resp.Resources = h.resources.Snapshot()
	}
	if h.limits != nil {
		resp.RateLimitKeys = h.limits.Len()
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

func (h *TaskHandler) checkKind(id string, kind task.Kind) error {
	if kind == "" {
		return nil
	}
	snap, err := h.tasks.Status(id)
	if err != nil {
		return err
	}
	if snap.Kind != kind {
		return ErrKindMismatch
	}
	return nil
}

// parseListFilter reads task_type, status, limit and offset from the query.
func parseListFilter(r *http.Request) (task.ListFilter, error) {
	q := r.URL.Query()
	filter := task.ListFilter{Limit: task.DefaultListLimit}

	if v := q.Get("task_type"); v != "" {
		kind, err := task.ParseKind(v)
		if err != nil {
			return filter, invalidParam(err, "Invalid task type: %s", v)
		}
		filter.Kind = kind
	}
	if v := q.Get("status"); v != "" {
		status, err := task.ParseStatus(v)
		if err != nil {
			return filter, invalidParam(err, "Invalid status: %s", v)
		}
		filter.Status = status
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > task.MaxListLimit {
			return filter, invalidParam(ErrInvalidInput, "Invalid limit: must be between 1 and %d", task.MaxListLimit)
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, invalidParam(ErrInvalidInput, "Invalid offset: must not be negative")
		}
		filter.Offset = n
	}
	return filter, nil
}

// paramError is a query parameter error whose text is safe to return.
type paramError struct {
	msg string
	err error
}

func (e *paramError) Error() string { return e.msg }
func (e *paramError) Unwrap() error { return e.err }

func invalidParam(err error, format string, args ...any) error {
	return &paramError{msg: fmt.Sprintf(format, args...), err: err}
}
