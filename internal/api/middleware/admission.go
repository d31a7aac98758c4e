package middleware

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/voicetransl/voicetransl-api/internal/api/shared"
	"github.com/voicetransl/voicetransl-api/internal/ratelimit"
	"github.com/voicetransl/voicetransl-api/internal/resource"
)

// Rate-limit response headers
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// DefaultRetryAfter is sent when the limiter reports no retry hint.
const DefaultRetryAfter = 60

// User-facing rejection messages
const (
	RateLimitedMessage = "Rate limit exceeded. Please slow down."
	OverloadedMessage  = "Server is currently overloaded. Please try again later."
)

// DefaultTaskEndpoints are the paths whose POST requests create tasks.
var DefaultTaskEndpoints = []string{"/api/transcribe", "/api/translate"}

// SlotGate hands out admission slots without blocking. ErrNoCapacity from
// TryAcquire admits the request without a slot; any other error refuses it.
type SlotGate interface {
	TryAcquire() error
	Release()
}

// Admission applies rate limiting to every request and a resource slot to
// task-creating requests.
type Admission struct {
	limits        *ratelimit.Tiered
	slots         SlotGate
	taskEndpoints map[string]struct{}
	logger        *slog.Logger
}

// AdmissionOption configures an Admission.
type AdmissionOption func(*Admission)

// WithTaskEndpoints replaces the set of task-creating paths.
func WithTaskEndpoints(paths ...string) AdmissionOption {
	return func(a *Admission) {
		a.taskEndpoints = make(map[string]struct{}, len(paths))
		for _, p := range paths {
			a.taskEndpoints[strings.TrimSuffix(p, "/")] = struct{}{}
		}
	}
}

// NewAdmission creates the admission middleware.
func NewAdmission(limits *ratelimit.Tiered, slots SlotGate, logger *slog.Logger, opts ...AdmissionOption) *Admission {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Admission{
		limits: limits,
		slots:  slots,
		logger: logger.With("component", "admission"),
	}
	WithTaskEndpoints(DefaultTaskEndpoints...)(a)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler wraps next with admission control.
func (a *Admission) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := ClientID(r)
		taskCreating := a.isTaskCreating(r)

		allowed, info, class := a.limits.Check(clientID, taskCreating)
		setRateLimitHeaders(w, info)
		log := a.logger.With("client_id", clientID, "endpoint_class", class)

		if !allowed {
			retryAfter := info.RetryAfter
			if retryAfter <= 0 {
				retryAfter = DefaultRetryAfter
			}
			w.Header().Set(HeaderRetryAfter, strconv.Itoa(retryAfter))
			log.Warn("request rate limited", "path", r.URL.Path, "retry_after", retryAfter)
			shared.RespondWithError(w, r, http.StatusTooManyRequests, RateLimitedMessage,
				shared.WithReason(shared.ReasonRateLimited),
				shared.WithRetryAfter(retryAfter))
			return
		}

		if taskCreating {
			switch err := a.slots.TryAcquire(); {
			case err == nil:
				defer a.slots.Release()
			case errors.Is(err, resource.ErrNoCapacity):
				// Every slot is running a task; the new task waits as pending.
				log.Debug("no free slot, task will queue", "path", r.URL.Path)
			default:
				log.Warn("task request refused",
					"path", r.URL.Path,
					"cause", admissionCause(err))
				shared.RespondWithErrorAndLog(w, r, http.StatusServiceUnavailable, OverloadedMessage, err,
					shared.WithReason(shared.ReasonOverloaded))
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(shared.SetClientID(r.Context(), clientID)))
	})
}

func (a *Admission) isTaskCreating(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	_, ok := a.taskEndpoints[strings.TrimSuffix(r.URL.Path, "/")]
	return ok
}

// ClientID identifies the caller by the host part of its remote address.
func ClientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return "unknown"
	}
	return host
}

func setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	h := w.Header()
	h.Set(HeaderLimit, strconv.Itoa(info.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(info.Remaining))
	h.Set(HeaderReset, strconv.FormatInt(info.Reset, 10))
}

func admissionCause(err error) string {
	switch {
	case errors.Is(err, resource.ErrOverloaded):
		return "system_load"
	default:
		return "unknown"
	}
}
