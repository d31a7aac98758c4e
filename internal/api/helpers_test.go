package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/voicetransl/voicetransl-api/internal/ratelimit"
	"github.com/voicetransl/voicetransl-api/internal/resource"
	"github.com/voicetransl/voicetransl-api/internal/task"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type createCall struct {
	kind  task.Kind
	input task.Payload
}

type fakeTasks struct {
	mu        sync.Mutex
	snapshots map[string]task.Snapshot
	outcomes  map[string]task.Outcome
	cancelled map[string]bool
	created   []createCall
	createErr error
	listed    []task.ListFilter
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{
		snapshots: map[string]task.Snapshot{},
		outcomes:  map[string]task.Outcome{},
		cancelled: map[string]bool{},
	}
}

func (f *fakeTasks) add(id string, kind task.Kind, status task.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots[id] = task.Snapshot{
		ID:        id,
		Kind:      kind,
		Status:    status,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	out := task.Outcome{ID: id, Status: status}
	switch status {
	case task.StatusCompleted:
		out.Ready = true
		out.Result = task.Payload{"lrc_content": "[00:01.00]hello"}
	case task.StatusFailed:
		out.Ready = true
		out.Error = "backend unavailable"
	default:
		out.Message = task.NotReadyMessage
	}
	f.outcomes[id] = out
}

func (f *fakeTasks) Create(kind task.Kind, input task.Payload, unit task.WorkUnit) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, createCall{kind: kind, input: input})
	return "task-new", nil
}

func (f *fakeTasks) Status(id string) (task.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snapshots[id]
	if !ok {
		return task.Snapshot{}, task.ErrTaskNotFound
	}
	return s, nil
}

func (f *fakeTasks) Result(id string) (task.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.outcomes[id]
	if !ok {
		return task.Outcome{}, task.ErrTaskNotFound
	}
	return o, nil
}

func (f *fakeTasks) List(filter task.ListFilter) []task.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed = append(f.listed, filter)
	var out []task.Snapshot
	for _, s := range f.snapshots {
		if filter.Kind != "" && s.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (f *fakeTasks) Cancel(id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snapshots[id]
	if !ok {
		return false, task.ErrTaskNotFound
	}
	if s.Status.Terminal() {
		return false, nil
	}
	s.Status = task.StatusCancelled
	f.snapshots[id] = s
	f.cancelled[id] = true
	return true, nil
}

func (f *fakeTasks) Stats() task.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := map[task.Status]int{}
	for _, s := range f.snapshots {
		counts[s.Status]++
	}
	return task.Stats{TotalTasks: len(f.snapshots), MaxConcurrentTasks: 5, StatusCounts: counts}
}

type fixedResources struct{}

func (fixedResources) Snapshot() resource.Snapshot {
	return resource.Snapshot{Capacity: 5, InUse: 2, Available: 3, Healthy: true}
}

type fixedLimits struct{}

func (fixedLimits) Len() map[ratelimit.Class]int {
	return map[ratelimit.Class]int{ratelimit.ClassGeneral: 4, ratelimit.ClassTask: 1}
}

func noopUnit(context.Context, *task.Handle) (task.Payload, error) {
	return task.Payload{}, nil
}

type testAPI struct {
	tasks  *fakeTasks
	router http.Handler
	upload string
}

func newTestAPI(tempDir string, maxUpload int64) *testAPI {
	tasks := newFakeTasks()
	log := testLogger()
	th := NewTaskHandler(tasks, fixedResources{}, fixedLimits{}, log)
	tr := NewTranscriptionHandler(tasks, noopUnit, tempDir, maxUpload, log)
	tl := NewTranslationHandler(tasks, noopUnit, "gemini", log)

	r := chi.NewRouter()
	r.Get("/health", Health("test"))
	r.Route("/api", func(r chi.Router) {
		r.Post("/transcribe", tr.Create)
		r.Get("/transcribe/{taskID}/status", th.Status(task.KindTranscription))
		r.Get("/transcribe/{taskID}/result", th.Result(task.KindTranscription))
		r.Delete("/transcribe/{taskID}", th.Cancel(task.KindTranscription))
		r.Post("/translate", tl.Create)
		r.Get("/translate/{taskID}/status", th.Status(task.KindTranslation))
		r.Get("/status/{taskID}", th.Status(""))
		r.Get("/result/{taskID}", th.Result(""))
		r.Get("/tasks", th.List)
		r.Delete("/tasks/{taskID}", th.Cancel(""))
		r.Get("/stats", th.Stats)
	})
	return &testAPI{tasks: tasks, router: r, upload: tempDir}
}

func (a *testAPI) do(method, path, contentType, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}
