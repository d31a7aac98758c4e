package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voicetransl/voicetransl-api/internal/api/shared"
	"github.com/voicetransl/voicetransl-api/internal/config"
	"github.com/voicetransl/voicetransl-api/internal/ratelimit"
	"github.com/voicetransl/voicetransl-api/internal/resource"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeGate struct {
	mu       sync.Mutex
	err      error
	acquired int
	released int
}

func (g *fakeGate) TryAcquire() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.acquired++
	return nil
}

func (g *fakeGate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.released++
}

func (g *fakeGate) counts() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.acquired, g.released
}

func newTestTiers(t *testing.T) *ratelimit.Tiered {
	t.Helper()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tiers, err := ratelimit.NewTiered(config.RateLimitConfig{
		Requests:             100,
		WindowSeconds:        3600,
		TaskRequests:         10,
		TaskWindowSeconds:    3600,
		TaskBurst:            3,
		SweepIntervalSeconds: 300,
		MaxKeys:              100,
	}, testLogger(), ratelimit.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return tiers
}

type capture struct {
	calls    int
	clientID string
}

func (c *capture) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.calls++
		c.clientID = shared.GetClientID(r.Context())
		w.WriteHeader(http.StatusAccepted)
	})
}

func do(h http.Handler, method, path, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAdmissionAnnotatesSuccessfulResponses(t *testing.T) {
	gate := &fakeGate{}
	c := &capture{}
	h := NewAdmission(newTestTiers(t), gate, testLogger()).Handler(c.handler())

	w := do(h, http.MethodGet, "/api/tasks", "192.0.2.1:5555")

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "100", w.Header().Get(HeaderLimit))
	assert.Equal(t, "99", w.Header().Get(HeaderRemaining))
	assert.NotEmpty(t, w.Header().Get(HeaderReset))
	assert.Empty(t, w.Header().Get(HeaderRetryAfter))
	assert.Equal(t, "192.0.2.1", c.clientID)

	acquired, _ := gate.counts()
	assert.Zero(t, acquired, "non task requests must not take a slot")
}

func TestAdmissionRateLimitsTaskCreation(t *testing.T) {
	gate := &fakeGate{}
	c := &capture{}
	h := NewAdmission(newTestTiers(t), gate, testLogger()).Handler(c.handler())

	for i := 0; i < 3; i++ {
		w := do(h, http.MethodPost, "/api/translate", "192.0.2.1:5555")
		require.Equal(t, http.StatusAccepted, w.Code, "request %d", i+1)
		assert.Equal(t, "10", w.Header().Get(HeaderLimit))
	}

	w := do(h, http.MethodPost, "/api/translate", "192.0.2.1:5555")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "361", w.Header().Get(HeaderRetryAfter))
	assert.Equal(t, "7", w.Header().Get(HeaderRemaining))

	var body shared.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, shared.ReasonRateLimited, body.Reason)
	assert.Equal(t, 361, body.RetryAfter)
	assert.Equal(t, 3, c.calls)

	// Other endpoints and other clients are unaffected.
	assert.Equal(t, http.StatusAccepted, do(h, http.MethodGet, "/api/translate/abc/status", "192.0.2.1:5555").Code)
	assert.Equal(t, http.StatusAccepted, do(h, http.MethodPost, "/api/translate", "192.0.2.2:5555").Code)

	acquired, released := gate.counts()
	assert.Equal(t, 4, acquired)
	assert.Equal(t, 4, released)
}

func TestAdmissionRefusesWhenOverloaded(t *testing.T) {
	gate := &fakeGate{err: resource.ErrOverloaded}
	c := &capture{}
	h := NewAdmission(newTestTiers(t), gate, testLogger()).Handler(c.handler())

	w := do(h, http.MethodPost, "/api/transcribe", "192.0.2.1:5555")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Empty(t, w.Header().Get(HeaderRetryAfter))
	var body shared.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, shared.ReasonOverloaded, body.Reason)
	assert.Equal(t, OverloadedMessage, body.Error)
	assert.Zero(t, body.RetryAfter)
	assert.Zero(t, c.calls)

	_, released := gate.counts()
	assert.Zero(t, released)
}

func TestAdmissionQueuesWhenSlotsAreBusy(t *testing.T) {
	gate := &fakeGate{err: resource.ErrNoCapacity}
	c := &capture{}
	h := NewAdmission(newTestTiers(t), gate, testLogger()).Handler(c.handler())

	w := do(h, http.MethodPost, "/api/transcribe", "192.0.2.1:5555")

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, c.calls)
	_, released := gate.counts()
	assert.Zero(t, released, "no slot was taken")
}

func TestAdmissionReleasesSlotWhenHandlerPanics(t *testing.T) {
	gate := &fakeGate{}
	h := NewAdmission(newTestTiers(t), gate, testLogger()).Handler(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))

	assert.Panics(t, func() {
		do(h, http.MethodPost, "/api/transcribe", "192.0.2.1:5555")
	})

	acquired, released := gate.counts()
	assert.Equal(t, 1, acquired)
	assert.Equal(t, 1, released)
}

func TestAdmissionCustomTaskEndpoints(t *testing.T) {
	gate := &fakeGate{}
	c := &capture{}
	h := NewAdmission(newTestTiers(t), gate, testLogger(),
		WithTaskEndpoints("/api/jobs/")).Handler(c.handler())

	do(h, http.MethodPost, "/api/jobs", "192.0.2.1:5555")
	do(h, http.MethodPost, "/api/transcribe", "192.0.2.1:5555")

	acquired, _ := gate.counts()
	assert.Equal(t, 1, acquired)
}

func TestClientID(t *testing.T) {
	tests := []struct {
		remote string
		want   string
	}{
		{"192.0.2.1:1234", "192.0.2.1"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"203.0.113.9", "203.0.113.9"},
		{"", "unknown"},
	}
	for _, tc := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remote
		assert.Equal(t, tc.want, ClientID(req), tc.remote)
	}
}
