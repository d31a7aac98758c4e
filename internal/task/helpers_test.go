package task

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/voicetransl/voicetransl-api/internal/events"
)

// testPool is a channel-backed SlotPool.
type testPool struct {
	slots chan struct{}
}

func newTestPool(n int) *testPool {
	return &testPool{slots: make(chan struct{}, n)}
}

func (p *testPool) Acquire(ctx context.Context) error {
	select {
	case p.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *testPool) Release()      { <-p.slots }
func (p *testPool) Capacity() int { return cap(p.slots) }
func (p *testPool) InUse() int    { return len(p.slots) }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recorder collects the status path of every task.
type recorder struct {
	mu    sync.Mutex
	paths map[string][]string
}

func newRecorder() *recorder {
	return &recorder{paths: make(map[string][]string)}
}

func (r *recorder) HandleTransition(_ context.Context, e events.TransitionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths[e.TaskID] = append(r.paths[e.TaskID], e.To)
	return nil
}

func (r *recorder) path(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths[id]...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, cfg Config, pool SlotPool, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager(cfg, pool, testLogger(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m
}

func waitForStatus(t *testing.T, m *Manager, id string, want Status) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		s, err := m.Status(id)
		if err != nil {
			return false
		}
		snap = s
		return s.Status == want
	}, 2*time.Second, 5*time.Millisecond, "task %s never reached %s", id, want)
	return snap
}

// blockingUnit returns a unit that signals started and then waits for
// release or cancellation.
func blockingUnit(started chan<- string, release <-chan struct{}) WorkUnit {
	return func(ctx context.Context, h *Handle) (Payload, error) {
		if started != nil {
			started <- h.ID()
		}
		select {
		case <-release:
			return Payload{"done": true}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
