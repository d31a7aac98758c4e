package ratelimit

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

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

func newTestLimiter(t *testing.T, cfg Config, clock *fakeClock) *Limiter {
	t.Helper()
	l, err := NewLimiter(cfg, testLogger(), WithClock(clock.Now))
	require.NoError(t, err)
	return l
}

func TestNewLimiterValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero requests", Config{RequestsPerWindow: 0, Window: time.Hour}},
		{"zero window", Config{RequestsPerWindow: 10}},
		{"burst above requests", Config{RequestsPerWindow: 10, Window: time.Hour, Burst: 11}},
		{"negative burst", Config{RequestsPerWindow: 10, Window: time.Hour, Burst: -1}},
		{"negative max keys", Config{RequestsPerWindow: 10, Window: time.Hour, MaxKeys: -1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewLimiter(tc.cfg, testLogger())
			assert.Error(t, err)
		})
	}

	l, err := NewLimiter(Config{RequestsPerWindow: 100, Window: time.Hour}, nil)
	require.NoError(t, err)
	assert.Equal(t, 100, l.Config().Burst, "burst defaults to the request count")
	assert.Equal(t, time.Hour, l.Config().SweepInterval)
}

func TestBurstThenDeny(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(t, Config{RequestsPerWindow: 10, Window: time.Hour, Burst: 3}, clock)

	for i := range 3 {
		ok, info := l.Allow("10.0.0.1", ClassTask)
		require.True(t, ok, "request %d within burst", i+1)
		assert.Equal(t, 10, info.Limit)
		assert.Equal(t, 10-(i+1), info.Remaining)
		assert.Zero(t, info.RetryAfter)
	}

	ok, info := l.Allow("10.0.0.1", ClassTask)
	assert.False(t, ok)
	assert.Equal(t, 361, info.RetryAfter)
	assert.Equal(t, 7, info.Remaining, "denied requests are not recorded")
	assert.Equal(t, 3600, info.WindowSeconds)
}

func TestRefillAfterOneTokenInterval(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(t, Config{RequestsPerWindow: 10, Window: time.Hour, Burst: 3}, clock)

	for range 3 {
		ok, _ := l.Allow("10.0.0.1", ClassTask)
		require.True(t, ok)
	}
	ok, _ := l.Allow("10.0.0.1", ClassTask)
	require.False(t, ok)

	clock.Advance(359 * time.Second)
	ok, _ = l.Allow("10.0.0.1", ClassTask)
	assert.False(t, ok, "less than one token has accrued")

	clock.Advance(time.Second)
	ok, _ = l.Allow("10.0.0.1", ClassTask)
	assert.True(t, ok, "exactly one token accrues after window/requests")

	ok, _ = l.Allow("10.0.0.1", ClassTask)
	assert.False(t, ok)
}

func TestTokensNeverExceedBurst(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(t, Config{RequestsPerWindow: 10, Window: time.Hour, Burst: 3}, clock)

	ok, _ := l.Allow("c", ClassTask)
	require.True(t, ok)

	clock.Advance(10 * time.Hour)
	admitted := 0
	for range 10 {
		if ok, _ := l.Allow("c", ClassTask); ok {
			admitted++
		}
	}
	assert.Equal(t, 3, admitted)
}

func TestKeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(t, Config{RequestsPerWindow: 1, Window: time.Hour}, clock)

	ok, _ := l.Allow("10.0.0.1", ClassGeneral)
	assert.True(t, ok)
	ok, _ = l.Allow("10.0.0.1", ClassGeneral)
	assert.False(t, ok)

	ok, _ = l.Allow("10.0.0.2", ClassGeneral)
	assert.True(t, ok, "other clients are unaffected")
	ok, _ = l.Allow("10.0.0.1", ClassTask)
	assert.True(t, ok, "other classes are unaffected")

	assert.Equal(t, 3, l.Len())
}

func TestRemainingAndReset(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	l := newTestLimiter(t, Config{RequestsPerWindow: 5, Window: time.Minute}, clock)

	ok, info := l.Allow("c", ClassGeneral)
	require.True(t, ok)
	assert.Equal(t, 4, info.Remaining)
	assert.Equal(t, start.Add(time.Minute).Unix(), info.Reset)

	clock.Advance(20 * time.Second)
	_, info = l.Allow("c", ClassGeneral)
	assert.Equal(t, 3, info.Remaining)
	assert.Equal(t, start.Add(time.Minute).Unix(), info.Reset, "reset follows the oldest request")

	// The first request leaves the window.
	clock.Advance(41 * time.Second)
	_, info = l.Allow("c", ClassGeneral)
	assert.Equal(t, 3, info.Remaining)
	assert.Equal(t, start.Add(80*time.Second).Unix(), info.Reset)
}

func TestRemainingStaysWithinBounds(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(t, Config{RequestsPerWindow: 4, Window: time.Minute}, clock)

	for i := range 50 {
		_, info := l.Allow("c", ClassGeneral)
		assert.GreaterOrEqual(t, info.Remaining, 0)
		assert.LessOrEqual(t, info.Remaining, info.Limit)
		if i%7 == 0 {
			clock.Advance(13 * time.Second)
		}
	}
}

func TestRetryAfterRoundsUp(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(t, Config{RequestsPerWindow: 7, Window: time.Minute, Burst: 1}, clock)

	_, _ = l.Allow("c", ClassGeneral)
	ok, info := l.Allow("c", ClassGeneral)
	require.False(t, ok)
	// 60/7 = 8.57s per token.
	assert.Equal(t, 10, info.RetryAfter)
}

func TestSweepRemovesIdleKeys(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(t, Config{RequestsPerWindow: 10, Window: time.Minute}, clock)

	_, _ = l.Allow("idle", ClassGeneral)
	clock.Advance(90 * time.Second)
	_, _ = l.Allow("active", ClassGeneral)

	assert.Equal(t, 0, l.Sweep())
	assert.Equal(t, 2, l.Len())

	clock.Advance(31 * time.Second)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())

	ok, info := l.Allow("idle", ClassGeneral)
	assert.True(t, ok, "a swept key starts over with a full bucket")
	assert.Equal(t, 9, info.Remaining)
}

func TestMaxKeysEvictsLeastRecentlyUsed(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(t, Config{RequestsPerWindow: 1, Window: time.Hour, MaxKeys: 3}, clock)

	for _, c := range []string{"a", "b", "c"} {
		_, _ = l.Allow(c, ClassGeneral)
		clock.Advance(time.Second)
	}
	// Touch "a" so "b" becomes the least recently used key.
	ok, _ := l.Allow("a", ClassGeneral)
	require.False(t, ok)
	clock.Advance(time.Second)

	_, _ = l.Allow("d", ClassGeneral)
	assert.Equal(t, 3, l.Len())

	ok, _ = l.Allow("b", ClassGeneral)
	assert.True(t, ok, "evicted key starts with a fresh bucket")
	ok, _ = l.Allow("a", ClassGeneral)
	assert.False(t, ok, "recently used key kept its state")
}

func TestConcurrentAllowAdmitsAtMostBurst(t *testing.T) {
	clock := newFakeClock()
	l := newTestLimiter(t, Config{RequestsPerWindow: 10, Window: time.Hour, Burst: 5}, clock)

	var mu sync.Mutex
	admitted := 0
	var wg sync.WaitGroup
	for i := range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow("shared", ClassTask); ok {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
			_, _ = l.Allow(fmt.Sprintf("client-%d", i), ClassTask)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, admitted)
	assert.Equal(t, 41, l.Len())
}
