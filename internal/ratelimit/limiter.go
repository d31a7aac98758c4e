package ratelimit

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// Class is an endpoint class; each class of a client has its own bucket.
type Class string

// Endpoint classes
const (
	ClassGeneral Class = "general"
	ClassTask    Class = "task"
)

// Config describes one limiter tier.
type Config struct {
	// RequestsPerWindow is the sustained rate and the advisory limit.
	RequestsPerWindow int
	Window            time.Duration
	// Burst is the bucket capacity. Zero means RequestsPerWindow.
	Burst int
	// SweepInterval is the period of the idle key sweep. Zero means Window.
	SweepInterval time.Duration
	// MaxKeys caps the number of tracked keys. Zero means unbounded.
	MaxKeys int
}

func (c Config) validate() error {
	if c.RequestsPerWindow <= 0 {
		return fmt.Errorf("requests per window must be positive, got %d", c.RequestsPerWindow)
	}
	if c.Window <= 0 {
		return errors.New("window must be positive")
	}
	if c.Burst < 0 || c.Burst > c.RequestsPerWindow {
		return fmt.Errorf("burst must be in [0,%d], got %d", c.RequestsPerWindow, c.Burst)
	}
	if c.MaxKeys < 0 {
		return fmt.Errorf("max keys must not be negative, got %d", c.MaxKeys)
	}
	return nil
}

// Info is the rate-limit metadata reported to the client.
type Info struct {
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
	// Reset is a unix timestamp in seconds.
	Reset         int64 `json:"reset"`
	WindowSeconds int   `json:"window_seconds"`
	// RetryAfter is set in seconds on denial only.
	RetryAfter int `json:"retry_after,omitempty"`
}

// bucket is the state of one client:class key.
type bucket struct {
	mu       sync.Mutex
	tokens   *rate.Limiter
	history  []time.Time
	lastSeen time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// Limiter is a per-key token bucket limiter. It is safe for concurrent use.
type Limiter struct {
	cfg    Config
	limit  rate.Limit
	idle   time.Duration
	logger *slog.Logger
	now    func() time.Time

	// mu serializes key creation and eviction.
	mu      sync.Mutex
	buckets *cache.Cache
}

// NewLimiter creates a Limiter. Idle keys expire after twice the window and
// are swept every cfg.SweepInterval.
func NewLimiter(cfg Config, logger *slog.Logger, opts ...Option) (*Limiter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Burst == 0 {
		cfg.Burst = cfg.RequestsPerWindow
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = cfg.Window
	}
	if logger == nil {
		logger = slog.Default()
	}

	l := &Limiter{
		cfg:    cfg,
		limit:  rate.Limit(float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()),
		idle:   2 * cfg.Window,
		logger: logger.With("component", "rate_limiter"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.buckets = cache.New(l.idle, cfg.SweepInterval)
	return l, nil
}

// Config returns the effective configuration.
func (l *Limiter) Config() Config {
	return l.cfg
}

// Allow consumes one token for clientID in class if one is available.
// The returned Info is valid whether or not the request was admitted.
func (l *Limiter) Allow(clientID string, class Class) (bool, Info) {
	now := l.now()
	b := l.bucket(clientID+":"+string(class), now)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastSeen = now
	allowed := b.tokens.AllowN(now, 1)
	b.trim(now.Add(-l.cfg.Window))
	if allowed {
		b.history = append(b.history, now)
		if over := len(b.history) - l.cfg.RequestsPerWindow; over > 0 {
			b.history = b.history[over:]
		}
	}

	info := Info{
		Limit:         l.cfg.RequestsPerWindow,
		Remaining:     max(0, l.cfg.RequestsPerWindow-len(b.history)),
		WindowSeconds: int(l.cfg.Window.Seconds()),
	}
	if len(b.history) > 0 {
		info.Reset = b.history[0].Add(l.cfg.Window).Unix()
	} else {
		info.Reset = now.Add(l.cfg.Window).Unix()
	}
	if !allowed {
		info.RetryAfter = l.retryAfter()
	}
	return allowed, info
}

// retryAfter is the time to earn one token, rounded up, plus one second.
func (l *Limiter) retryAfter() int {
	perToken := l.cfg.Window.Seconds() / float64(l.cfg.RequestsPerWindow)
	return int(math.Ceil(perToken)) + 1
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	return l.buckets.ItemCount()
}

// Sweep removes keys idle for longer than twice the window and returns how
// many were removed.
func (l *Limiter) Sweep() int {
	cutoff := l.now().Add(-l.idle)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, item := range l.buckets.Items() {
		b := item.Object.(*bucket)
		b.mu.Lock()
		idle := !b.lastSeen.After(cutoff)
		b.mu.Unlock()
		if idle {
			l.buckets.Delete(key)
			removed++
		}
	}
	l.buckets.DeleteExpired()

	if removed > 0 {
		l.logger.Debug("swept idle rate limit keys", "removed", removed, "remaining", l.buckets.ItemCount())
	}
	return removed
}

// bucket returns the bucket for key, creating it full if needed, and
// refreshes the key's expiry.
func (l *Limiter) bucket(key string, now time.Time) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, ok := l.buckets.Get(key); ok {
		l.buckets.SetDefault(key, v)
		return v.(*bucket)
	}

	if l.cfg.MaxKeys > 0 && l.buckets.ItemCount() >= l.cfg.MaxKeys {
		l.evictOldestLocked()
	}

	b := &bucket{
		tokens:   rate.NewLimiter(l.limit, l.cfg.Burst),
		lastSeen: now,
	}
	l.buckets.SetDefault(key, b)
	return b
}

// evictOldestLocked drops the least recently seen key. l.mu must be held.
func (l *Limiter) evictOldestLocked() {
	var (
		oldestKey  string
		oldestSeen time.Time
	)
	for key, item := range l.buckets.Items() {
		b := item.Object.(*bucket)
		b.mu.Lock()
		seen := b.lastSeen
		b.mu.Unlock()
		if oldestKey == "" || seen.Before(oldestSeen) {
			oldestKey, oldestSeen = key, seen
		}
	}
	if oldestKey != "" {
		l.buckets.Delete(oldestKey)
		l.logger.Debug("evicted least recently used rate limit key", "key", oldestKey)
	}
}

// trim drops history entries at or before cutoff. b.mu must be held.
func (b *bucket) trim(cutoff time.Time) {
	i := 0
	for i < len(b.history) && !b.history[i].After(cutoff) {
		i++
	}
	b.history = b.history[i:]
}
