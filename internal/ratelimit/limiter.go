// Package ratelimit provides fixed-window request counting keyed by client
// identity. Windows are discrete: a request that starts a new window resets
// the count to 1, and the whole counter expires at the window boundary.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether a request from the given client key may proceed.
// Implementations are injected into the HTTP layer; nothing hard-wires a
// process-wide singleton.
type Limiter interface {
	// Allow checks and counts one request for key.
	Allow(ctx context.Context, key string) (*Result, error)

	// Stop releases background resources.
	Stop() error
}

// Config contains limiter settings.
type Config struct {
	Limit  int           // requests per window
	Window time.Duration // window length

	// FlushInterval controls how often persistent implementations write
	// counters out. Ignored by the in-memory limiter.
	FlushInterval time.Duration

	// CleanupInterval controls how often expired counters are dropped.
	CleanupInterval time.Duration
}

func (c *Config) setDefaults() {
	if c.Limit == 0 {
		c.Limit = 5
	}
	if c.Window == 0 {
		c.Window = 15 * time.Minute
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = 10 * time.Second
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = 5 * time.Minute
	}
}

// Result is the outcome of a limit check.
type Result struct {
	Allowed    bool
	Remaining  int           // requests left in the current window
	RetryAfter time.Duration // when denied, time until the window resets
}

// Counter tracks one client's requests within the current window.
type Counter struct {
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
}

// MemoryLimiter is the in-process implementation for single-instance
// deployments. Counters are lost on restart.
type MemoryLimiter struct {
	cfg      Config
	mu       sync.Mutex
	counters map[string]*Counter
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMemoryLimiter creates an in-memory fixed-window limiter.
func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	cfg.setDefaults()
	l := &MemoryLimiter{
		cfg:      cfg,
		counters: make(map[string]*Counter),
		stopCh:   make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return check(l.counters, key, l.cfg, time.Now()), nil
}

// Stop implements Limiter.
func (l *MemoryLimiter) Stop() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	return nil
}

func (l *MemoryLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.mu.Lock()
			dropExpired(l.counters, l.cfg.Window, time.Now())
			l.mu.Unlock()
		}
	}
}

// check applies the fixed-window policy to one key. Caller holds the lock.
func check(counters map[string]*Counter, key string, cfg Config, now time.Time) *Result {
	counter, exists := counters[key]
	if !exists || now.Sub(counter.WindowStart) >= cfg.Window {
		counters[key] = &Counter{Count: 1, WindowStart: now}
		return &Result{Allowed: true, Remaining: cfg.Limit - 1}
	}

	if counter.Count >= cfg.Limit {
		return &Result{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: counter.WindowStart.Add(cfg.Window).Sub(now),
		}
	}

	counter.Count++
	return &Result{Allowed: true, Remaining: cfg.Limit - counter.Count}
}

// dropExpired removes counters whose window has fully elapsed.
func dropExpired(counters map[string]*Counter, window time.Duration, now time.Time) {
	for key, counter := range counters {
		if now.Sub(counter.WindowStart) >= window {
			delete(counters, key)
		}
	}
}
