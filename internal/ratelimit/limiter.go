// Package ratelimit implements fixed-window request counting keyed by an
// arbitrary string (client IP, connection id, route). Separate policies
// get separate Limiter instances.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	count   int
	resetAt time.Time
}

// Limiter counts requests per key within a fixed window. Once the
// window elapses the next request resets the counter to 1 and opens a
// new window.
type Limiter struct {
	mu          sync.Mutex
	entries     map[string]*entry
	maxRequests int
	window      time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Limiter allowing maxRequests per window for each key.
func New(maxRequests int, window time.Duration) *Limiter {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	if window <= 0 {
		window = time.Second
	}
	return &Limiter{
		entries:     make(map[string]*entry),
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
}

// TryAcquire records one request for key and reports whether it is
// within the configured budget.
func (l *Limiter) TryAcquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok || now.After(e.resetAt) {
		l.entries[key] = &entry{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	if e.count >= l.maxRequests {
		return false
	}
	e.count++
	return true
}

// Remaining reports how many requests key may still make in the current
// window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || l.now().After(e.resetAt) {
		return l.maxRequests
	}
	if e.count >= l.maxRequests {
		return 0
	}
	return l.maxRequests - e.count
}

// ResetAt reports when the current window for key ends. The second
// return value is false when no window is open.
func (l *Limiter) ResetAt(key string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || l.now().After(e.resetAt) {
		return time.Time{}, false
	}
	return e.resetAt, true
}

// Forget drops any state held for key. Used when the keyed resource
// (e.g. a connection) goes away.
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// sweep removes entries whose window has elapsed. Correctness does not
// depend on it; expired entries also reset on next access.
func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, e := range l.entries {
		if now.After(e.resetAt) {
			delete(l.entries, key)
		}
	}
}

// StartSweeper runs a background loop that expires stale entries every
// interval until ctx is cancelled.
func (l *Limiter) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.sweep()
			}
		}
	}()
}
