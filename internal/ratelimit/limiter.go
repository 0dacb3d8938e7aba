// Package ratelimit provides per-key token buckets for the API.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"grimm.is/pfw/internal/clock"
)

// Limiter manages rate limiting for multiple keys (client addresses).
// Every key gets its own token bucket refilling at limit per interval with
// a burst of limit.
type Limiter struct {
	limit    int
	interval time.Duration
	clock    clock.Clock

	mu       sync.Mutex
	limiters map[string]*entry
}

type entry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a limiter allowing limit requests per interval per key.
// A nil clock uses real time.
func NewLimiter(limit int, interval time.Duration, clk clock.Clock) *Limiter {
	return &Limiter{
		limit:    limit,
		interval: interval,
		clock:    clock.OrReal(clk),
		limiters: make(map[string]*entry),
	}
}

// Enabled reports whether the limiter restricts anything.
func (l *Limiter) Enabled() bool {
	return l != nil && l.limit > 0 && l.interval > 0
}

func (l *Limiter) get(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.limiters[key]
	if !ok {
		every := rate.Every(l.interval / time.Duration(l.limit))
		e = &entry{lim: rate.NewLimiter(every, l.limit)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	return e.lim
}

// Allow reports whether a request for key may proceed now.
func (l *Limiter) Allow(key string) bool {
	return l.AllowN(key, 1)
}

// AllowN reports whether n requests for key may proceed now.
func (l *Limiter) AllowN(key string, n int) bool {
	if !l.Enabled() {
		return true
	}
	now := l.clock.Now()
	return l.get(key, now).AllowN(now, n)
}

// RetryAfter estimates how long key must wait for the next token.
func (l *Limiter) RetryAfter(key string) time.Duration {
	if !l.Enabled() {
		return 0
	}
	now := l.clock.Now()
	r := l.get(key, now).ReserveN(now, 1)
	defer r.CancelAt(now)
	if !r.OK() {
		return l.interval
	}
	return r.DelayFrom(now)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// CleanupExpired removes buckets not used within maxAge.
func (l *Limiter) CleanupExpired(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	for key, e := range l.limiters {
		if now.Sub(e.lastSeen) > maxAge {
			delete(l.limiters, key)
		}
	}
}

// RunCleanup removes stale buckets every interval until ctx is done.
func (l *Limiter) RunCleanup(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.CleanupExpired(maxAge)
		}
	}
}
