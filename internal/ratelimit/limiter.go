// Package ratelimit provides per-actor sliding-window admission control for
// interactive generation requests.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

const (
	DefaultLimit  = 60
	DefaultWindow = time.Hour
)

// ErrRateLimited is returned by callers when Allow rejects a request.
var ErrRateLimited = errors.New("rate limit exceeded")

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Limiter admits at most limit calls per actor within any rolling window.
type Limiter struct {
	limit  int
	window time.Duration
	clock  Clock

	mu    sync.Mutex
	calls map[string][]time.Time
}

// New creates a Limiter. Non-positive arguments fall back to 60 calls per hour.
func New(limit int, window time.Duration) *Limiter {
	return NewWithClock(limit, window, realClock{})
}

// NewWithClock creates a Limiter with a custom clock (for testing).
func NewWithClock(limit int, window time.Duration, clock Clock) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		limit:  limit,
		window: window,
		clock:  clock,
		calls:  make(map[string][]time.Time),
	}
}

// Allow records a call for actor and reports whether it was admitted.
// Rejected calls are not recorded.
func (l *Limiter) Allow(actor string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	recent := l.prune(actor, now)
	if len(recent) >= l.limit {
		return false
	}
	l.calls[actor] = append(recent, now)
	return true
}

// Remaining returns how many calls actor may still make in the current window.
func (l *Limiter) Remaining(actor string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit - len(l.prune(actor, l.clock.Now()))
}

// prune drops timestamps older than one window. Must hold l.mu.
func (l *Limiter) prune(actor string, now time.Time) []time.Time {
	ts := l.calls[actor]
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	ts = ts[i:]
	if len(ts) == 0 {
		delete(l.calls, actor)
		return nil
	}
	l.calls[actor] = ts
	return ts
}
