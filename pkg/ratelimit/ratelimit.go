// Package ratelimit guards process_attempt against runaway retry storms
// (spec.md §6 rate_limit_per_min). Grounded on the teacher's
// InMemoryRateLimiter fixed-window bucket (count + reset time, reset on
// window expiry), narrowed from a per-client sync.Map of buckets to a
// single global bucket since the decision engine has exactly one caller
// per process, and rebuilt on ports.Clock instead of time.Now so tests are
// deterministic.
package ratelimit

import (
	"sync"

	"github.com/itsneelabh/selfheal/pkg/ports"
)

const windowMS = 60_000

// Limiter is a fixed-window, single-bucket rate limiter.
type Limiter struct {
	mu         sync.Mutex
	clock      ports.Clock
	limit      int
	count      int
	resetAtMS  int64
}

// New creates a Limiter allowing up to limit calls per 60-second window.
func New(clock ports.Clock, limit int) *Limiter {
	return &Limiter{clock: clock, limit: limit}
}

// Allow reports whether a call is permitted right now, incrementing the
// window counter if so. The second return value is the number of
// milliseconds until the window resets when the call is rejected.
func (l *Limiter) Allow() (bool, int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.NowMS()
	if now >= l.resetAtMS {
		l.count = 0
		l.resetAtMS = now + windowMS
	}

	if l.count >= l.limit {
		return false, l.resetAtMS - now
	}

	l.count++
	return true, 0
}

// Remaining reports how many calls remain in the current window.
func (l *Limiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.NowMS()
	if now >= l.resetAtMS {
		return l.limit
	}
	remaining := l.limit - l.count
	if remaining < 0 {
		return 0
	}
	return remaining
}
