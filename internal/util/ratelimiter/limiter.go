package ratelimiter

import (
	"sync"
	"time"
)

// Limiter allows one action per interval. It is safe for concurrent use.
// Sessions use it to throttle checkpoint writes.
type Limiter struct {
	mu          sync.Mutex
	interval    time.Duration
	lastAllowed time.Time
	now         func() time.Time
}

// New creates a new rate limiter with the specified interval.
func New(interval time.Duration) *Limiter {
	return NewWithClock(interval, time.Now)
}

// NewWithClock creates a limiter reading time from now.
func NewWithClock(interval time.Duration, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		interval: interval,
		now:      now,
	}
}

// Allow checks if an action is allowed at this time.
// Returns true if allowed (and records this as the last allowed time),
// or false with the remaining wait duration if rate-limited.
func (l *Limiter) Allow() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.lastAllowed.IsZero() {
		l.lastAllowed = now
		return true, 0
	}

	timeSinceLast := now.Sub(l.lastAllowed)
	if timeSinceLast >= l.interval {
		l.lastAllowed = now
		return true, 0
	}

	return false, l.interval - timeSinceLast
}
