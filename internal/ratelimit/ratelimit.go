package ratelimit

import (
	"sync"
	"time"
)

// Limiter tracks the last accepted submission per user and enforces a fixed
// cooldown window between accepted submissions.
//
// The map is keyed by user id and never evicted; the population is small
// relative to the process lifetime. The check-and-record sequence around a
// submission is serialized per user by the caller.
type Limiter struct {
	mu     sync.Mutex
	window time.Duration
	last   map[int64]time.Time
}

func NewLimiter(window time.Duration) *Limiter {
	return &Limiter{
		window: window,
		last:   make(map[int64]time.Time),
	}
}

func (l *Limiter) Window() time.Duration {
	return l.window
}

// Remaining returns how long the user still has to wait, zero when a
// submission is allowed.
func (l *Limiter) Remaining(userID int64, now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	last, ok := l.last[userID]
	if !ok {
		return 0
	}
	elapsed := now.Sub(last)
	if elapsed >= l.window {
		return 0
	}
	return l.window - elapsed
}

// Record stores the acceptance timestamp for the user. Timestamps are
// monotonic per user: an earlier timestamp never overwrites a later one.
func (l *Limiter) Record(userID int64, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if last, ok := l.last[userID]; ok && now.Before(last) {
		return
	}
	l.last[userID] = now
}
