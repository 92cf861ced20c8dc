package engine

import (
	"sync"
	"time"
)

// RateLimiter enforces the minimum interval between own submissions.
// There is no queueing: a denied attempt is simply denied and the caller
// decides what to surface.
type RateLimiter struct {
	mu           sync.Mutex
	cooldown     time.Duration
	lastAccepted time.Time
}

func NewRateLimiter(cooldown time.Duration) *RateLimiter {
	return &RateLimiter{cooldown: cooldown}
}

// TryConsume reports whether a submission at now is allowed and, when it
// is, records now as the last accepted time.
func (l *RateLimiter) TryConsume(now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.lastAccepted.IsZero() && now.Sub(l.lastAccepted) < l.cooldown {
		return false
	}
	l.lastAccepted = now
	return true
}

// Last returns the time of the most recent accepted submission, zero if
// none has been accepted since the last reset.
func (l *RateLimiter) Last() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastAccepted
}

// Reset discards the cooldown state. A fresh room entry starts with a
// fresh window.
func (l *RateLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastAccepted = time.Time{}
}
