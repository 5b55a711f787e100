// Package ratelimit implements per-user admission control for inbound updates.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultInterval is the minimum spacing between two admitted events of one user.
const DefaultInterval = time.Second

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter admits at most one event per user per interval. Rejected events
// leave no trace: the user's window keeps counting from the last admission.
type Limiter struct {
	interval time.Duration
	idleTTL  time.Duration

	mu    sync.Mutex
	users map[int64]*entry
}

// New creates a Limiter. A zero interval admits everything.
func New(interval time.Duration) *Limiter {
	return &Limiter{
		interval: interval,
		idleTTL:  10 * time.Minute,
		users:    make(map[int64]*entry),
	}
}

// Admit reports whether an event from userID arriving at now may be processed.
func (l *Limiter) Admit(userID int64, now time.Time) bool {
	if l.interval <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.users[userID]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Every(l.interval), 1)}
		l.users[userID] = e
	}
	if !e.limiter.AllowN(now, 1) {
		return false
	}
	e.lastSeen = now
	return true
}

// Sweep drops users whose last admission is older than the idle TTL and
// returns how many were removed. An evicted user starts with a full bucket,
// which is the same answer the limiter would give after the TTL anyway.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, e := range l.users {
		if now.Sub(e.lastSeen) >= l.idleTTL {
			delete(l.users, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked users.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}
