package app

import (
	"sync"
	"time"

	"github.com/dkeye/Relay/internal/domain"
)

// RateLimiter is a sliding-window limiter keyed by member. A limit of zero
// or less lets everything through.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[domain.MemberRef][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		history:  make(map[domain.MemberRef][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(ref domain.MemberRef) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[ref]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[ref] = fresh
		return false
	}
	rl.history[ref] = append(fresh, now)
	return true
}

// Forget drops the history of a member that went away.
func (rl *RateLimiter) Forget(ref domain.MemberRef) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.history, ref)
}
