package relay

import (
	"sync"
	"time"
)

// rateLimiter caps messages per sender inside a sliding window. Old
// timestamps are pruned on every check, so memory stays proportional to
// recently active senders.
type rateLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	seen   map[string][]time.Time
	now    func() time.Time
}

// newRateLimiter allows max messages per window per key. max <= 0 disables
// limiting.
func newRateLimiter(max int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		max:    max,
		window: window,
		seen:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records one message for key and reports whether it fits the window.
// Rejected messages are not recorded.
func (r *rateLimiter) Allow(key string) bool {
	if r.max <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	kept := r.prune(key, now)
	if len(kept) >= r.max {
		r.seen[key] = kept
		return false
	}
	r.seen[key] = append(kept, now)
	return true
}

// ResetAt returns when the oldest recorded message for key leaves the
// window, false when nothing is recorded.
func (r *rateLimiter) ResetAt(key string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.prune(key, r.now())
	if len(kept) == 0 {
		delete(r.seen, key)
		return time.Time{}, false
	}
	r.seen[key] = kept
	return kept[0].Add(r.window), true
}

// prune must be called with the lock held. Returns the still-valid
// timestamps, oldest first.
func (r *rateLimiter) prune(key string, now time.Time) []time.Time {
	stamps := r.seen[key]
	cutoff := now.Add(-r.window)
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}
