package messaging

import (
	"sync"
	"time"
)

const (
	// DefaultRateLimit is the per-identity operation budget per window.
	DefaultRateLimit = 100
	// DefaultRateWindow is the sliding window for the rate limiter.
	DefaultRateWindow = 1 * time.Minute

	// rateSweepAge is how long after the last event before an idle key's
	// record is garbage-collected.
	rateSweepAge = 1 * time.Hour
)

// rateLimiter enforces a per-key sliding-window budget on encrypt and
// decrypt operations. The key is "userID/crewID", so one noisy identity
// cannot starve the rest of the crew.
type rateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	events map[string][]time.Time
	now    func() time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		limit:  limit,
		window: window,
		events: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// allow records one operation for the key and reports whether it fits the
// window budget. Rejected operations are not recorded, so a saturated
// caller recovers as soon as old events slide out of the window.
func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	evts := rl.events[key]
	start := 0
	for start < len(evts) && evts[start].Before(cutoff) {
		start++
	}
	evts = evts[start:]

	if len(evts) >= rl.limit {
		rl.events[key] = evts
		return false
	}
	rl.events[key] = append(evts, now)
	return true
}

// sweep removes idle keys. Call periodically from a background goroutine.
func (rl *rateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rateSweepAge)
	for key, evts := range rl.events {
		if len(evts) == 0 || evts[len(evts)-1].Before(cutoff) {
			delete(rl.events, key)
		}
	}
}
