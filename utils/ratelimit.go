package utils

import (
	"net/url"
	"strings"
	"sync"
	"time"
)

// rateWindow is fixed, not sliding: it resets wholesale once elapsed.
const rateWindow = 60 * time.Second

type domainState struct {
	lastRequest time.Time
	windowStart time.Time
	count       int
}

// RateLimiter enforces, per domain, a minimum spacing between requests and
// a cap on requests per fixed 60-second window.
type RateLimiter struct {
	minInterval  time.Duration
	maxPerWindow int

	now   func() time.Time
	sleep func(time.Duration)

	mu      sync.Mutex
	domains map[string]*domainState
}

// NewRateLimiter creates a limiter. maxPerMinute <= 0 disables the cap.
func NewRateLimiter(minInterval time.Duration, maxPerMinute int) *RateLimiter {
	return &RateLimiter{
		minInterval:  minInterval,
		maxPerWindow: maxPerMinute,
		now:          time.Now,
		sleep:        time.Sleep,
		domains:      make(map[string]*domainState),
	}
}

// WithClock replaces the time source and sleeper. Used by tests.
func (rl *RateLimiter) WithClock(now func() time.Time, sleep func(time.Duration)) *RateLimiter {
	rl.now = now
	rl.sleep = sleep
	return rl
}

// Wait blocks until a request to domain satisfies both constraints, then
// records it.
func (rl *RateLimiter) Wait(domain string) {
	for {
		wait := rl.reserve(domain)
		if wait <= 0 {
			return
		}
		rl.sleep(wait)
	}
}

// reserve either records the request and returns 0, or returns how long the
// caller must sleep before trying again.
func (rl *RateLimiter) reserve(domain string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	st, ok := rl.domains[domain]
	if !ok {
		st = &domainState{windowStart: now}
		rl.domains[domain] = st
	}

	if now.Sub(st.windowStart) >= rateWindow {
		st.windowStart = now
		st.count = 0
	}

	if rl.maxPerWindow > 0 && st.count >= rl.maxPerWindow {
		return st.windowStart.Add(rateWindow).Sub(now)
	}

	if !st.lastRequest.IsZero() {
		if next := st.lastRequest.Add(rl.minInterval); now.Before(next) {
			return next.Sub(now)
		}
	}

	st.count++
	st.lastRequest = now
	return 0
}

// DomainOf returns the lowercased host of rawURL without a "www." prefix.
func DomainOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return strings.ToLower(rawURL)
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}
