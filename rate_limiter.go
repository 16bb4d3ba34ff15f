package resilix

import (
	"strings"
	"sync"
	"time"
)

// RateConfig bounds the number of requests allowed inside one fixed window.
type RateConfig struct {
	MaxRequests int
	Window      time.Duration
}

// RateRule associates an endpoint pattern with a RateConfig. Patterns are
// plain substrings matched against the endpoint in registration order;
// the first match wins.
type RateRule struct {
	Pattern string
	Config  RateConfig
}

// requestWindow is the mutable per-pattern counter. It is replaced, not
// incremented, once the window has expired.
type requestWindow struct {
	count   int
	resetAt time.Time
}

// RateLimiter throttles outgoing calls per endpoint pattern using fixed
// time windows. Fixed-window counting is deliberate: bursts of up to twice
// the limit can occur at window boundaries, and callers must not assume
// smooth throttling. It is safe for concurrent use; the check-and-increment
// in Allow happens under a single mutex hold so concurrent callers can
// never both consume the last slot.
type RateLimiter struct {
	mu       sync.Mutex
	rules    []RateRule
	fallback RateConfig
	windows  map[string]*requestWindow
	now      func() time.Time
}

// DefaultRateConfig is the fallback applied to endpoints no rule matches.
var DefaultRateConfig = RateConfig{MaxRequests: 60, Window: time.Minute}

// NewRateLimiter creates a limiter with the given ordered rules and
// fallback config for endpoints no rule matches.
func NewRateLimiter(rules []RateRule, fallback RateConfig) *RateLimiter {
	return &RateLimiter{
		rules:    rules,
		fallback: fallback,
		windows:  make(map[string]*requestWindow),
		now:      time.Now,
	}
}

// resolve returns the window key and config for an endpoint: the first rule
// whose pattern is a substring of the endpoint, else the fallback.
func (rl *RateLimiter) resolve(endpoint string) (string, RateConfig) {
	for _, rule := range rl.rules {
		if strings.Contains(endpoint, rule.Pattern) {
			return rule.Pattern, rule.Config
		}
	}
	return "default", rl.fallback
}

// Allow reports whether a request to endpoint may proceed, consuming one
// slot of the matching window if so. The first call into a fresh or
// expired window always succeeds and reinitializes the window. A blocked
// call does not consume a slot.
func (rl *RateLimiter) Allow(endpoint string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	key, config := rl.resolve(endpoint)
	now := rl.now()

	w, ok := rl.windows[key]
	if !ok || !now.Before(w.resetAt) {
		rl.windows[key] = &requestWindow{count: 1, resetAt: now.Add(config.Window)}
		return true
	}

	if w.count >= config.MaxRequests {
		return false
	}
	w.count++
	return true
}

// Remaining returns the number of slots left in the endpoint's current
// window, or the full limit if no window is active. It never mutates state.
func (rl *RateLimiter) Remaining(endpoint string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	key, config := rl.resolve(endpoint)
	w, ok := rl.windows[key]
	if !ok || !rl.now().Before(w.resetAt) {
		return config.MaxRequests
	}
	remaining := config.MaxRequests - w.count
	if remaining < 0 {
		return 0
	}
	return remaining
}
