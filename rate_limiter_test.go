package resilix

import (
	"sync"
	"testing"
	"time"
)

// fakeClock injects simulated time into a limiter.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(rules []RateRule, fallback RateConfig) (*RateLimiter, *fakeClock) {
	clock := newFakeClock()
	rl := NewRateLimiter(rules, fallback)
	rl.now = clock.Now
	return rl, clock
}

func TestRateLimiterAllowUpToLimit(t *testing.T) {
	rl, _ := newTestLimiter(nil, RateConfig{MaxRequests: 5, Window: time.Second})

	for i := 0; i < 5; i++ {
		if !rl.Allow("api.example.com/data") {
			t.Errorf("call %d should be allowed", i+1)
		}
	}
	if rl.Allow("api.example.com/data") {
		t.Error("call 6 should be blocked within the same window")
	}
}

func TestRateLimiterBlockedCallDoesNotConsumeSlot(t *testing.T) {
	rl, clock := newTestLimiter(nil, RateConfig{MaxRequests: 2, Window: time.Second})

	rl.Allow("e")
	rl.Allow("e")
	for i := 0; i < 10; i++ {
		if rl.Allow("e") {
			t.Fatal("blocked call allowed")
		}
	}

	// Blocked calls must not have pushed the window or counter; after
	// reset the full limit is available again.
	clock.Advance(1100 * time.Millisecond)
	if !rl.Allow("e") {
		t.Error("call after window reset should be allowed")
	}
	if got := rl.Remaining("e"); got != 1 {
		t.Errorf("Remaining = %d, want 1", got)
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl, clock := newTestLimiter(nil, RateConfig{MaxRequests: 3, Window: time.Second})

	for i := 0; i < 3; i++ {
		rl.Allow("e")
	}
	if rl.Allow("e") {
		t.Error("expected block at limit")
	}

	clock.Advance(time.Second)
	if !rl.Allow("e") {
		t.Error("expected allow after window elapsed")
	}
	// Fresh window was reinitialized with count 1.
	if got := rl.Remaining("e"); got != 2 {
		t.Errorf("Remaining after reset = %d, want 2", got)
	}
}

func TestRateLimiterRemainingDoesNotMutate(t *testing.T) {
	rl, _ := newTestLimiter(nil, RateConfig{MaxRequests: 2, Window: time.Second})

	if got := rl.Remaining("e"); got != 2 {
		t.Errorf("Remaining before any call = %d, want 2", got)
	}
	for i := 0; i < 100; i++ {
		rl.Remaining("e")
	}
	if !rl.Allow("e") || !rl.Allow("e") {
		t.Error("Remaining calls must not consume slots")
	}
	if rl.Allow("e") {
		t.Error("3rd Allow should be blocked")
	}
	if got := rl.Remaining("e"); got != 0 {
		t.Errorf("Remaining at limit = %d, want 0", got)
	}
}

func TestRateLimiterPatternResolution(t *testing.T) {
	rules := []RateRule{
		{Pattern: "/auth/login", Config: RateConfig{MaxRequests: 1, Window: time.Second}},
		{Pattern: "/auth", Config: RateConfig{MaxRequests: 2, Window: time.Second}},
	}
	rl, _ := newTestLimiter(rules, RateConfig{MaxRequests: 10, Window: time.Second})

	// First match wins: /auth/login hits the stricter rule.
	if !rl.Allow("api.example.com/auth/login") {
		t.Error("first login call should pass")
	}
	if rl.Allow("api.example.com/auth/login") {
		t.Error("second login call should be blocked by the 1-per-window rule")
	}

	// Other /auth endpoints use the second rule, tracked separately.
	if !rl.Allow("api.example.com/auth/refresh") || !rl.Allow("api.example.com/auth/refresh") {
		t.Error("refresh calls should use the /auth rule")
	}
	if rl.Allow("api.example.com/auth/refresh") {
		t.Error("3rd refresh call should be blocked")
	}

	// Unmatched endpoints share the fallback window.
	if got := rl.Remaining("api.example.com/items"); got != 10 {
		t.Errorf("fallback Remaining = %d, want 10", got)
	}
}

func TestRateLimiterLoginScenario(t *testing.T) {
	rules := []RateRule{
		{Pattern: "/login", Config: RateConfig{MaxRequests: 3, Window: 1000 * time.Millisecond}},
	}
	rl, clock := newTestLimiter(rules, DefaultRateConfig)

	for i := 1; i <= 3; i++ {
		if !rl.Allow("/login") {
			t.Errorf("call %d should pass the gate", i)
		}
	}
	if rl.Allow("/login") {
		t.Error("call 4 should be blocked")
	}

	clock.Advance(1100 * time.Millisecond)
	if !rl.Allow("/login") {
		t.Error("call 5 should pass after the window elapsed")
	}
	if got := rl.Remaining("/login"); got != 2 {
		t.Errorf("Remaining immediately after call 5 = %d, want 2", got)
	}
}

func TestRateLimiterConcurrentAccess(t *testing.T) {
	rl, _ := newTestLimiter(nil, RateConfig{MaxRequests: 100, Window: time.Minute})

	var wg sync.WaitGroup
	results := make(chan bool, 200)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				results <- rl.Allow("e")
			}
		}()
	}
	wg.Wait()
	close(results)

	allowed := 0
	for r := range results {
		if r {
			allowed++
		}
	}
	if allowed != 100 {
		t.Errorf("allowed = %d, want exactly 100", allowed)
	}
}

func TestRateLimiterIndependentPatternWindows(t *testing.T) {
	rules := []RateRule{
		{Pattern: "/a", Config: RateConfig{MaxRequests: 1, Window: time.Second}},
		{Pattern: "/b", Config: RateConfig{MaxRequests: 1, Window: time.Second}},
	}
	rl, _ := newTestLimiter(rules, DefaultRateConfig)

	if !rl.Allow("host/a") {
		t.Error("first /a call should pass")
	}
	if !rl.Allow("host/b") {
		t.Error("/b window must be independent of /a")
	}
	if rl.Allow("host/a") || rl.Allow("host/b") {
		t.Error("both windows should now be exhausted")
	}
}
