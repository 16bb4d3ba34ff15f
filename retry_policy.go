package resilix

import (
	"time"

	"github.com/mwidjaja/resilix/internal/backoff"
)

// RetryConfig bounds the retry loop for one logical request.
// Invariant: BaseDelay <= MaxDelay.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig is applied when no retry configuration is supplied.
var DefaultRetryConfig = RetryConfig{
	MaxRetries: 3,
	BaseDelay:  100 * time.Millisecond,
	MaxDelay:   10 * time.Second,
}

// AttemptState is the per-request retry counter. It is attached to the
// logical request, not shared, and survives across retries of the same
// request.
type AttemptState struct {
	RetryCount int
}

// Attempts returns the total number of transport attempts made so far,
// counting the initial one.
func (a *AttemptState) Attempts() int {
	return a.RetryCount + 1
}

// RetryPolicy decides whether a failed attempt should be retried and how
// long to wait before the next attempt.
type RetryPolicy struct {
	config RetryConfig
	calc   *backoff.Calculator
}

// NewRetryPolicy creates a policy for the given config.
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	return &RetryPolicy{config: config, calc: backoff.New()}
}

// Config returns the policy's retry configuration.
func (p *RetryPolicy) Config() RetryConfig {
	return p.config
}

// ShouldRetry reports whether another attempt is permitted for the given
// attempt state and failure kind, and the delay to wait first. When it
// grants a retry it increments attempt.RetryCount, so the first retry is
// computed with exponent 1 (delay near 2x BaseDelay), not exponent 0.
func (p *RetryPolicy) ShouldRetry(attempt *AttemptState, kind ErrorKind) (time.Duration, bool) {
	if attempt.RetryCount >= p.config.MaxRetries {
		return 0, false
	}
	if !kind.Retryable() {
		return 0, false
	}

	attempt.RetryCount++
	return p.calc.Delay(attempt.RetryCount, p.config.BaseDelay, p.config.MaxDelay), true
}
