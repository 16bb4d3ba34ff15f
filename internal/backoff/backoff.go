// Package backoff centralizes retry delay calculation so the policy and its
// tests share one implementation.
package backoff

import (
	"math/rand"
	"time"
)

// Calculator computes exponential backoff delays with uniform jitter.
// The zero value is not usable; construct with New.
type Calculator struct {
	rand func() float64
}

// New returns a Calculator using the default random source.
func New() *Calculator {
	return &Calculator{rand: rand.Float64}
}

// NewWithRand returns a Calculator with an injected random source in
// [0.0, 1.0), for deterministic tests.
func NewWithRand(r func() float64) *Calculator {
	return &Calculator{rand: r}
}

// Delay returns the backoff before the retry numbered retryCount (1-based:
// the first retry passes 1). The raw delay is base * 2^retryCount with
// ±25% uniform jitter, clamped to max. Starting the exponent at 1 makes
// the first retry wait about twice base, a conservative bias kept on
// purpose.
func (c *Calculator) Delay(retryCount int, base, max time.Duration) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	// Cap the exponent so the float math cannot overflow.
	if retryCount > 30 {
		retryCount = 30
	}

	exp := float64(base) * pow(2.0, retryCount)
	jittered := exp * (1 + 0.25*(2*c.rand()-1))

	d := time.Duration(jittered)
	if d < 0 || d > max {
		d = max
	}
	return d
}

func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
