// Package backoff provides retry delay strategies for optimistic
// concurrency retries. Strategies are stateless and safe for
// concurrent use.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Strategy computes the delay before a retry attempt. Attempt numbers
// are 1-indexed: attempt 1 is the first retry after the initial
// failure.
type Strategy interface {
	Delay(attempt int) time.Duration
}

// StrategyFunc adapts a function to the Strategy interface.
type StrategyFunc func(attempt int) time.Duration

func (f StrategyFunc) Delay(attempt int) time.Duration {
	return f(attempt)
}

// Constant returns the same delay for every attempt.
type Constant struct {
	Interval time.Duration
}

// NewConstant builds a constant strategy with the given interval.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Exponential doubles the delay on each attempt:
// min(Base * 2^(attempt-1), Cap). When Jitter is set the result is a
// uniform random duration in [0, delay], which spreads out retries
// from writers that collided on the same version.
type Exponential struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter bool
}

// NewExponential builds an exponential strategy without jitter.
func NewExponential(base, cap time.Duration) *Exponential {
	return &Exponential{Base: base, Cap: cap}
}

// NewExponentialJitter builds an exponential strategy with full jitter.
func NewExponentialJitter(base, cap time.Duration) *Exponential {
	return &Exponential{Base: base, Cap: cap, Jitter: true}
}

func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(e.Base) * math.Pow(2, float64(attempt-1))
	if e.Cap > 0 && d > float64(e.Cap) {
		d = float64(e.Cap)
	}
	if e.Jitter {
		d = rand.Float64() * d //nolint:gosec // non-crypto rand is fine for jitter
	}
	return time.Duration(d)
}

// Default is the strategy used when no retry policy is configured:
// 10ms base doubling up to 1s, with full jitter.
func Default() Strategy {
	return NewExponentialJitter(10*time.Millisecond, time.Second)
}
