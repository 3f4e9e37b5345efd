package dispatch

import (
	"math/rand"
	"time"
)

// RetryPolicy computes the delay before the next attempt from the 0-based
// index of the attempt that just failed. Implementations must be pure so the
// policy can be unit-tested without a queue.
type RetryPolicy interface {
	NextDelay(attemptIndex int) time.Duration
}

// ExponentialRetryPolicy implements capped exponential backoff with jitter:
// min(Max, Base*2^attemptIndex) * rand(0.5, 1.5).
type ExponentialRetryPolicy struct {
	Base time.Duration
	Max  time.Duration
	// Jitter returns a factor in [0.5, 1.5). Nil uses math/rand.
	Jitter func() float64
}

func (p ExponentialRetryPolicy) NextDelay(attemptIndex int) time.Duration {
	return time.Duration(float64(p.UnjitteredDelay(attemptIndex)) * p.jitterFactor())
}

// UnjitteredDelay exposes the deterministic component of the backoff curve:
// monotonically non-decreasing in attemptIndex, never above Max.
func (p ExponentialRetryPolicy) UnjitteredDelay(attemptIndex int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = time.Second
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = 30 * time.Minute
	}
	if attemptIndex < 0 {
		attemptIndex = 0
	}
	delay := base
	for i := 0; i < attemptIndex; i++ {
		delay *= 2
		if delay >= maximum || delay <= 0 {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

func (p ExponentialRetryPolicy) jitterFactor() float64 {
	if p.Jitter != nil {
		return p.Jitter()
	}
	return 0.5 + rand.Float64()
}
