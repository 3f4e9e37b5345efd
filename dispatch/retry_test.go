package dispatch

import (
	"testing"
	"time"
)

func TestExponentialRetryPolicyUnjitteredCurve(t *testing.T) {
	policy := ExponentialRetryPolicy{
		Base: time.Second,
		Max:  30 * time.Minute,
	}

	previous := time.Duration(0)
	for index := 0; index < 64; index++ {
		delay := policy.UnjitteredDelay(index)
		if delay < previous {
			t.Fatalf("delay decreased at index %d: %s < %s", index, delay, previous)
		}
		if delay > policy.Max {
			t.Fatalf("delay exceeded cap at index %d: %s", index, delay)
		}
		previous = delay
	}

	if got := policy.UnjitteredDelay(0); got != time.Second {
		t.Fatalf("expected base delay at index 0, got %s", got)
	}
	if got := policy.UnjitteredDelay(3); got != 8*time.Second {
		t.Fatalf("expected 8s at index 3, got %s", got)
	}
	if got := policy.UnjitteredDelay(40); got != 30*time.Minute {
		t.Fatalf("expected cap at index 40, got %s", got)
	}
}

func TestExponentialRetryPolicyJitterBounds(t *testing.T) {
	policy := ExponentialRetryPolicy{
		Base:   time.Second,
		Max:    30 * time.Minute,
		Jitter: func() float64 { return 0.5 },
	}
	if got := policy.NextDelay(1); got != time.Second {
		t.Fatalf("expected 1s with 0.5 jitter on 2s base, got %s", got)
	}

	policy.Jitter = func() float64 { return 1.5 }
	if got := policy.NextDelay(1); got != 3*time.Second {
		t.Fatalf("expected 3s with 1.5 jitter on 2s base, got %s", got)
	}
}

func TestExponentialRetryPolicyDefaults(t *testing.T) {
	policy := ExponentialRetryPolicy{}
	if got := policy.UnjitteredDelay(0); got != time.Second {
		t.Fatalf("expected default base of 1s, got %s", got)
	}
	if got := policy.UnjitteredDelay(1000); got != 30*time.Minute {
		t.Fatalf("expected default cap of 30m, got %s", got)
	}
	if got := policy.UnjitteredDelay(-4); got != time.Second {
		t.Fatalf("expected negative index to clamp to base, got %s", got)
	}
}
