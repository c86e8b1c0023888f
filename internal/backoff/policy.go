// Package backoff computes retry delays for provider and MCP transport
// failures.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy configures an exponential-with-jitter backoff sequence.
type Policy struct {
	InitialMs int64
	MaxMs     int64
	Factor    float64
	Jitter    float64
}

// DefaultPolicy matches the teacher's provider-retry defaults.
func DefaultPolicy() Policy {
	return Policy{InitialMs: 100, MaxMs: 30_000, Factor: 2, Jitter: 0.1}
}

// Compute returns the delay before retry attempt n (1-indexed).
func (p Policy) Compute(n int) time.Duration {
	return p.ComputeWithRand(n, rand.Float64) //#nosec G404 -- jitter only, not security sensitive
}

// ComputeWithRand is Compute with an injectable random source, for
// deterministic tests.
func (p Policy) ComputeWithRand(n int, randFloat func() float64) time.Duration {
	if n < 1 {
		n = 1
	}
	base := float64(p.InitialMs) * math.Pow(p.Factor, float64(n-1))
	if base > float64(p.MaxMs) {
		base = float64(p.MaxMs)
	}
	jitterRange := base * p.Jitter
	delta := (randFloat()*2 - 1) * jitterRange
	ms := base + delta
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond
}

// Fixed returns a constant-delay policy, used by MCP's retry_delay.
func Fixed(delay time.Duration) Policy {
	ms := int64(delay / time.Millisecond)
	return Policy{InitialMs: ms, MaxMs: ms, Factor: 1, Jitter: 0}
}
