// Package backoff provides exponential backoff with jitter plus a generic
// retry helper. The streaming dispatcher and the durable session backends
// retry through this package.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy parameterizes exponential backoff. All durations are milliseconds.
type Policy struct {
	InitialMs float64
	MaxMs     float64
	Factor    float64
	// Jitter is the randomization fraction (0.0 to 1.0) added on top of the
	// exponential base.
	Jitter float64
}

// Default returns the policy used when callers do not supply one:
// 100ms initial, 30s cap, doubling, 10% jitter.
func Default() Policy {
	return Policy{InitialMs: 100, MaxMs: 30000, Factor: 2, Jitter: 0.1}
}

// Compute returns the backoff for a 1-indexed attempt.
func (p Policy) Compute(attempt int) time.Duration {
	return p.ComputeWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter does not need crypto randomness
}

// ComputeWithRand is Compute with an injected random value in [0.0, 1.0),
// for deterministic tests. Attempts below 1 are treated as 1.
func (p Policy) ComputeWithRand(attempt int, randomValue float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := p.InitialMs * math.Pow(p.Factor, exp)
	total := math.Min(p.MaxMs, base+base*p.Jitter*randomValue)
	return time.Duration(math.Round(total)) * time.Millisecond
}
