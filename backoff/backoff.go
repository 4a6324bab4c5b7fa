// Package backoff computes exponential retry delays with optional jitter.
// A Policy is stateless and safe to share between concurrent retriers.
package backoff

import (
	"math/rand"
	"time"
)

// Policy describes an exponential backoff schedule: Base doubled per attempt,
// capped at Max. Jitter (0..1) widens each delay to a uniform sample in
// [d*(1-Jitter), d*(1+Jitter)]; zero disables jitter entirely.
type Policy struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64
}

// Default matches the reconnect cadence used by the event sources.
var Default = Policy{Base: 2 * time.Second, Max: 5 * time.Minute, Jitter: 0.2}

// Delay returns the delay before retry number attempt (zero-based).
func (p Policy) Delay(attempt int) time.Duration {
	if p.Base <= 0 {
		return 0
	}
	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.Max > 0 && d >= p.Max {
			d = p.Max
			break
		}
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	if p.Jitter > 0 {
		lo := float64(d) * (1 - p.Jitter)
		hi := float64(d) * (1 + p.Jitter)
		//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
		d = time.Duration(lo + rand.Float64()*(hi-lo))
	}
	return d
}
