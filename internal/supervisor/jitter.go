package supervisor

import (
	"math/rand"
	"time"
)

// Jitter spreads a polling interval by a random fraction so that many agents
// started together do not hit a shared dependency in lockstep.
type Jitter struct {
	pct float64
	rng *rand.Rand
}

// NewJitter creates a jitter source. pct is the total spread as a fraction of
// the interval (0.2 = ±10%). A zero pct disables jitter.
func NewJitter(seed int64, pct float64) *Jitter {
	if pct < 0 {
		pct = 0
	}
	return &Jitter{
		pct: pct,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Apply returns d moved by a random amount within ±(pct/2)*d.
// The result is never negative.
func (j *Jitter) Apply(d time.Duration) time.Duration {
	if j == nil || j.pct == 0 || d <= 0 {
		return d
	}
	spread := float64(d) * j.pct
	out := float64(d) + spread*j.rng.Float64() - spread/2
	if out < 0 {
		return 0
	}
	return time.Duration(out)
}
