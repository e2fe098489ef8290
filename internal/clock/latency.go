package clock

import (
	"math"

	"github.com/om-mab/simulator/internal/sampler"
)

// LatencySampler draws per-message network delays from a normal
// distribution clipped to [0, maxMs], mirroring the original
// network_manager.py getMessageDelay: "sampling from a normal distribution
// (with bounds added for min/max)".
type LatencySampler struct {
	meanMs   float64
	stdDevMs float64
	maxMs    float64
	src      sampler.Source
	spare    float64
	hasSpare bool
}

// NewLatencySampler builds a sampler with the given mean/stddev (in ms),
// clipped to [0, maxMs]. src provides the underlying randomness so the
// draw sequence is reproducible given a seed (spec §5: "the RNG may be
// per-task, seeded deterministically").
func NewLatencySampler(avgMs, stdDevMs, maxMs float64, src sampler.Source) *LatencySampler {
	return &LatencySampler{
		meanMs:   avgMs,
		stdDevMs: stdDevMs,
		maxMs:    maxMs,
		src:      src,
	}
}

// Sample returns a delay in milliseconds in [0, maxMs].
func (l *LatencySampler) Sample() int64 {
	d := l.meanMs + l.stdDevMs*l.standardNormal()
	if d < 0 {
		d = 0
	}
	if d > l.maxMs {
		d = l.maxMs
	}
	return int64(d)
}

// standardNormal draws from N(0,1) via the Box-Muller transform, using two
// uniform draws from the per-actor deterministic source. One of the two
// values produced per transform is cached so consecutive calls only pay
// for the trig every other draw.
func (l *LatencySampler) standardNormal() float64 {
	if l.hasSpare {
		l.hasSpare = false
		return l.spare
	}
	var u1, u2 float64
	for u1 == 0 {
		u1 = l.src.Float64()
	}
	u2 = l.src.Float64()

	r := math.Sqrt(-2 * math.Log(u1))
	theta := 2 * math.Pi * u2

	l.spare = r * math.Sin(theta)
	l.hasSpare = true
	return r * math.Cos(theta)
}
