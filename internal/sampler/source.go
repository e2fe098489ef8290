// Package sampler provides the simulator's deterministic randomness: a
// seedable RNG source and a uniform-without-replacement sampler used to
// pick the faulty-node set each round and the truncated-normal latency
// draws in internal/clock.
//
// Adapted from the consensus engine's utils/sampler package, which wraps
// gonum's MT19937 behind a small Source interface (Seed/Uint64 only) so
// every caller can be reseeded independently for reproducible runs.
package sampler

import (
	"math"

	"gonum.org/v1/gonum/mathext/prng"
)

// Source is a reseedable source of uniform random numbers.
type Source interface {
	Seed(seed int64)
	Uint64() uint64
	// Float64 returns a uniform value in [0, 1).
	Float64() float64
	// Intn returns a uniform value in [0, n).
	Intn(n int) int
}

type mt19937Source struct {
	mt *prng.MT19937
}

// NewSource returns a deterministic Source seeded with seed. The driver
// derives separate Sources for the network fabric, the latency sampler,
// the initial-m draw and its own per-round draws from a single master
// seed; node actors draw no random numbers.
func NewSource(seed int64) Source {
	mt := prng.NewMT19937()
	mt.Seed(uint64(seed))
	return &mt19937Source{mt: mt}
}

func (s *mt19937Source) Seed(seed int64) {
	s.mt.Seed(uint64(seed))
}

func (s *mt19937Source) Uint64() uint64 {
	return s.mt.Uint64()
}

// Float64 converts the top 53 bits of a draw into a uniform double in
// [0, 1), the standard construction for a 64-bit generator.
func (s *mt19937Source) Float64() float64 {
	return float64(s.mt.Uint64()>>11) / float64(uint64(1)<<53)
}

// Intn draws a uniform value in [0, n) via rejection sampling against the
// largest multiple of n that fits in 64 bits, avoiding modulo bias.
func (s *mt19937Source) Intn(n int) int {
	if n <= 0 {
		panic("sampler: Intn called with n <= 0")
	}
	un := uint64(n)
	limit := math.MaxUint64 - math.MaxUint64%un
	for {
		v := s.mt.Uint64()
		if v < limit {
			return int(v % un)
		}
	}
}

// Derive produces a new independent Source seeded deterministically from
// the parent source and an integer tag (e.g. a node id), so that per-actor
// sources fan out from one master seed without sharing state.
func Derive(master Source, tag int) Source {
	mixed := master.Uint64() ^ (uint64(tag) * 0x9E3779B97F4A7C15)
	return NewSource(int64(mixed))
}
