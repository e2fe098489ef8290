// Package mab implements the adaptive multi-armed-bandit controller that
// chooses the next fault-tolerance parameter m between observation periods
// (spec §4.3 C6).
//
// The teacher repo has no bandit of its own; this package is grounded on
// `_examples/original_source/multiarmed_bandit_executor.py`, whose
// discounted-UCB1 update this reproduces faithfully in the teacher's
// struct-plus-constructor idiom (small stateful type whose hyperparameters
// and logger are passed through its constructor rather than read from
// package-level globals). Arm selection is deterministic and uses no RNG.
package mab

import (
	"math"

	"github.com/sirupsen/logrus"
)

// Observation is the aggregate statistics the driver computes over one
// batch of R round results for a single m (spec §4.3 step 1).
type Observation struct {
	AvgMaxLatencyMs float64
	Failed          bool
}

// Controller chooses the next m candidate at each observation-period
// boundary. Centralized is fully specified; Decentralized is an open
// question in the source material and is only stubbed (spec §9).
type Controller interface {
	// Decide ingests one period's Observation and returns the chosen m.
	Decide(obs Observation) (int, error)
}

const varianceFloor = 0.002

// Centralized is a discounted UCB1-style bandit over K = len(mOpts) arms
// (spec §4.3).
type Centralized struct {
	mOpts []int

	gamma          float64
	rewardBias     float64
	failurePenalty float64

	n    []float64
	s    []float64
	prev int // -1 = no previous pull

	log *logrus.Entry
}

// NewCentralized creates a bandit over mOpts (sorted, spec §6
// "possibleMValues"). gamma is the discount factor, the average latency is
// subtracted from rewardBias to form the reward (lower latency, higher
// reward), and failurePenalty is the (negative) reward applied on an
// observed failure. The variance floor is fixed at 0.002.
func NewCentralized(mOpts []int, gamma, rewardBias, failurePenalty float64, log *logrus.Entry) *Centralized {
	k := len(mOpts)
	return &Centralized{
		mOpts:          mOpts,
		gamma:          gamma,
		rewardBias:     rewardBias,
		failurePenalty: failurePenalty,
		n:              make([]float64, k),
		s:              make([]float64, k),
		prev:           -1,
		log:            log,
	}
}

// Decide implements spec §4.3 steps 2-5.
func (c *Centralized) Decide(obs Observation) (int, error) {
	if c.prev >= 0 {
		for i := range c.n {
			c.n[i] *= c.gamma
			c.s[i] *= c.gamma
		}
		reward := c.rewardBias - obs.AvgMaxLatencyMs
		if obs.Failed {
			reward = c.failurePenalty
		}
		c.n[c.prev]++
		c.s[c.prev] += reward
	}

	arm := c.selectArm()
	c.prev = arm
	c.log.WithFields(logrus.Fields{
		"chosen_m":           c.mOpts[arm],
		"failed":             obs.Failed,
		"avg_max_latency_ms": obs.AvgMaxLatencyMs,
	}).Debug("mab decision")
	return c.mOpts[arm], nil
}

// selectArm implements spec §4.3 steps 3-4: pull an unpulled arm (largest
// index first, "initial exploration favours safer m first") if any
// remains, else the Bernoulli-UCB argmax with an epsilon-floored variance
// term.
func (c *Centralized) selectArm() int {
	for i := len(c.n) - 1; i >= 0; i-- {
		if c.n[i] == 0 {
			return i
		}
	}

	total := 0.0
	for _, ni := range c.n {
		total += ni
	}
	logTotal := math.Log(total)

	best, bestScore := 0, math.Inf(-1)
	for i := range c.n {
		mu := c.s[i] / c.n[i]
		variance := mu * (1 - mu)
		if variance < varianceFloor {
			variance = varianceFloor
		}
		ci := math.Sqrt(variance * logTotal / c.n[i])
		score := mu + ci
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	return best
}
