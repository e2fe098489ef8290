package mab

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// ErrVoteAggregationUnspecified is returned by Decentralized.Decide. The
// vote-aggregation rule nodes would use to agree on a single (low, high)
// pair, and the reward attribution across two simultaneously-deployed m
// values, are left open in the source material this package is grounded
// on (spec §9 open questions); inventing either would mean guessing at an
// algorithm the spec explicitly asks to be preserved as unresolved.
var ErrVoteAggregationUnspecified = errors.New("mab: decentralized vote aggregation is not specified")

// Decentralized mirrors `haveDistributedNodesChooseNextMValues` /
// `getNextValuesOfM`: each node would compute a vote for an (mLow, mHigh)
// pair separated by at least MinMValueMargin, using FallbackM as the
// conservative value in effect while the meta-consensus that picks the
// pair is itself running. What this type implements is exactly the
// bookkeeping the source has: margin validation and the fallback-m value
// used during meta-consensus. It cannot complete a decision because the
// vote-aggregation step itself is unspecified.
type Decentralized struct {
	mOpts           []int
	minMValueMargin int
	fallbackM       int
	defaultPair     [2]int

	log *logrus.Entry
}

// NewDecentralized constructs the stub controller. defaultPair must be a
// sorted two-element subset of mOpts (spec §6 "defaultMValuePair").
func NewDecentralized(mOpts []int, minMValueMargin, fallbackM int, defaultPair [2]int, log *logrus.Entry) *Decentralized {
	return &Decentralized{
		mOpts:           mOpts,
		minMValueMargin: minMValueMargin,
		fallbackM:       fallbackM,
		defaultPair:     defaultPair,
		log:             log,
	}
}

// FallbackM returns the conservative m value in effect while a
// decentralized meta-consensus round is outstanding.
func (d *Decentralized) FallbackM() int { return d.fallbackM }

// ValidPair reports whether (low, high) respects MinMValueMargin and are
// both members of mOpts, the one piece of the contract spec.md §9 does
// commit to.
func (d *Decentralized) ValidPair(low, high int) bool {
	if high-low < d.minMValueMargin {
		return false
	}
	foundLow, foundHigh := false, false
	for _, m := range d.mOpts {
		if m == low {
			foundLow = true
		}
		if m == high {
			foundHigh = true
		}
	}
	return foundLow && foundHigh
}

// Decide always fails: see ErrVoteAggregationUnspecified.
func (d *Decentralized) Decide(obs Observation) (int, error) {
	d.log.Warn("decentralized MAB vote aggregation invoked but not specified, falling back")
	return d.fallbackM, ErrVoteAggregationUnspecified
}
