// Package results implements the per-round recorder and persisted results
// blob (spec §3 "SingleRoundResults"/"FullResults", §4.4 step 6, C8).
//
// Persistence and serialization are explicitly out of scope beyond an
// "interface only" per spec.md §1/§6, so the encoding here is deliberately
// the plainest thing that satisfies "a single opaque binary blob... forward
// compatibility is not required" (spec §6): encoding/gob, which none of the
// retrieval pack uses for anything domain-shaped and which no third-party
// dependency in the pack improves on for an explicitly-scoped-out,
// non-forward-compatible blob format (see DESIGN.md).
package results

import (
	"bytes"
	"encoding/gob"
	"os"

	"github.com/google/uuid"
)

// SingleRoundResults is one round's observations (spec §3
// "SingleRoundResults"). The outer map is keyed by m; in the centralized
// case it is a singleton, since only one m is in effect per round.
type SingleRoundResults struct {
	LatenciesByM   map[int]map[int]int64
	ConsensusesByM map[int]map[int]bool
	TrueValue      bool
	FailedByM      map[int]bool
}

// NewSingleRoundResults returns an empty SingleRoundResults ready for a
// round with the given true value.
func NewSingleRoundResults(trueValue bool) *SingleRoundResults {
	return &SingleRoundResults{
		LatenciesByM:   make(map[int]map[int]int64),
		ConsensusesByM: make(map[int]map[int]bool),
		TrueValue:      trueValue,
		FailedByM:      make(map[int]bool),
	}
}

// Record stores one node's observation for m.
func (r *SingleRoundResults) Record(m, node int, latencyMs int64, value bool) {
	if _, ok := r.LatenciesByM[m]; !ok {
		r.LatenciesByM[m] = make(map[int]int64)
		r.ConsensusesByM[m] = make(map[int]bool)
	}
	r.LatenciesByM[m][node] = latencyMs
	r.ConsensusesByM[m][node] = value
}

// MaxLatencyMs returns the slowest node's latency for m, the "max per-node
// latency within a round" the MAB aggregates over (spec §4.3 step 1).
func (r *SingleRoundResults) MaxLatencyMs(m int) int64 {
	var max int64
	for _, lat := range r.LatenciesByM[m] {
		if lat > max {
			max = lat
		}
	}
	return max
}

// FullResults is the append-only experiment record (spec §3
// "FullResults").
type FullResults struct {
	RunID string

	Rounds          []*SingleRoundResults
	TrueFaultyCount []int
	ChosenM         []int

	// sinceLastDecision is the sliding buffer of round indices since the
	// last MAB decision; reset at every observation-period boundary (spec
	// §3 "FullResults").
	SinceLastDecision []int
}

// NewFullResults creates an empty results set with a fresh run id.
func NewFullResults() *FullResults {
	return &FullResults{RunID: uuid.New().String()}
}

// Append records one round's results (spec §4.4 step 6).
func (f *FullResults) Append(round *SingleRoundResults, trueFaultyCount, chosenM int) {
	f.Rounds = append(f.Rounds, round)
	f.TrueFaultyCount = append(f.TrueFaultyCount, trueFaultyCount)
	f.ChosenM = append(f.ChosenM, chosenM)
	f.SinceLastDecision = append(f.SinceLastDecision, len(f.Rounds)-1)
}

// ResetSinceLastDecision clears the sliding buffer at an observation-period
// boundary (spec §4.4 step 7).
func (f *FullResults) ResetSinceLastDecision() {
	f.SinceLastDecision = nil
}

// Save persists f to path as a gob-encoded blob (spec §6 "Persisted
// results layout").
func Save(path string, f *FullResults) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(f); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Load decodes a FullResults blob previously written by Save.
func Load(path string) (*FullResults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f FullResults
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&f); err != nil {
		return nil, err
	}
	return &f, nil
}
