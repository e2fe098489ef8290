package results

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSingleRoundResultsMaxLatency(t *testing.T) {
	rr := NewSingleRoundResults(true)
	rr.Record(1, 0, 10, true)
	rr.Record(1, 1, 40, true)
	rr.Record(1, 2, 25, false)

	require.EqualValues(t, 40, rr.MaxLatencyMs(1))
	require.EqualValues(t, 0, rr.MaxLatencyMs(2), "no observations recorded for m=2")
}

func TestFullResultsSlidingBuffer(t *testing.T) {
	full := NewFullResults()
	require.NotEmpty(t, full.RunID)

	full.Append(NewSingleRoundResults(true), 0, 1)
	full.Append(NewSingleRoundResults(false), 1, 1)
	require.Len(t, full.SinceLastDecision, 2)
	require.Len(t, full.Rounds, 2)

	full.ResetSinceLastDecision()
	require.Empty(t, full.SinceLastDecision)
	require.Len(t, full.Rounds, 2, "resetting the sliding window must not discard recorded rounds")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	full := NewFullResults()
	rr := NewSingleRoundResults(true)
	rr.Record(1, 0, 15, true)
	rr.FailedByM[1] = false
	full.Append(rr, 0, 1)
	full.ChosenM = append(full.ChosenM[:0], 1)

	path := filepath.Join(t.TempDir(), "results.bin")
	require.NoError(t, Save(path, full))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, full.RunID, loaded.RunID)
	require.Len(t, loaded.Rounds, 1)
	require.EqualValues(t, 15, loaded.Rounds[0].LatenciesByM[1][0])
}
