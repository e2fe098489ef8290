package driver

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/om-mab/simulator/internal/config"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// TestScenario1AllRoundsAgreeWhenSafe exercises scenario S1 (spec §8): four
// nodes, M_opts={1}, one faulty node from round 0, a handful of rounds.
// Every round should report zero failures across all m, since m=1 covers
// the single actual faulty node (N=4 > 3m).
func TestScenario1AllRoundsAgreeWhenSafe(t *testing.T) {
	cfg := &config.ScenarioConfig{
		Run: config.RunConfig{
			NumConsensusRounds:             8,
			NumNodes:                       4,
			PossibleMValues:                []int{1},
			UseCentralizedMultiArmedBandit: true,
			SleepBetweenNodeProcessingMs:   1,
		},
		Round: config.RoundConfig{RoundsPerObservationPeriod: 4},
		NetworkLatency: config.NetworkLatencyConfig{
			AverageLatencyMs: 2,
			LatencyStdDevMs:  1,
			MaxLatencyMs:     40,
		},
		Byzantine: config.ByzantineConfig{
			ConsensusRoundToSetMValue: map[int]int{0: 1},
			PercentDropMessage:        0,
			DefaultConsensusValue:     false,
		},
		MultiArmedBandit: config.MultiArmedBanditConfig{
			Gamma: 1, RewardBias: 50, FailurePenalty: -100, VarianceFloor: 0.002,
		},
		DistributedMAB: config.DistributedMABConfig{
			MinMValueMargin: 1, DecentralizedFaultToleranceValue: 0, DefaultMValuePair: [2]int{1, 1},
		},
	}

	d := New(cfg, 42, testLogger())
	full, err := d.Run()
	require.NoError(t, err)
	require.Len(t, full.Rounds, 8)

	for _, rr := range full.Rounds {
		for _, failed := range rr.FailedByM {
			require.False(t, failed, "with one faulty node every m=1 round must agree")
		}
	}
}

// TestScenarioAlwaysDropAdversaryStillTerminates exercises scenario S6 (spec
// §8): a faulty node that always drops its outbound traffic must still let
// every round complete, with non-faulty nodes falling back to the default
// value via the per-awaiting-entry timeout (spec §4.1 "a round cannot
// hang"). This is the one S6 property that holds regardless of RNG draw:
// Run must return with a full set of recorded rounds rather than blocking
// forever in the fabric's delivery loop.
func TestScenarioAlwaysDropAdversaryStillTerminates(t *testing.T) {
	cfg := &config.ScenarioConfig{
		Run: config.RunConfig{
			NumConsensusRounds:             5,
			NumNodes:                       4,
			PossibleMValues:                []int{1},
			UseCentralizedMultiArmedBandit: true,
			SleepBetweenNodeProcessingMs:   1,
		},
		Round: config.RoundConfig{RoundsPerObservationPeriod: 5},
		NetworkLatency: config.NetworkLatencyConfig{
			AverageLatencyMs: 2,
			LatencyStdDevMs:  1,
			MaxLatencyMs:     20,
		},
		Byzantine: config.ByzantineConfig{
			ConsensusRoundToSetMValue: map[int]int{0: 1},
			PercentDropMessage:        1, // adversary always drops
			DefaultConsensusValue:     false,
		},
		MultiArmedBandit: config.MultiArmedBanditConfig{
			Gamma: 1, RewardBias: 50, FailurePenalty: -100, VarianceFloor: 0.002,
		},
		DistributedMAB: config.DistributedMABConfig{
			MinMValueMargin: 1, DecentralizedFaultToleranceValue: 0, DefaultMValuePair: [2]int{1, 1},
		},
	}

	d := New(cfg, 7, testLogger())
	full, err := d.Run()
	require.NoError(t, err)
	require.Len(t, full.Rounds, 5, "every round must complete despite a permanently-dropping faulty node")

	for _, rr := range full.Rounds {
		require.Len(t, rr.ConsensusesByM[1], cfg.Run.NumNodes, "every node must still emit a result (possibly the default, via timeout)")
	}
}
