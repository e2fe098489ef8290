package network

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/om-mab/simulator/internal/clock"
	"github.com/om-mab/simulator/internal/message"
	"github.com/om-mab/simulator/internal/sampler"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// TestStartRoundPicksOneCommanderAndStartsEveryNode exercises StartRound
// end to end. StartRound's waitDrained blocks until every targeted
// inbound queue is empty (spec §4.2 "wait until their queues drain"),
// which in a live run happens because each node actor's loop consumes its
// own inbox; here a draining goroutine per node stands in for that actor
// and records what it received.
func TestStartRoundPicksOneCommanderAndStartsEveryNode(t *testing.T) {
	clk := clock.NewWallClock()
	rng := sampler.NewSource(1)
	lat := clock.NewLatencySampler(0, 0, 0, rng)
	f := New(4, time.Millisecond, clk, rng, lat, 0, testLogger())

	received := make([]message.Message, 4)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				msg, ok := f.Inbound(i).TryReceive()
				if ok {
					received[i] = msg
					return
				}
				time.Sleep(time.Millisecond)
			}
		}()
	}

	commander := f.StartRound(true)
	wg.Wait()

	require.GreaterOrEqual(t, commander, 0)
	require.Less(t, commander, 4)
	require.Equal(t, message.KindTriggerCommander, received[commander].Kind())

	for i := 0; i < 4; i++ {
		if i == commander {
			continue
		}
		require.Equal(t, message.ConsensusStart{Commander: commander}, received[i])
	}
}

func TestEnqueueDelayedHonorsFaultySenderDrop(t *testing.T) {
	clk := clock.NewFakeClock(0)
	rng := sampler.NewSource(2)
	lat := clock.NewLatencySampler(10, 0, 10, rng)
	f := New(3, time.Millisecond, clk, rng, lat, 1.0 /* always drop */, testLogger())
	f.currentFaulty = map[int]bool{0: true}

	f.enqueueDelayed(message.ConsensusMessage{Source: 0, Dest: 1, Value: true, Chain: message.Chain{0}}, 0, 1, 0)
	require.Equal(t, 0, f.pending[1].Len(), "a message from a faulty sender must be droppable")
}

func TestEnqueueDelayedSchedulesWithinBounds(t *testing.T) {
	clk := clock.NewFakeClock(0)
	rng := sampler.NewSource(3)
	lat := clock.NewLatencySampler(10, 5, 20, rng)
	f := New(3, time.Millisecond, clk, rng, lat, 0, testLogger())

	f.enqueueDelayed(message.ConsensusMessage{Source: 1, Dest: 2, Value: true, Chain: message.Chain{1}}, 1, 2, 100)
	require.Equal(t, 1, f.pending[2].Len())
	item := f.pending[2][0]
	require.GreaterOrEqual(t, item.deliveryMs, int64(100))
	require.LessOrEqual(t, item.deliveryMs, int64(120))
}

func TestSampleFaultyNodesRespectsCount(t *testing.T) {
	clk := clock.NewWallClock()
	rng := sampler.NewSource(4)
	lat := clock.NewLatencySampler(0, 0, 0, rng)
	f := New(6, time.Millisecond, clk, rng, lat, 0, testLogger())
	f.SetFaultyCount(2)

	faulty := f.SampleFaultyNodes()
	require.Len(t, faulty, 2)
	for n := range faulty {
		require.GreaterOrEqual(t, n, 0)
		require.Less(t, n, 6)
	}
}

func TestShutdownBroadcastsToEveryInbox(t *testing.T) {
	clk := clock.NewWallClock()
	rng := sampler.NewSource(5)
	lat := clock.NewLatencySampler(0, 0, 0, rng)
	f := New(3, time.Millisecond, clk, rng, lat, 0, testLogger())

	f.Shutdown()
	for i := 0; i < 3; i++ {
		msg, ok := f.Inbound(i).TryReceive()
		require.True(t, ok)
		require.Equal(t, message.KindShutdown, msg.Kind())
	}
}
