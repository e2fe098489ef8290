package node

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/om-mab/simulator/internal/clock"
	"github.com/om-mab/simulator/internal/message"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

// testOutbound collects every message a node hands to the fabric.
type testOutbound struct {
	sent []message.Message
}

func (o *testOutbound) fn() Outbound {
	return func(msg message.Message) { o.sent = append(o.sent, msg) }
}

// TestCommanderEmitsImmediateResult covers spec §4.1's TriggerCommander
// handling: the commander forwards to every peer and emits its own result
// with zero latency without waiting on anything.
func TestCommanderEmitsImmediateResult(t *testing.T) {
	out := &testOutbound{}
	clk := clock.NewFakeClock(0)
	n := New(0, 4, false, 0, 1000, clk, out.fn(), testLogger())
	n.dispatch(message.TriggerCommander{Decision: true})

	var results []message.ConsensusResultMessage
	forwarded := 0
	for _, m := range out.sent {
		switch v := m.(type) {
		case message.ConsensusResultMessage:
			results = append(results, v)
		case message.ConsensusMessage:
			forwarded++
			require.Equal(t, message.Chain{0}, v.Chain)
			require.True(t, v.Value)
		}
	}
	require.Equal(t, 3, forwarded, "commander forwards to every other node")
	require.Len(t, results, 1)
	require.True(t, results[0].Value)
	require.EqualValues(t, 0, results[0].LatencyMs)
}

// TestOM0BaseCaseCompletesOnFirstMessage covers the m=0 recursion base
// case: the moment the single expected message arrives, the node must
// fold and emit without any forwarding (spec §4.1 step 4).
func TestOM0BaseCaseCompletesOnFirstMessage(t *testing.T) {
	out := &testOutbound{}
	clk := clock.NewFakeClock(0)
	n := New(1, 4, false, 0, 1000, clk, out.fn(), testLogger())
	n.dispatch(message.SetMValues{Values: []int{0}})
	n.dispatch(message.ConsensusStart{Commander: 0})

	n.dispatch(message.ConsensusMessage{Source: 0, Dest: 1, Value: true, Chain: message.Chain{0}})

	var results []message.ConsensusResultMessage
	for _, m := range out.sent {
		if rm, ok := m.(message.ConsensusResultMessage); ok {
			results = append(results, rm)
		}
	}
	require.Len(t, results, 1)
	require.True(t, results[0].Value)
	require.Equal(t, 0, results[0].M)
}

// TestTimeoutSubstitutesDefaultValue covers spec §4.1's timeout semantics:
// an awaiting entry past its deadline is treated exactly like a message
// carrying defaultConsensusValue on the expected chain.
func TestTimeoutSubstitutesDefaultValue(t *testing.T) {
	out := &testOutbound{}
	clk := clock.NewFakeClock(0)
	n := New(1, 4, true /* defaultConsensusValue */, 0, 100, clk, out.fn(), testLogger())
	n.dispatch(message.SetMValues{Values: []int{0}})
	n.dispatch(message.ConsensusStart{Commander: 0})

	clk.Advance(200) // past the 100ms deadline

	n.mu.Lock()
	n.checkTimeoutsLocked()
	n.mu.Unlock()

	var results []message.ConsensusResultMessage
	for _, m := range out.sent {
		if rm, ok := m.(message.ConsensusResultMessage); ok {
			results = append(results, rm)
		}
	}
	require.Len(t, results, 1)
	require.True(t, results[0].Value, "timeout must substitute defaultConsensusValue")
}

// TestPendingMessageReprocessedAfterNewAwaitingEntry covers spec §4.1
// step 3: a message that arrived before its awaiting entry existed is
// buffered, then consumed once reprocessing finds a match.
func TestPendingMessageReprocessedAfterNewAwaitingEntry(t *testing.T) {
	out := &testOutbound{}
	clk := clock.NewFakeClock(0)
	n := New(2, 3, false, 0, 1000, clk, out.fn(), testLogger())
	n.dispatch(message.SetMValues{Values: []int{1}})

	// The peer-forwarded message for chain [0,1] arrives at node 2 before
	// node 2 has itself processed chain [0] and added the [0,1] awaiting
	// entry: it is buffered rather than dropped, and consumed by the next
	// reprocessing pass once that entry exists.
	n.dispatch(message.ConsensusStart{Commander: 0})
	n.mu.Lock()
	require.Empty(t, n.pending)
	n.mu.Unlock()

	unmatched := message.ConsensusMessage{Source: 1, Dest: 2, Value: true, Chain: message.Chain{0, 1}}
	n.dispatch(unmatched)

	n.mu.Lock()
	require.Len(t, n.pending, 1, "unmatched chain must be buffered, not dropped")
	n.mu.Unlock()

	n.dispatch(message.ConsensusMessage{Source: 0, Dest: 2, Value: true, Chain: message.Chain{0}})

	n.mu.Lock()
	n.reprocessPendingLocked()
	require.Empty(t, n.pending, "buffered [0,1] must be consumed once the [0,1] awaiting entry exists")
	n.mu.Unlock()

	var results []message.ConsensusResultMessage
	for _, m := range out.sent {
		if rm, ok := m.(message.ConsensusResultMessage); ok {
			results = append(results, rm)
		}
	}
	require.Len(t, results, 1, "with both expected messages in, the m=1 round completes")
	require.True(t, results[0].Value)
}

func TestShutdownStopsDispatch(t *testing.T) {
	out := &testOutbound{}
	clk := clock.NewFakeClock(0)
	n := New(0, 2, false, 0, 100, clk, out.fn(), testLogger())
	require.False(t, n.dispatch(message.Shutdown{}))
}

func TestRunExitsOnShutdown(t *testing.T) {
	out := &testOutbound{}
	clk := clock.NewFakeClock(0)
	n := New(0, 2, false, time.Millisecond, 100, clk, out.fn(), testLogger())
	inbox := message.NewMailbox()
	inbox.Send(message.Shutdown{})

	done := make(chan struct{})
	go func() {
		n.Run(inbox)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
}
