// Package node implements the per-node actor running the OM(m) oral
// messages algorithm (spec §4.1 C3).
//
// The teacher's core/node.BaseNode models a generic actor: an id, a state
// enum (running/crashed/partitioned/byzantine), an inbox, and a
// SendFunc/EventEmitter pair injected at construction so the actor never
// reaches for global state. That shape — struct holding id/state/inbox
// plus injected collaborators, all guarded by one mutex — carries over
// directly; what changes is everything about *what* the actor does with a
// message, since BaseNode has no notion of OM(m) recursion, a result tree,
// or awaiting-entry timeouts. The per-node debug-print-behind-a-flag idiom
// the teacher uses elsewhere is replaced, per the spec's own redesign
// notes, with a structured logger capability injected into the
// constructor.
package node

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/om-mab/simulator/internal/clock"
	"github.com/om-mab/simulator/internal/message"
	"github.com/om-mab/simulator/internal/resulttree"
)

// Outbound hands one message to the fabric. Consensus messages carry their
// own destination (ConsensusMessage.Dest); result messages carry the
// node's own id. The fabric drains one outbound queue per node and
// dispatches on message kind (spec §4.2 "drain outbound queue").
type Outbound func(msg message.Message)

// awaitingEntry is one outstanding expected message (spec §3
// "AwaitingEntry").
type awaitingEntry struct {
	deadlineMs    int64
	expectedChain message.Chain
}

// Node is one OM(m) participant. Per-round state (awaiting, pending,
// tree, consensusStartMs) is cleared at the start of every consensus
// round (spec §3 "Lifecycle"); node identity and long-lived config (id,
// peer count, default value, m candidates, latency bound) live for the
// whole experiment.
type Node struct {
	mu sync.Mutex

	id           int
	numNodes     int
	sleep        time.Duration
	defaultValue bool
	maxLatencyMs int64

	mOptions  []int
	currentM  int

	clk clock.Clock
	out Outbound
	log *logrus.Entry

	inRound          bool
	commanderID      int
	awaiting         []awaitingEntry
	pending          []message.ConsensusMessage
	tree             *resulttree.Node
	consensusStartMs int64
	resultEmitted    bool
}

// New creates a node. out is called only from the node's own goroutine to
// hand outbound traffic to the fabric; log is a component-scoped entry the
// caller has already attached a node-id field to.
func New(id, numNodes int, defaultValue bool, sleep time.Duration, maxLatencyMs int64, clk clock.Clock, out Outbound, log *logrus.Entry) *Node {
	return &Node{
		id:           id,
		numNodes:     numNodes,
		sleep:        sleep,
		defaultValue: defaultValue,
		maxLatencyMs: maxLatencyMs,
		commanderID:  -1,
		clk:          clk,
		out:          out,
		log:          log,
	}
}

// ID returns the node's identifier.
func (n *Node) ID() int { return n.id }

// Run is the actor loop (spec §4.1 steps 1-4): sleep, scan timeouts,
// reprocess buffered messages, consume at most one inbound message. It
// returns when a Shutdown control message is processed.
func (n *Node) Run(inbox *message.Mailbox) {
	defer func() {
		if r := recover(); r != nil {
			n.log.WithField("panic", r).Error("node actor crashed")
			panic(r)
		}
	}()
	for {
		time.Sleep(n.sleep)

		n.mu.Lock()
		n.checkTimeoutsLocked()
		n.reprocessPendingLocked()
		n.mu.Unlock()

		msg, ok := inbox.TryReceive()
		if !ok {
			continue
		}
		if !n.dispatch(msg) {
			return
		}
	}
}

// dispatch handles one inbound message, control or consensus. It returns
// false only when the node should stop its actor loop.
func (n *Node) dispatch(msg message.Message) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch m := msg.(type) {
	case message.Shutdown:
		n.log.Debug("shutdown received")
		return false

	case message.SetMValues:
		n.mOptions = m.Values
		if len(n.mOptions) > 0 {
			n.currentM = n.mOptions[0]
		}
		n.log.WithField("m_values", m.Values).Debug("updated m candidates")

	case message.ConsensusStart:
		n.resetRoundLocked()
		n.commanderID = m.Commander
		n.consensusStartMs = n.clk.NowMs()
		n.addAwaitingLocked(message.Chain{m.Commander})
		n.log.WithField("commander", m.Commander).Debug("consensus round started")

	case message.TriggerCommander:
		n.resetRoundLocked()
		n.commanderID = n.id
		n.consensusStartMs = n.clk.NowMs()
		n.triggerCommanderLocked(m.Decision)

	case message.ConsensusMessage:
		n.handleConsensusLocked(m)

	default:
		n.log.WithField("kind", msg.Kind().String()).Warn("unexpected message, dropping")
	}
	return true
}

// resetRoundLocked clears all per-round state (spec §3 Lifecycle).
func (n *Node) resetRoundLocked() {
	n.inRound = true
	n.commanderID = -1
	n.awaiting = nil
	n.pending = nil
	n.tree = resulttree.NewRoot(n.id)
	n.consensusStartMs = 0
	n.resultEmitted = false
}

// triggerCommanderLocked implements "for every other node send
// ConsensusMessage(value=decision, chain=[self]); immediately emit local
// result with value = decision" (spec §4.1).
func (n *Node) triggerCommanderLocked(decision bool) {
	chain := message.Chain{n.id}
	for peer := 0; peer < n.numNodes; peer++ {
		if peer == n.id {
			continue
		}
		n.out(message.ConsensusMessage{
			Source: n.id,
			Dest:   peer,
			Value:  decision,
			Chain:  chain,
		})
	}
	n.emitResultLocked(decision)
}

// addAwaitingLocked registers a new outstanding expected message with a
// deadline of now + maxLatencyMs (spec §4.1: "a single fixed maxLatency
// deadline is set for each awaiting entry at creation").
func (n *Node) addAwaitingLocked(expected message.Chain) {
	n.awaiting = append(n.awaiting, awaitingEntry{
		deadlineMs:    n.clk.NowMs() + n.maxLatencyMs,
		expectedChain: expected,
	})
}

// findAwaitingLocked returns the index of the awaiting entry matching
// chain, if any.
func (n *Node) findAwaitingLocked(chain message.Chain) (int, bool) {
	for i, e := range n.awaiting {
		if e.expectedChain.Equal(chain) {
			return i, true
		}
	}
	return -1, false
}

// removeAwaitingLocked drops the awaiting entry at index i.
func (n *Node) removeAwaitingLocked(i int) {
	n.awaiting = append(n.awaiting[:i], n.awaiting[i+1:]...)
}

// checkTimeoutsLocked implements step 2 of the actor loop: any awaiting
// entry whose deadline has passed is treated as if defaultConsensusValue
// had arrived on its expected chain (spec §4.1 "timeout semantics").
func (n *Node) checkTimeoutsLocked() {
	if !n.inRound {
		return
	}
	now := n.clk.NowMs()
	for i := 0; i < len(n.awaiting); {
		if n.awaiting[i].deadlineMs < now {
			chain := n.awaiting[i].expectedChain
			n.removeAwaitingLocked(i)
			n.log.WithField("chain", chain.String()).Debug("awaiting entry timed out, substituting default value")
			n.processChainLocked(chain, n.defaultValue)
			continue
		}
		i++
	}
}

// reprocessPendingLocked implements step 3: messages buffered because they
// did not match any awaiting entry at arrival time may match now that new
// entries have been added by forwarding.
func (n *Node) reprocessPendingLocked() {
	if !n.inRound || len(n.pending) == 0 {
		return
	}
	remaining := n.pending[:0]
	for _, m := range n.pending {
		if _, ok := n.findAwaitingLocked(m.Chain); ok {
			n.consumeConsensusLocked(m)
		} else {
			remaining = append(remaining, m)
		}
	}
	n.pending = remaining
}

// handleConsensusLocked implements the OM(m) recursion entry point for an
// inbound ConsensusMessage (spec §4.1 steps 1-2 of "OM(m) recursion").
func (n *Node) handleConsensusLocked(m message.ConsensusMessage) {
	if !n.inRound {
		n.log.WithField("chain", m.Chain.String()).Warn("consensus message received outside a round, dropping")
		return
	}
	if _, ok := n.findAwaitingLocked(m.Chain); ok {
		n.consumeConsensusLocked(m)
		return
	}
	n.pending = append(n.pending, m)
}

// consumeConsensusLocked removes the matching awaiting entry and processes
// the chain/value pair.
func (n *Node) consumeConsensusLocked(m message.ConsensusMessage) {
	idx, ok := n.findAwaitingLocked(m.Chain)
	if !ok {
		// Should not happen: callers only invoke this once a match is
		// confirmed, but re-check defensively since reprocessing and
		// timeout scans both mutate awaiting between scan and consume.
		n.pending = append(n.pending, m)
		return
	}
	n.removeAwaitingLocked(idx)
	n.processChainLocked(m.Chain, m.Value)
}

// processChainLocked implements spec §4.1 steps 3-5 of the OM(m)
// recursion: insert into the result tree, detect the recursion base case,
// and either check completion or forward to the remaining peers.
func (n *Node) processChainLocked(chain message.Chain, value bool) {
	if n.tree.Has(chain) {
		n.log.WithField("chain", chain.String()).Warn("duplicate message for chain, dropping")
		return
	}
	if err := n.tree.Insert(chain, value); err != nil {
		n.log.WithField("chain", chain.String()).WithError(err).Warn("protocol anomaly inserting into result tree")
		return
	}

	if len(chain) > n.currentM {
		n.checkCompletionLocked()
		return
	}

	nextChain := chain.Extend(n.id)
	for peer := 0; peer < n.numNodes; peer++ {
		if peer == n.id || chain.Contains(peer) {
			continue
		}
		n.out(message.ConsensusMessage{
			Source: n.id,
			Dest:   peer,
			Value:  value,
			Chain:  nextChain,
		})
		n.addAwaitingLocked(chain.Extend(peer))
	}
}

// expectedChildrenLocked is the domain-specific branching rule handed to
// resulttree.MinBranchDepth (spec §3 "children keys never include ids
// already in the ancestor chain or the receiving node's own id"). At the
// root (ancestorChain empty, nothing relayed yet) the only expected
// message is the one direct send from the known commander; at every
// deeper level the expected set is every node not already in the chain and
// not this node itself, per the OM(m) forwarding rule.
func (n *Node) expectedChildrenLocked(ancestorChain []int) map[int]bool {
	expected := make(map[int]bool)
	if len(ancestorChain) == 0 {
		if n.commanderID >= 0 {
			expected[n.commanderID] = true
		}
		return expected
	}
	chain := message.Chain(ancestorChain)
	for peer := 0; peer < n.numNodes; peer++ {
		if peer == n.id || chain.Contains(peer) {
			continue
		}
		expected[peer] = true
	}
	return expected
}

// checkCompletionLocked implements hasReceivedAll(m): the tree exists and
// its minimum branch depth is at least m+1 (spec §4.1 "completion
// predicate"). On completion it folds the tree and emits the node's
// consensus result exactly once per round.
func (n *Node) checkCompletionLocked() {
	if n.resultEmitted {
		return
	}
	depth := n.tree.MinBranchDepth(n.expectedChildrenLocked)
	if depth < n.currentM+1 {
		return
	}
	value := n.tree.Fold(resulttree.MajorityBool, n.defaultValue)
	n.emitResultLocked(value)
}

// emitResultLocked sends this node's consensus result for the round and
// marks it emitted so a late timeout scan cannot double-emit.
func (n *Node) emitResultLocked(value bool) {
	n.resultEmitted = true
	latency := n.clk.NowMs() - n.consensusStartMs
	n.out(message.ConsensusResultMessage{
		Node:      n.id,
		M:         n.currentM,
		LatencyMs: latency,
		Value:     value,
	})
	n.log.WithField("value", value).WithField("latency_ms", latency).Debug("consensus result emitted")
}
