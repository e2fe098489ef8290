// Package message defines the tagged set of control and wire messages
// exchanged between the network fabric and node actors (spec §3 C1), plus
// an unbounded per-actor mailbox.
//
// The teacher's core/message package modeled a message as an interface
// (Type() MessageType, Payload() interface{}) wrapping an arbitrary
// payload — dynamic typing of message contents, which the spec's own
// REDESIGN FLAGS section calls out for replacement: "Represent as a tagged
// union over the fixed message kinds; corruption at the fabric becomes a
// per-variant operation." Message is accordingly a closed set of concrete
// structs, one per message kind, each reporting its Kind(); the fabric and
// node type-switch over these concrete structs instead of unpacking an
// interface{} payload, and Kind() names the variant in log lines.
package message

import "fmt"

// Kind identifies which concrete message type a Message carries.
type Kind int

const (
	KindConsensus Kind = iota
	KindConsensusResult
	KindConsensusStart
	KindTriggerCommander
	KindSetMValues
	KindShutdown
)

func (k Kind) String() string {
	switch k {
	case KindConsensus:
		return "consensus"
	case KindConsensusResult:
		return "consensus_result"
	case KindConsensusStart:
		return "consensus_start"
	case KindTriggerCommander:
		return "trigger_commander"
	case KindSetMValues:
		return "set_m_values"
	case KindShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Message is the closed set of values that can flow through the fabric's
// queues. Only Consensus messages are ever routed node-to-node through the
// delayed-delivery heap. ConsensusResultMessage goes from a node to the
// fabric on the node's outbound queue; the others are control messages
// pushed directly onto a node's inbound queue by the fabric.
type Message interface {
	Kind() Kind
}

// Chain is an ordered, distinct sequence of node ids recording the path of
// commanders that produced a ConsensusMessage (spec §3 "General-chain").
type Chain []int

// Clone returns an independent copy of the chain.
func (c Chain) Clone() Chain {
	out := make(Chain, len(c))
	copy(out, c)
	return out
}

// Extend returns a new chain with id appended, leaving c untouched.
func (c Chain) Extend(id int) Chain {
	out := make(Chain, len(c), len(c)+1)
	copy(out, c)
	return append(out, id)
}

// Contains reports whether id appears anywhere in the chain.
func (c Chain) Contains(id int) bool {
	for _, v := range c {
		if v == id {
			return true
		}
	}
	return false
}

// Last returns the final (most recent sender) id in the chain.
func (c Chain) Last() int {
	return c[len(c)-1]
}

// Equal reports whether two chains carry the same ids in the same order.
func (c Chain) Equal(o Chain) bool {
	if len(c) != len(o) {
		return false
	}
	for i := range c {
		if c[i] != o[i] {
			return false
		}
	}
	return true
}

func (c Chain) String() string {
	return fmt.Sprintf("%v", []int(c))
}

// ConsensusMessage is passed from node to node during OM(m) recursion
// (spec §3 "ConsensusMessage").
type ConsensusMessage struct {
	Source int
	Dest   int
	Value  bool
	Chain  Chain
}

func (ConsensusMessage) Kind() Kind { return KindConsensus }

// Clone deep-copies the message, required before the fabric is allowed to
// mutate (e.g. corrupt) the payload, so sender-side state is never touched
// (spec §3 Lifecycle: "the fabric deep-copies payloads before possibly
// corrupting them so that sender state is never mutated").
func (m ConsensusMessage) Clone() ConsensusMessage {
	m.Chain = m.Chain.Clone()
	return m
}

// ConsensusResultMessage is emitted by a node to the fabric once OM(m) has
// completed at that node (spec §4.1 step 4).
type ConsensusResultMessage struct {
	Node      int
	M         int
	LatencyMs int64
	Value     bool
}

func (ConsensusResultMessage) Kind() Kind { return KindConsensusResult }

// ConsensusStart tells a non-commander node to begin a round, naming the
// commander it should expect a message from (spec §4.1 control messages).
type ConsensusStart struct {
	Commander int
}

func (ConsensusStart) Kind() Kind { return KindConsensusStart }

// TriggerCommander tells the commander node to originate a round with the
// given decision value.
type TriggerCommander struct {
	Decision bool
}

func (TriggerCommander) Kind() Kind { return KindTriggerCommander }

// SetMValues replaces a node's consensusTolerance candidate list.
type SetMValues struct {
	Values []int
}

func (SetMValues) Kind() Kind { return KindSetMValues }

// Shutdown tells a node actor to exit its loop.
type Shutdown struct{}

func (Shutdown) Kind() Kind { return KindShutdown }
