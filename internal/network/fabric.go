// Package network implements the simulated network fabric (spec §4.2 C5):
// N inbound/outbound mailboxes, a per-destination delayed-delivery heap,
// and fault injection (drop/corrupt) decided at delivery time.
//
// The teacher's network/transport.NetworkTransport models almost the same
// shape — a registered per-node DeliveryHandler, a packetLoss probability,
// a min/max latency range, a `pending []*pendingMessage` slice it scans
// for deliverAt — but its pending queue is a flat slice scanned linearly
// and its loss/latency model is per-transport rather than per-faulty-node.
// Fabric keeps the same "collaborator" shape (handlers registered by node
// id, Send/drop/latency policy all in one type) but swaps the flat slice
// for a proper per-destination binary heap keyed on (deliveryTime,
// insertion counter), exactly as the spec's own redesign notes prescribe,
// and makes drop/corruption a property of the sending node's
// currentFaultyNodes membership rather than a transport-wide constant.
package network

import (
	"container/heap"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/om-mab/simulator/internal/clock"
	"github.com/om-mab/simulator/internal/message"
	"github.com/om-mab/simulator/internal/sampler"
)

// pendingItem is one scheduled delayed delivery.
type pendingItem struct {
	deliveryMs int64
	seq        int64
	dest       int
	msg        message.Message
}

// destHeap is a binary heap over pendingItem ordered by (deliveryMs, seq),
// the monotonic insertion counter the spec requires to make same-tick
// deliveries deterministic rather than dependent on payload identity.
type destHeap []*pendingItem

func (h destHeap) Len() int { return len(h) }
func (h destHeap) Less(i, j int) bool {
	if h[i].deliveryMs != h[j].deliveryMs {
		return h[i].deliveryMs < h[j].deliveryMs
	}
	return h[i].seq < h[j].seq
}
func (h destHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *destHeap) Push(x any)   { *h = append(*h, x.(*pendingItem)) }
func (h *destHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// Fabric owns the inbound/outbound mailboxes for numNodes node actors and
// the delayed-delivery heaps that sit between them.
type Fabric struct {
	numNodes int
	sleep    time.Duration

	inbound  []*message.Mailbox
	outbound []*message.Mailbox

	pending []destHeap
	seq     int64

	clk      clock.Clock
	rng      sampler.Source
	faultRNG sampler.Uniform

	latency *clock.LatencySampler

	percentDropMessage float64
	numFaulty          int
	currentFaulty      map[int]bool

	log *logrus.Entry
}

// New creates a fabric for numNodes nodes. rng seeds the fault-selection
// sampler and the corruption coin-flip; latency produces delivery delays
// (spec §4.2 "enqueueDelayed").
func New(numNodes int, sleep time.Duration, clk clock.Clock, rng sampler.Source, latency *clock.LatencySampler, percentDropMessage float64, log *logrus.Entry) *Fabric {
	f := &Fabric{
		numNodes:           numNodes,
		sleep:              sleep,
		inbound:            make([]*message.Mailbox, numNodes),
		outbound:           make([]*message.Mailbox, numNodes),
		pending:            make([]destHeap, numNodes),
		clk:                clk,
		rng:                rng,
		faultRNG:           sampler.NewUniform(rng),
		latency:            latency,
		percentDropMessage: percentDropMessage,
		currentFaulty:      make(map[int]bool),
		log:                log,
	}
	for i := 0; i < numNodes; i++ {
		f.inbound[i] = message.NewMailbox()
		f.outbound[i] = message.NewMailbox()
	}
	_ = f.faultRNG.Initialize(numNodes)
	return f
}

// Inbound returns the mailbox a node actor should receive from.
func (f *Fabric) Inbound(node int) *message.Mailbox { return f.inbound[node] }

// Outbound returns the send function a node actor should be constructed
// with; it pushes onto this node's outbound queue for the fabric to drain.
func (f *Fabric) Outbound(node int) func(message.Message) {
	box := f.outbound[node]
	return func(msg message.Message) { box.Send(msg) }
}

// SetFaultyCount updates how many distinct nodes the fabric samples as
// faulty each round (spec §4.4 step 1/2, "driver.updateFaultyNodes").
func (f *Fabric) SetFaultyCount(n int) { f.numFaulty = n }

// SampleFaultyNodes draws a fresh currentFaultyNodes set for the coming
// round (spec §4.2 "Fault selection").
func (f *Fabric) SampleFaultyNodes() map[int]bool {
	faulty := make(map[int]bool, f.numFaulty)
	if f.numFaulty > 0 {
		indices, ok := f.faultRNG.Sample(f.numFaulty)
		if ok {
			for _, idx := range indices {
				faulty[idx] = true
			}
		}
	}
	f.currentFaulty = faulty
	return faulty
}

// StartRound runs round setup (spec §4.2 "Round setup"): pick a commander
// uniformly at random, start every other node, drain their inbound queues,
// then start the commander.
func (f *Fabric) StartRound(trueValue bool) (commander int) {
	commander = f.rng.Intn(f.numNodes)
	for i := 0; i < f.numNodes; i++ {
		if i == commander {
			continue
		}
		f.inbound[i].Send(message.ConsensusStart{Commander: commander})
	}
	f.waitDrained(exclude(f.numNodes, commander))
	f.inbound[commander].Send(message.TriggerCommander{Decision: trueValue})
	f.waitDrained([]int{commander})
	return commander
}

// RunDeliveryLoop implements spec §4.2 "Delivery loop": repeatedly drain
// every node's outbound queue, route ConsensusMessage via enqueueDelayed
// or store ConsensusResultMessage, then release anything in the delayed
// heaps whose deliveryTime has arrived. Terminates once every node has
// reported a result and returns the collected per-node results.
func (f *Fabric) RunDeliveryLoop() map[int]message.ConsensusResultMessage {
	results := make(map[int]message.ConsensusResultMessage, f.numNodes)
	for len(results) < f.numNodes {
		time.Sleep(f.sleep)
		now := f.clk.NowMs()

		for i := 0; i < f.numNodes; i++ {
			for {
				msg, ok := f.outbound[i].TryReceive()
				if !ok {
					break
				}
				switch m := msg.(type) {
				case message.ConsensusMessage:
					f.enqueueDelayed(m, i, m.Dest, now)
				case message.ConsensusResultMessage:
					if _, already := results[i]; !already {
						results[i] = m
					}
				default:
					f.log.WithField("kind", msg.Kind().String()).Warn("unexpected message on outbound queue, dropping")
				}
			}
		}

		for dest := 0; dest < f.numNodes; dest++ {
			h := &f.pending[dest]
			for h.Len() > 0 && (*h)[0].deliveryMs <= now {
				item := heap.Pop(h).(*pendingItem)
				f.inbound[dest].Send(item.msg)
			}
		}
	}
	return results
}

// enqueueDelayed implements spec §4.2 "enqueueDelayed": deep-copy, possibly
// drop or corrupt a faulty sender's payload, draw a clipped-normal delay,
// and push into the destination's delayed-delivery heap.
func (f *Fabric) enqueueDelayed(msg message.ConsensusMessage, sender, dest int, now int64) {
	copied := msg.Clone()

	if f.currentFaulty[sender] {
		if f.rng.Float64() < f.percentDropMessage {
			f.log.WithFields(logrus.Fields{"sender": sender, "dest": dest}).Debug("faulty node dropped message")
			return
		}
		copied.Value = f.rng.Float64() < 0.5
		f.log.WithFields(logrus.Fields{"sender": sender, "dest": dest}).Debug("faulty node corrupted message")
	}

	delay := f.latency.Sample()
	f.seq++
	heap.Push(&f.pending[dest], &pendingItem{
		deliveryMs: now + delay,
		seq:        f.seq,
		dest:       dest,
		msg:        copied,
	})
}

// SetConsensusTolerance implements spec §4.2 "Broadcast of new m":
// enqueues SetMValues([m]) to every node and waits for delivery.
func (f *Fabric) SetConsensusTolerance(m int) {
	for i := 0; i < f.numNodes; i++ {
		f.inbound[i].Send(message.SetMValues{Values: []int{m}})
	}
	f.waitDrained(allOf(f.numNodes))
}

// Shutdown broadcasts Shutdown to every node's inbound queue (spec §4.2
// "Shutdown"). Callers are expected to additionally join the actor
// goroutines they started.
func (f *Fabric) Shutdown() {
	for i := 0; i < f.numNodes; i++ {
		f.inbound[i].Send(message.Shutdown{})
	}
}

// waitDrained polls until every named inbound queue is empty. The fabric
// has no way to be told a node finished processing a control message other
// than observing its inbound queue length fall back to zero, matching the
// spec's "wait until their queues drain" wording literally.
func (f *Fabric) waitDrained(nodes []int) {
	for {
		allEmpty := true
		for _, n := range nodes {
			if f.inbound[n].Len() > 0 {
				allEmpty = false
				break
			}
		}
		if allEmpty {
			return
		}
		time.Sleep(f.sleep)
	}
}

func exclude(n, x int) []int {
	out := make([]int, 0, n-1)
	for i := 0; i < n; i++ {
		if i != x {
			out = append(out, i)
		}
	}
	return out
}

func allOf(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
