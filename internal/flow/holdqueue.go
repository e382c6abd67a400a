// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

// MaxQueue is the maximum number of packets held per entry awaiting the
// agent's decision.
const MaxQueue = 3

// EnqueueResult reports what happened to a packet offered to an entry's
// hold queue.
type EnqueueResult int

const (
	// EnqueueFirst means the queue was empty before this packet arrived;
	// the caller must also trap exactly one packet to the agent.
	EnqueueFirst EnqueueResult = iota
	// EnqueueOK means the packet was appended to a non-empty, non-full
	// queue.
	EnqueueOK
	// EnqueueDropped means the packet was rejected without being queued,
	// reason FLOW_QUEUE_LIMIT_EXCEEDED.
	EnqueueDropped
)

// enqueue appends pkt to the entry's hold FIFO. An arrival at a full
// queue is dropped WITHOUT being enqueued, and the existing queued
// packets are left untouched, so the queue never holds more than MaxQueue
// entries per hold cycle.
func (e *Entry) enqueue(pkt HeldPacket, proto uint8, outerSrcIP uint32) EnqueueResult {
	e.holdMu.Lock()
	defer e.holdMu.Unlock()

	wasEmpty := e.holdLen == 0

	if e.holdLen >= MaxQueue {
		return EnqueueDropped
	}

	node := &holdNode{packet: pkt, proto: proto, outerSrcIP: outerSrcIP}
	if e.holdHead == nil {
		e.holdHead = node
	} else {
		tail := e.holdHead
		for tail.next != nil {
			tail = tail.next
		}
		tail.next = node
	}
	e.holdLen++

	if wasEmpty {
		return EnqueueFirst
	}
	return EnqueueOK
}

// HoldLen returns the current number of packets queued on this entry.
func (e *Entry) HoldLen() int {
	e.holdMu.Lock()
	defer e.holdMu.Unlock()
	return e.holdLen
}

// drain detaches the entire hold list and returns it as a slice in FIFO
// order. The detach happens before any dispatch, so concurrent enqueue
// attempts during the drain see an empty queue rather than racing the
// walk.
func (e *Entry) drain() []*holdNode {
	e.holdMu.Lock()
	head := e.holdHead
	e.holdHead = nil
	e.holdLen = 0
	e.holdMu.Unlock()

	var nodes []*holdNode
	for n := head; n != nil; n = n.next {
		nodes = append(nodes, n)
	}
	return nodes
}
