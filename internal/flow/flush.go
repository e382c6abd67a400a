// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import "context"

// ScheduleTransition posts a flush job for index to the worker pool.
// flags is the request's flags at the moment
// of scheduling, not re-read from the entry at flush time, since the
// entry may be mutated again before the job runs; it decides only whether
// the flush also resets the slot (the request cleared ACTIVE).
func (r *Router) ScheduleTransition(index int, flags Flag) {
	r.worker.Schedule(func() {
		r.flushEntry(index, flags)
	})
}

// flushEntry is the deferred flush work item: it rebuilds
// forwarding metadata, drains the hold list through the action engine, and
// resets the slot if the transition was a delete.
func (r *Router) flushEntry(index int, flags Flag) {
	e := r.table.EntryAt(index)
	if e == nil {
		return
	}

	var fmd ForwardingMD
	r.setForwardingMD(e, index, &fmd)
	r.drainEntry(e, &fmd)

	if flags&FlagActive == 0 {
		r.resetEntry(e, index)
	}
}

// setForwardingMD rebuilds the metadata a replayed packet needs, so
// queued packets see the entry's current ecmp_nh_index and flow index
// rather than whatever was current when they were first queued.
func (r *Router) setForwardingMD(e *Entry, index int, fmd *ForwardingMD) {
	fmd.FlowIndex = index
	fmd.ECMPNHIndex = e.ECMPNHIndex.Load()
	if e.Has(FlagRFlowValid) {
		if rfe := r.table.EntryAt(int(e.RFlow.Load())); rfe != nil {
			fmd.ECMPSrcNHIndex = rfe.ECMPNHIndex.Load()
		}
	}
}

// drainEntry detaches the hold list and replays each packet through the
// action engine in FIFO order. The detach happens before
// any dispatch, so a concurrent enqueue during the drain sees an empty
// queue rather than racing the walk (holdqueue.go's drain already
// provides this).
func (r *Router) drainEntry(e *Entry, fmd *ForwardingMD) {
	for _, n := range e.drain() {
		pkt, ok := n.packet.(*Packet)
		if !ok {
			continue
		}
		fmd.OuterSrcIP = n.outerSrcIP
		r.Apply(context.Background(), e, fmd.FlowIndex, pkt, n.proto, fmd)
	}
}

// resetMirror releases both mirror references the entry holds, clears the
// MIRROR flag, and restores the sentinel ids. It is idempotent: once the
// flag is clear, a second call is a no-op (delete calls this immediately;
// the later flush's reset calls it again on an already-cleared entry).
func (r *Router) resetMirror(e *Entry, index int) {
	if e.Has(FlagMirror) {
		r.collab.Mirrors.Put(r.RID, e.MirrorID.Load())
		r.collab.Mirrors.Put(r.RID, e.SecMirrorID.Load())
		r.collab.Mirrors.DelMeta(uint32(index))
	}
	e.SetFlags(e.Flags() &^ FlagMirror)
	e.MirrorID.Store(MaxMirrorIndices)
	e.SecMirrorID.Store(MaxMirrorIndices)
}

// resetEntry publishes the slot as free: release mirrors, then zero
// stats/key/scalars and clear ACTIVE as the final store (entry.reset).
func (r *Router) resetEntry(e *Entry, index int) {
	r.resetMirror(e, index)
	e.reset()
}

// Reset walks every slot in both tables, draining and resetting each the
// way flushEntry does for a delete, then zeroes the backpressure counters.
// Every slot is drained and reset regardless of its ACTIVE state. Used for
// a full soft reset of the router, not by the per-entry hot path.
func (r *Router) Reset() {
	total := r.table.N() + r.table.M()
	for i := 0; i < total; i++ {
		e := r.table.EntryAt(i)
		if e == nil {
			continue
		}
		e.SetAction(ActionDrop)
		var fmd ForwardingMD
		r.setForwardingMD(e, i, &fmd)
		r.drainEntry(e, &fmd)
		r.resetEntry(e, i)
	}

	for i := range r.holdCount {
		r.holdCount[i].Store(0)
	}
	r.actionCount.Store(0)
	r.metrics.HoldCount.Set(0)
}
