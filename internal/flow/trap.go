// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import "sync/atomic"

// subUint64 atomically subtracts d from *a using two's-complement
// addition, since atomic.Uint64.Add only takes an additive delta.
func subUint64(a *atomic.Uint64, d uint64) {
	a.Add(^d + 1)
}

// trapFlow clones pkt and hands the clone to the agent, selecting the trap
// reason from the entry's TRAP_* bits. The clone is what the
// agent sees; the original packet stays queued on the entry's hold list,
// its eventual disposition decided by the flush.
func (r *Router) trapFlow(e *Entry, pkt *Packet, index int) {
	reason := TrapFlowMiss
	if e.Has(FlagTrapECMP) {
		reason = TrapECMPResolve
	}
	r.trap(pkt.Clone(), e.Key.VRFID, reason, uint32(index))
}

// trap delivers pkt to the agent with cookie. Ownership of pkt
// transfers to the trap sink whether or not delivery succeeds; a failure
// is logged and the packet silently dropped by the sink, matching the
// "traps are fire-and-forget" rule.
func (r *Router) trap(pkt *Packet, vrf uint16, reason TrapReason, cookie uint32) {
	c := cookie
	if err := r.collab.Traps.Trap(pkt, vrf, reason, &c); err != nil {
		r.log.Warn("trap delivery failed", "reason", reason.String(), "cookie", cookie, "err", err)
	}
	r.metrics.recordTrap(reason)
}

// setHold transitions e to Hold and bumps the calling CPU's hold counter.
// Before incrementing, it opportunistically reconciles against
// action_count, guarded by the overflow test hold_count+1 < hold_count.
// The guard fires essentially never on wide counters and is kept as-is
// rather than replaced with a tighter check, since tightening it would
// change the observable backpressure signal callers already depend on.
func (r *Router) setHold(e *Entry) {
	cpu := r.nextCPU()
	e.SetAction(ActionHold)

	cur := r.holdCount[cpu].Load()
	if cur+1 < cur {
		act := r.actionCount.Load()
		if act > uint64(cur) {
			subUint64(&r.actionCount, uint64(cur))
			r.holdCount[cpu].Store(0)
		} else {
			r.holdCount[cpu].Store(cur - uint32(act))
			subUint64(&r.actionCount, act)
		}
	}

	r.holdCount[cpu].Add(1)
	r.metrics.HoldCount.Set(float64(r.UnresolvedHolds()))
}

// recordActionCount bumps the global action_count by one, the control
// plane's signal that a Hold entry resolved to a concrete action.
func (r *Router) recordActionCount() {
	r.actionCount.Add(1)
	r.metrics.ActionCount.Inc()
	r.metrics.HoldCount.Set(float64(r.UnresolvedHolds()))
}

// UnresolvedHolds is the lossy backpressure signal Sigma(hold_count) -
// action_count, clamped at zero.
func (r *Router) UnresolvedHolds() uint64 {
	var total uint64
	for i := range r.holdCount {
		total += uint64(r.holdCount[i].Load())
	}
	act := r.actionCount.Load()
	if total >= act {
		return total - act
	}
	return 0
}
