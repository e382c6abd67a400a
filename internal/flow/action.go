// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import "context"

// Apply is the action engine's entry point, called after a successful
// lookup or insert with the owning entry already resolved. It accounts the
// packet against the entry's stats, then either engages hold-queue
// semantics or dispatches the entry's concrete action.
func (r *Router) Apply(ctx context.Context, e *Entry, index int, pkt *Packet, proto uint8, fmd *ForwardingMD) {
	e.Stats.addBytes(uint32(len(pkt.Data)))
	e.Stats.addPacket()

	if e.Action() == ActionHold {
		r.applyHold(e, index, pkt, proto, fmd)
		return
	}

	r.applyResolved(ctx, e, index, pkt, proto, fmd)
}

// applyHold offers pkt to the entry's hold queue. The first packet to
// arrive at a previously empty queue is also trapped to the agent, exactly
// once per hold cycle; packets beyond MAX_QUEUE are dropped with
// FLOW_QUEUE_LIMIT_EXCEEDED rather than re-trapped.
func (r *Router) applyHold(e *Entry, index int, pkt *Packet, proto uint8, fmd *ForwardingMD) {
	outer := uint32(0)
	if fmd != nil {
		outer = fmd.OuterSrcIP
	}

	switch e.enqueue(pkt, proto, outer) {
	case EnqueueFirst:
		r.trapFlow(e, pkt, index)
	case EnqueueOK:
		// queued silently, no trap
	case EnqueueDropped:
		r.collab.Disposer.Free(pkt, DropFlowQueueLimitExceeded)
		r.metrics.recordDrop(DropFlowQueueLimitExceeded)
	}
}

// applyResolved runs the non-Hold path: forwarding metadata setup, source
// validation, mirroring, then dispatch on the entry's action.
func (r *Router) applyResolved(ctx context.Context, e *Entry, index int, pkt *Packet, proto uint8, fmd *ForwardingMD) {
	fmd.FlowIndex = index
	fmd.ECMPNHIndex = e.ECMPNHIndex.Load()
	if e.Has(FlagRFlowValid) {
		if rfe := r.table.EntryAt(int(e.RFlow.Load())); rfe != nil {
			fmd.ECMPSrcNHIndex = rfe.ECMPNHIndex.Load()
		}
	}

	vrf := e.Key.VRFID
	if e.Has(FlagVRFTranslate) {
		vrf = uint16(e.DVRF.Load())
	}

	nh, ok := r.collab.NextHops.GetNextHop(e.SrcNHIndex.Load())
	if !ok {
		r.free(pkt, DropInvalidNH)
		return
	}

	validation, err := nh.ValidateSource(ctx, vrf, pkt, fmd)
	if err != nil {
		r.log.Warn("source validation failed", "err", err)
	}
	switch validation {
	case SourceInvalid:
		r.free(pkt, DropInvalidSource)
		return
	case SourceMismatch:
		r.trap(pkt, vrf, TrapECMPResolve, uint32(index))
		return
	}

	r.mirror(e, pkt, fmd)

	switch e.Action() {
	case ActionDrop:
		r.free(pkt, DropActionDrop)
	case ActionForward:
		r.forward(ctx, vrf, pkt, proto, fmd)
	case ActionNAT:
		r.nat(ctx, vrf, e, pkt, proto, fmd)
	default:
		r.free(pkt, DropActionInvalid)
	}
}

// mirror dispatches a copy of pkt to each in-range mirror session attached
// to the entry, with the ECMP choice cleared in the mirrored metadata
// since a mirrored copy never re-enters ECMP resolution.
func (r *Router) mirror(e *Entry, pkt *Packet, fmd *ForwardingMD) {
	if !e.Has(FlagMirror) {
		return
	}
	for _, mid := range [2]uint32{e.MirrorID.Load(), e.SecMirrorID.Load()} {
		if mid >= MaxMirrorIndices {
			continue
		}
		mfmd := *fmd
		mfmd.ECMPNHIndex = NoECMPIndex
		r.collab.Mirrors.Mirror(r.RID, mid, pkt, &mfmd)
	}
}

// forward dispatches pkt via an already-resolved next-hop, or re-enters IP
// input on the (possibly VRF-translated) destination.
func (r *Router) forward(ctx context.Context, vrf uint16, pkt *Packet, proto uint8, fmd *ForwardingMD) {
	if pkt.EthProto != EthProtoIPv4 {
		r.free(pkt, DropInvalidProtocol)
		return
	}

	var err error
	if pkt.NH != nil {
		err = r.collab.IP.Output(ctx, vrf, pkt, pkt.NH, fmd)
	} else {
		err = r.collab.IP.Input(ctx, vrf, pkt, fmd)
	}
	if err != nil {
		r.log.Warn("forward failed", "vrf", vrf, "err", err)
		return
	}
	r.metrics.Forwarded.Inc()
}

// free disposes of pkt with reason and records the drop metric, the
// single exit shared by every DropReason path in the action engine.
func (r *Router) free(pkt *Packet, reason DropReason) {
	r.collab.Disposer.Free(pkt, reason)
	r.metrics.recordDrop(reason)
}
