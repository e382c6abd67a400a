// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import "context"

// ClassifyResult is parse's verdict on what a packet needs before it can
// be dispatched.
type ClassifyResult int

const (
	// ClassifyBypass means no flow lookup is needed; forward directly.
	ClassifyBypass ClassifyResult = iota
	// ClassifyTrap means the packet must go straight to the agent.
	ClassifyTrap
	// ClassifyLookup means the flow table must be consulted.
	ClassifyLookup
)

// DHCP well-known ports, checked against the key's (proto, dst_port) to
// force a trap regardless of policy state.
const (
	dhcpServerPort uint16 = 67
	dhcpClientPort uint16 = 68
)

// isBroadcastOrMulticast reports whether ip is the limited broadcast
// address or falls in the class-D multicast range.
func isBroadcastOrMulticast(ip uint32) bool {
	if ip == 0xFFFFFFFF {
		return true
	}
	return ip>>28 == 0xE
}

// parse decides whether pkt bypasses the flow table, must be trapped, or
// needs a lookup. key is nil when the caller has not yet
// been able to build one (header not yet parsed); only the
// policy/flow-get check applies in that case.
func (r *Router) parse(pkt *Packet, key *Key) (ClassifyResult, TrapReason) {
	if pkt.FlowSet {
		return ClassifyBypass, 0
	}

	res := ClassifyBypass
	if pkt.PolicyEnabled || pkt.FlowGet {
		res = ClassifyLookup
	}

	if key != nil {
		if isBroadcastOrMulticast(key.DstIP) {
			res = ClassifyBypass
			pkt.Multicast = true
			pkt.FlowSet = true
		}

		if key.Proto == ProtoUDP && (key.DstPort == dhcpServerPort || key.DstPort == dhcpClientPort) {
			res = ClassifyTrap
			pkt.FlowSet = true
			return res, TrapL3Protocols
		}
	}

	return res, 0
}

// buildKey derives the 5-tuple key for pkt.
func (r *Router) buildKey(vrf uint16, pkt *Packet, sport, dport uint16) Key {
	return Key{
		SrcIP:   pkt.SrcIP(),
		DstIP:   pkt.DstIP(),
		SrcPort: sport,
		DstPort: dport,
		Proto:   pkt.Proto(),
		VRFID:   vrf,
	}
}

// portsFromHeader extracts (src_port, dst_port) directly from a
// non-fragmented packet's transport header.
func (r *Router) portsFromHeader(pkt *Packet) (sport, dport uint16) {
	switch pkt.Proto() {
	case ProtoTCP, ProtoUDP:
		return pkt.SrcPort(), pkt.DstPort()
	case ProtoICMP:
		icmpType, id := pkt.ICMPTypeAndID()
		return ICMPKeyPorts(icmpType, id)
	default:
		return 0, 0
	}
}

// InetInput is the classifier's top-level entry point: it resolves the
// packet's transport ports (directly, or via the
// fragment cache for a non-head fragment), classifies via parse, and
// dispatches to forward, trap, or lookup.
func (r *Router) InetInput(ctx context.Context, vrf uint16, pkt *Packet, proto uint8, fmd *ForwardingMD) {
	if pkt.ToMe {
		if err := r.collab.IP.Receive(ctx, pkt, fmd); err != nil {
			r.log.Warn("receive failed", "err", err)
		}
		return
	}

	var (
		sport, dport uint16
		haveKey      = true
	)

	if pkt.TransportHeaderValid() {
		sport, dport = r.portsFromHeader(pkt)
	} else {
		res, _ := r.parse(pkt, nil)
		if res == ClassifyLookup {
			rec, ok := r.collab.Frags.Get(vrf, pkt.SrcIP(), pkt.DstIP(), pkt.Identification())
			if !ok {
				r.free(pkt, DropFragments)
				return
			}
			sport, dport = rec.SrcPort, rec.DstPort
			if pkt.IsFragmentTail() {
				r.collab.Frags.Del(vrf, pkt.SrcIP(), pkt.DstIP(), pkt.Identification())
			}
		} else {
			haveKey = false
		}
	}

	if !haveKey {
		r.forward(ctx, vrf, pkt, proto, fmd)
		return
	}

	key := r.buildKey(vrf, pkt, sport, dport)
	res, trapReason := r.parse(pkt, &key)
	if res == ClassifyLookup && pkt.IsFragmentHead() {
		r.collab.Frags.Add(vrf, pkt.SrcIP(), pkt.DstIP(), pkt.Identification(),
			FragmentRecord{SrcPort: key.SrcPort, DstPort: key.DstPort})
	}

	switch res {
	case ClassifyBypass:
		r.forward(ctx, vrf, pkt, proto, fmd)
	case ClassifyTrap:
		r.trap(pkt, vrf, trapReason, 0)
	case ClassifyLookup:
		r.lookup(ctx, key, pkt, proto, fmd)
	}
}

// lookup is the post-classification path: find the entry, or gate
// and allocate one, then hand off to the action engine.
func (r *Router) lookup(ctx context.Context, key Key, pkt *Packet, proto uint8, fmd *ForwardingMD) {
	pkt.FlowSet = true

	if e, idx := r.table.Find(key); e != nil {
		r.Apply(ctx, e, idx, pkt, proto, fmd)
		return
	}

	if r.UnresolvedHolds() >= uint64(r.cfg.MaxHold) {
		r.free(pkt, DropFlowUnusable)
		return
	}

	e, idx := r.table.FindFree(key)
	if e == nil {
		r.free(pkt, DropFlowTableFull)
		return
	}

	r.setHold(e)
	r.Apply(ctx, e, idx, pkt, proto, fmd)
}
