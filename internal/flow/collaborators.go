// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import "context"

// SourceValidation is the result of a next-hop's source-address check,
// NH.validate_src's three-way outcome.
type SourceValidation int

const (
	SourceOK SourceValidation = iota
	SourceInvalid
	SourceMismatch
)

// NextHop is the opaque forwarding decision record attached to an entry or
// a packet. The core never interprets its contents beyond the index it was
// resolved from and the optional source-validation hook.
type NextHop interface {
	// Index is the handle this next-hop was resolved from, echoed back
	// in forwarding metadata.
	Index() uint32
	// ValidateSource reports whether pkt's source is acceptable on this
	// next-hop; a next-hop that performs no source validation returns
	// SourceOK. A non-nil error is logged by the dataplane, which still
	// acts on the returned SourceValidation.
	ValidateSource(ctx context.Context, vrf uint16, pkt *Packet, fmd *ForwardingMD) (SourceValidation, error)
}

// NextHopResolver looks up a next-hop by its opaque index, get_nexthop.
type NextHopResolver interface {
	GetNextHop(index uint32) (NextHop, bool)
}

// Fragment cache entry, fragment_get/fragment_add/fragment_del's payload.
type FragmentRecord struct {
	SrcPort uint16
	DstPort uint16
}

// FragmentCache tracks in-flight fragmented datagrams keyed by (vrf, src,
// dst, ip identification), so continuation and tail fragments can recover
// the transport ports carried only by the head fragment.
type FragmentCache interface {
	Get(vrf uint16, srcIP, dstIP uint32, ident uint16) (FragmentRecord, bool)
	Add(vrf uint16, srcIP, dstIP uint32, ident uint16, rec FragmentRecord)
	Del(vrf uint16, srcIP, dstIP uint32, ident uint16)
}

// MirrorMeta is the optional pcap-style metadata attached to a mirrored
// flow, mirror_meta_entry_set's payload.
type MirrorMeta struct {
	SrcIP   uint32
	SrcPort uint16
	VRF     uint16
	Data    []byte
}

// MirrorRegistry is the external mirror-session subsystem: acquiring a
// mirror id takes a reference, releasing drops one, and Mirror dispatches
// a copy of the packet to the session. Put with an out-of-range id is a
// no-op; the registry guards its own bounds.
type MirrorRegistry interface {
	Get(rid uint32, mirrorID uint32) bool
	Put(rid uint32, mirrorID uint32)
	Mirror(rid uint32, mirrorID uint32, pkt *Packet, fmd *ForwardingMD)
	SetMeta(index uint32, meta MirrorMeta)
	DelMeta(index uint32)
}

// TrapReason tags why a packet copy was handed to the agent.
type TrapReason int

const (
	TrapFlowMiss TrapReason = iota
	TrapECMPResolve
	TrapL3Protocols
)

func (r TrapReason) String() string {
	switch r {
	case TrapFlowMiss:
		return "FLOW_MISS"
	case TrapECMPResolve:
		return "ECMP_RESOLVE"
	case TrapL3Protocols:
		return "L3_PROTOCOLS"
	default:
		return "UNKNOWN"
	}
}

// TrapSink is the agent-facing control channel that accepts trapped
// packets. The sink takes ownership of
// pkt on every call, including when it returns an error; the core never
// retries or re-frees a trapped packet.
type TrapSink interface {
	Trap(pkt *Packet, vrf uint16, reason TrapReason, cookie *uint32) error
}

// IPStack re-enters the external IP receive/input path once a packet has
// cleared the flow core, ip_rcv/ip_input/nh_output.
type IPStack interface {
	Receive(ctx context.Context, pkt *Packet, fmd *ForwardingMD) error
	Input(ctx context.Context, vrf uint16, pkt *Packet, fmd *ForwardingMD) error
	Output(ctx context.Context, vrf uint16, pkt *Packet, nh NextHop, fmd *ForwardingMD) error
}

// DropReason tags why a packet was freed without being forwarded, traped,
// or queued.
type DropReason int

const (
	DropInvalidProtocol DropReason = iota
	DropFlowTableFull
	DropFlowQueueLimitExceeded
	DropFlowNoMemory
	DropFlowUnusable
	DropFlowNATNoRFlow
	DropInvalidNH
	DropInvalidSource
	DropActionDrop
	DropActionInvalid
	DropFragments
)

func (r DropReason) String() string {
	switch r {
	case DropInvalidProtocol:
		return "INVALID_PROTOCOL"
	case DropFlowTableFull:
		return "FLOW_TABLE_FULL"
	case DropFlowQueueLimitExceeded:
		return "FLOW_QUEUE_LIMIT_EXCEEDED"
	case DropFlowNoMemory:
		return "FLOW_NO_MEMORY"
	case DropFlowUnusable:
		return "FLOW_UNUSABLE"
	case DropFlowNATNoRFlow:
		return "FLOW_NAT_NO_RFLOW"
	case DropInvalidNH:
		return "INVALID_NH"
	case DropInvalidSource:
		return "INVALID_SOURCE"
	case DropActionDrop:
		return "ACTION_DROP"
	case DropActionInvalid:
		return "ACTION_INVALID"
	case DropFragments:
		return "FRAGMENTS"
	default:
		return "UNKNOWN"
	}
}

// PacketSink is the packet-buffer lifecycle collaborator: every packet
// handed into the core is freed exactly once along exactly one
// disposition path.
type PacketSink interface {
	Free(pkt *Packet, reason DropReason)
}

// ForwardingMD is metadata threaded alongside a packet from lookup through
// action dispatch and flush replay.
type ForwardingMD struct {
	FlowIndex      int
	ECMPNHIndex    int32
	ECMPSrcNHIndex int32
	OuterSrcIP     uint32
}
