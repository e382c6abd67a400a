// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flerr "github.com/ashoksr/vrflow/internal/errors"
	"github.com/ashoksr/vrflow/internal/flowconfig"
	"github.com/ashoksr/vrflow/internal/logging"
)

// testHarness bundles a Router with its fake collaborators, so scenario
// tests can both drive the router and inspect what its collaborators
// observed.
type testHarness struct {
	r        *Router
	nh       *FakeNextHops
	frags    *FakeFragments
	mirrors  *FakeMirrors
	traps    *FakeTrapSink
	ip       *FakeIPStack
	disposer *FakeDisposer
}

func newHarness(t *testing.T, primary, overflow int) *testHarness {
	t.Helper()
	h := &testHarness{
		nh:       NewFakeNextHops(),
		frags:    NewFakeFragments(),
		mirrors:  NewFakeMirrors(),
		traps:    NewFakeTrapSink(),
		ip:       NewFakeIPStack(),
		disposer: NewFakeDisposer(),
	}
	cfg := flowconfig.Default()
	cfg.PrimaryEntries = primary
	cfg.OverflowEntries = overflow
	cfg.NumCPU = 2

	r, err := NewRouter(1, cfg, Collaborators{
		NextHops: h.nh,
		Frags:    h.frags,
		Mirrors:  h.mirrors,
		Traps:    h.traps,
		IP:       h.ip,
		Disposer: h.disposer,
	}, cfg.NumCPU, logging.Discard(), NewMetrics(nil))
	require.NoError(t, err)
	t.Cleanup(r.Close)
	h.r = r
	return h
}

// tcpPacket builds a minimal IPv4+TCP packet with the given endpoints, long
// enough for the checksum/port accessors to operate on. The packet arrives
// on a policy-enabled interface so classification goes through the flow
// table rather than bypassing.
func tcpPacket(srcIP, dstIP uint32, srcPort, dstPort uint16) *Packet {
	data := make([]byte, 40)
	data[0] = 0x45 // version 4, IHL 5
	data[9] = ProtoTCP
	putU32(data, 12, srcIP)
	putU32(data, 16, dstIP)
	putU16(data, 20, srcPort)
	putU16(data, 22, dstPort)
	putU16(data, 10, 0xBEEF) // IP checksum placeholder
	putU16(data, 36, 0xCAFE) // TCP checksum placeholder
	return &Packet{Data: data, EthProto: EthProtoIPv4, PolicyEnabled: true}
}

func putU32(b []byte, off int, v uint32) {
	b[off] = byte(v >> 24)
	b[off+1] = byte(v >> 16)
	b[off+2] = byte(v >> 8)
	b[off+3] = byte(v)
}

func putU16(b []byte, off int, v uint16) {
	b[off] = byte(v >> 8)
	b[off+1] = byte(v)
}

const (
	ipA = 0x0A000001 // 10.0.0.1
	ipB = 0x0A000002 // 10.0.0.2
)

// Miss then trap.
func TestInetInput_MissAllocatesHoldsAndTraps(t *testing.T) {
	h := newHarness(t, 512, 64)
	pkt := tcpPacket(ipA, ipB, 1000, 80)
	var fmd ForwardingMD

	h.r.InetInput(context.Background(), 1, pkt, ProtoTCP, &fmd)

	require.Len(t, h.traps.Trapped, 1)
	assert.Equal(t, TrapFlowMiss, h.traps.Trapped[0].Reason)

	key := Key{SrcIP: ipA, DstIP: ipB, SrcPort: 1000, DstPort: 80, Proto: ProtoTCP, VRFID: 1}
	e, idx := h.r.table.Find(key)
	require.NotNil(t, e)
	assert.Equal(t, ActionHold, e.Action())
	assert.Equal(t, 1, e.HoldLen())
	assert.Equal(t, uint32(*h.traps.Trapped[0].Cookie), uint32(idx))
}

// Queue overflow: packets 2 and 3 queue, packet 4 drops
// FLOW_QUEUE_LIMIT_EXCEEDED, only one trap across the whole sequence.
func TestInetInput_QueueOverflow(t *testing.T) {
	h := newHarness(t, 512, 64)
	var fmd ForwardingMD
	for i := 0; i < 4; i++ {
		pkt := tcpPacket(ipA, ipB, 1000, 80)
		h.r.InetInput(context.Background(), 1, pkt, ProtoTCP, &fmd)
	}

	key := Key{SrcIP: ipA, DstIP: ipB, SrcPort: 1000, DstPort: 80, Proto: ProtoTCP, VRFID: 1}
	e, _ := h.r.table.Find(key)
	require.NotNil(t, e)
	assert.Equal(t, MaxQueue, e.HoldLen())

	require.Len(t, h.traps.Trapped, 1)
	require.Len(t, h.disposer.Freed, 1)
	assert.Equal(t, DropFlowQueueLimitExceeded, h.disposer.Freed[0].Reason)
}

// Agent resolves with a forward action: the scheduled flush drains
// every queued packet through the forward path.
func TestFlowSet_ForwardDrainsHoldQueue(t *testing.T) {
	h := newHarness(t, 512, 64)
	var fmd ForwardingMD
	for i := 0; i < 3; i++ {
		pkt := tcpPacket(ipA, ipB, 1000, 80)
		h.r.InetInput(context.Background(), 1, pkt, ProtoTCP, &fmd)
	}

	key := Key{SrcIP: ipA, DstIP: ipB, SrcPort: 1000, DstPort: 80, Proto: ProtoTCP, VRFID: 1}
	e, idx := h.r.table.Find(key)
	require.NotNil(t, e)
	assert.Equal(t, 3, e.HoldLen())

	h.nh.Set(7, NewFakeNextHop(7, SourceOK))
	before := h.r.UnresolvedHolds()

	resp := h.r.ProcessRequest(&Request{
		Op: OpFlowSet, Index: idx,
		SrcIP: ipA, DstIP: ipB, SrcPort: 1000, DstPort: 80, Proto: ProtoTCP, VRF: 1,
		Action: ActionForward, Flags: FlagActive,
		SrcNHIndex: 7, ECMPNHIndex: NoECMPIndex,
	})
	require.Equal(t, CodeSuccess, resp.Code)
	assert.Equal(t, before-1, h.r.UnresolvedHolds())

	h.r.worker.Wait()

	assert.Equal(t, 0, e.HoldLen())
	assert.Len(t, h.ip.InputCall, 3)
}

// NAT rewrite with all four flags set rewrites the packet to the
// reverse flow's endpoints and recomputes both checksums incrementally.
func TestNAT_RewritesFromReverseKey(t *testing.T) {
	h := newHarness(t, 512, 64)
	h.nh.Set(1, NewFakeNextHop(1, SourceOK))

	fwdKey := Key{SrcIP: ipA, DstIP: ipB, SrcPort: 100, DstPort: 200, Proto: ProtoTCP, VRFID: 1}
	revKey := Key{SrcIP: 0x0A0000FE, DstIP: 0x0A0000FD, SrcPort: 300, DstPort: 400, Proto: ProtoTCP, VRFID: 1}

	fe, fIdx := h.r.table.FindFree(fwdKey)
	require.NotNil(t, fe)
	re, rIdx := h.r.table.FindFree(revKey)
	require.NotNil(t, re)

	fe.RFlow.Store(int32(rIdx))
	fe.SrcNHIndex.Store(1)
	fe.SetFlags(FlagActive | FlagSNAT | FlagDNAT | FlagSPAT | FlagDPAT | FlagRFlowValid)
	fe.SetAction(ActionNAT)

	pkt := tcpPacket(ipA, ipB, 100, 200)
	var fmd ForwardingMD
	h.r.Apply(context.Background(), fe, fIdx, pkt, ProtoTCP, &fmd)

	assert.Equal(t, revKey.DstIP, pkt.SrcIP())
	assert.Equal(t, revKey.SrcIP, pkt.DstIP())
	assert.Equal(t, revKey.DstPort, pkt.SrcPort())
	assert.Equal(t, revKey.SrcPort, pkt.DstPort())
	require.Len(t, h.ip.InputCall, 1)
}

// NAT on a fragment continuation rewrites IP addresses and the IP checksum
// but must not touch the transport header or its checksum: a continuation
// fragment carries no transport header at all, so writing to where one
// would be corrupts the fragment's payload.
func TestNAT_FragmentContinuationSkipsTransportRewrite(t *testing.T) {
	h := newHarness(t, 512, 64)
	h.nh.Set(1, NewFakeNextHop(1, SourceOK))

	fwdKey := Key{SrcIP: ipA, DstIP: ipB, SrcPort: 100, DstPort: 200, Proto: ProtoTCP, VRFID: 1}
	revKey := Key{SrcIP: 0x0A0000FE, DstIP: 0x0A0000FD, SrcPort: 300, DstPort: 400, Proto: ProtoTCP, VRFID: 1}

	fe, fIdx := h.r.table.FindFree(fwdKey)
	require.NotNil(t, fe)
	re, rIdx := h.r.table.FindFree(revKey)
	require.NotNil(t, re)

	fe.RFlow.Store(int32(rIdx))
	fe.SrcNHIndex.Store(1)
	fe.SetFlags(FlagActive | FlagSNAT | FlagDNAT | FlagSPAT | FlagDPAT | FlagRFlowValid)
	fe.SetAction(ActionNAT)

	pkt := tcpPacket(ipA, ipB, 100, 200)
	// Fragment offset nonzero, more-fragments clear: a tail fragment, which
	// like a continuation carries no transport header. The bytes at the
	// would-be transport-header offset are arbitrary payload, not a TCP
	// header, and must survive untouched.
	putU16(pkt.Data, 6, 200) // fragment offset 200, MF clear -> tail-like continuation
	payloadBefore := append([]byte(nil), pkt.Data[20:]...)

	var fmd ForwardingMD
	h.r.Apply(context.Background(), fe, fIdx, pkt, ProtoTCP, &fmd)

	assert.Equal(t, revKey.DstIP, pkt.SrcIP())
	assert.Equal(t, revKey.SrcIP, pkt.DstIP())
	assert.Equal(t, payloadBefore, pkt.Data[20:], "continuation fragment payload must not be rewritten as a transport header")
}

// Backpressure gate: once unresolved holds reach MaxHold, a
// fresh-key packet is dropped FLOW_UNUSABLE and no entry is allocated.
func TestLookup_BackpressureGate(t *testing.T) {
	h := newHarness(t, 512, 64)
	h.r.cfg.MaxHold = 2
	for cpu := range h.r.holdCount {
		h.r.holdCount[cpu].Store(0)
	}
	h.r.holdCount[0].Store(2)

	pkt := tcpPacket(ipA, ipB, 9000, 9001)
	var fmd ForwardingMD
	h.r.InetInput(context.Background(), 1, pkt, ProtoTCP, &fmd)

	require.Len(t, h.disposer.Freed, 1)
	assert.Equal(t, DropFlowUnusable, h.disposer.Freed[0].Reason)

	key := Key{SrcIP: ipA, DstIP: ipB, SrcPort: 9000, DstPort: 9001, Proto: ProtoTCP, VRFID: 1}
	e, _ := h.r.table.Find(key)
	assert.Nil(t, e)
}

// Broadcast bypass: a limited-broadcast destination classifies as
// BYPASS, is marked multicast, and never touches the table.
func TestInetInput_BroadcastBypasses(t *testing.T) {
	h := newHarness(t, 512, 64)
	pkt := tcpPacket(ipA, 0xFFFFFFFF, 1000, 80)
	var fmd ForwardingMD

	h.r.InetInput(context.Background(), 1, pkt, ProtoTCP, &fmd)

	assert.True(t, pkt.Multicast)
	assert.Empty(t, h.traps.Trapped)
	require.Len(t, h.ip.InputCall, 1)

	key := Key{SrcIP: ipA, DstIP: 0xFFFFFFFF, SrcPort: 1000, DstPort: 80, Proto: ProtoTCP, VRFID: 1}
	e, _ := h.r.table.Find(key)
	assert.Nil(t, e)
}

func TestFlowDelete_RoundTripsToFreeSlot(t *testing.T) {
	h := newHarness(t, 512, 64)
	key := Key{SrcIP: ipA, DstIP: ipB, SrcPort: 1, DstPort: 2, Proto: ProtoTCP, VRFID: 1}

	e, idx := h.r.table.FindFree(key)
	require.NotNil(t, e)
	e.SetAction(ActionDrop)

	resp := h.r.ProcessRequest(&Request{
		Op: OpFlowSet, Index: idx,
		SrcIP: key.SrcIP, DstIP: key.DstIP, SrcPort: key.SrcPort, DstPort: key.DstPort,
		Proto: key.Proto, VRF: key.VRFID,
		Flags: 0, // ACTIVE clear: delete
	})
	require.Equal(t, CodeSuccess, resp.Code)
	h.r.worker.Wait()

	assert.False(t, e.IsActive())
	assert.Equal(t, NoRFlow, e.RFlow.Load())
	assert.Equal(t, MaxMirrorIndices, e.MirrorID.Load())
}

func TestFlowSet_KeyMismatchRejected(t *testing.T) {
	h := newHarness(t, 512, 64)
	key := Key{SrcIP: ipA, DstIP: ipB, SrcPort: 1, DstPort: 2, Proto: ProtoTCP, VRFID: 1}
	_, idx := h.r.table.FindFree(key)

	resp := h.r.ProcessRequest(&Request{
		Op: OpFlowSet, Index: idx,
		SrcIP: ipB, DstIP: ipA, SrcPort: 1, DstPort: 2, Proto: ProtoTCP, VRF: 1,
		Action: ActionDrop, Flags: FlagActive, SrcNHIndex: 1,
	})
	assert.Equal(t, CodeBadFileDescriptor, resp.Code)
}

func TestFlowSet_RequiresResolvableNextHop(t *testing.T) {
	h := newHarness(t, 512, 64)
	resp := h.r.ProcessRequest(&Request{
		Op: OpFlowSet, Index: -1,
		SrcIP: ipA, DstIP: ipB, SrcPort: 1, DstPort: 2, Proto: ProtoTCP, VRF: 1,
		Action: ActionForward, Flags: FlagActive, SrcNHIndex: 42,
	})
	assert.Equal(t, CodeInvalidArgument, resp.Code)
}

func TestTableGet_ReportsByteSizes(t *testing.T) {
	h := newHarness(t, 512, 64)
	resp := h.r.ProcessRequest(&Request{Op: OpTableGet})
	assert.Equal(t, CodeSuccess, resp.Code)
	assert.Equal(t, uint64(512*EntrySize), resp.TableSize)
	assert.Equal(t, uint64(64*EntrySize), resp.OverflowSize)
}

func TestRouter_RejectsIncompleteCollaborators(t *testing.T) {
	_, err := NewRouter(1, flowconfig.Default(), Collaborators{}, 1, logging.Discard(), nil)
	require.Error(t, err)
	assert.Equal(t, flerr.KindInternal, flerr.GetKind(err))
}

func TestRouter_BadTableSizeCarriesRouterID(t *testing.T) {
	cfg := flowconfig.Default()
	cfg.PrimaryEntries = 10 // not a multiple of Bucket
	h := Collaborators{
		NextHops: NewFakeNextHops(),
		Frags:    NewFakeFragments(),
		Mirrors:  NewFakeMirrors(),
		Traps:    NewFakeTrapSink(),
		IP:       NewFakeIPStack(),
		Disposer: NewFakeDisposer(),
	}

	_, err := NewRouter(7, cfg, h, 1, logging.Discard(), nil)
	require.Error(t, err)
	assert.Equal(t, flerr.KindValidation, flerr.GetKind(err))
	assert.Equal(t, uint32(7), flerr.Attributes(err)["router"])
}
