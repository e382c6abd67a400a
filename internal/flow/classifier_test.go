// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func udpPacket(srcIP, dstIP uint32, srcPort, dstPort uint16) *Packet {
	data := make([]byte, 36)
	data[0] = 0x45
	data[9] = ProtoUDP
	putU32(data, 12, srcIP)
	putU32(data, 16, dstIP)
	putU16(data, 20, srcPort)
	putU16(data, 22, dstPort)
	return &Packet{Data: data, EthProto: EthProtoIPv4}
}

func TestInetInput_DHCPForcesTrap(t *testing.T) {
	h := newHarness(t, 512, 64)
	pkt := udpPacket(ipA, ipB, 68, 67) // client -> server
	var fmd ForwardingMD

	h.r.InetInput(context.Background(), 1, pkt, ProtoUDP, &fmd)

	require.Len(t, h.traps.Trapped, 1)
	assert.Equal(t, TrapL3Protocols, h.traps.Trapped[0].Reason)
	assert.Empty(t, h.disposer.Freed)
}

func TestInetInput_ToMeBypassesClassification(t *testing.T) {
	h := newHarness(t, 512, 64)
	pkt := tcpPacket(ipA, ipB, 1, 2)
	pkt.ToMe = true
	var fmd ForwardingMD

	h.r.InetInput(context.Background(), 1, pkt, ProtoTCP, &fmd)

	assert.Len(t, h.ip.Received, 1)
	assert.Empty(t, h.traps.Trapped)
}

func TestInetInput_FragmentContinuationWithoutCacheHitDrops(t *testing.T) {
	h := newHarness(t, 512, 64)
	pkt := udpPacket(ipA, ipB, 1000, 2000)
	// Fragment offset nonzero, more-fragments set: a continuation, no
	// transport header present.
	putU16(pkt.Data, 6, 0x2001)
	pkt.PolicyEnabled = true
	var fmd ForwardingMD

	h.r.InetInput(context.Background(), 1, pkt, ProtoUDP, &fmd)

	require.Len(t, h.disposer.Freed, 1)
	assert.Equal(t, DropFragments, h.disposer.Freed[0].Reason)
}

func TestInetInput_FragmentHeadPublishesPortsForTail(t *testing.T) {
	h := newHarness(t, 512, 64)

	head := udpPacket(ipA, ipB, 1111, 2222)
	putU16(head.Data, 6, 0x2000) // offset 0, MF set: head
	head.PolicyEnabled = true
	var fmd ForwardingMD
	h.r.InetInput(context.Background(), 1, head, ProtoUDP, &fmd)

	rec, ok := h.frags.Get(1, ipA, ipB, head.Identification())
	require.True(t, ok)
	assert.Equal(t, uint16(1111), rec.SrcPort)
	assert.Equal(t, uint16(2222), rec.DstPort)

	tail := udpPacket(ipA, ipB, 0, 0)
	putU16(tail.Data, 6, 0x0008) // offset nonzero, MF clear: tail
	tail.PolicyEnabled = true
	h.r.InetInput(context.Background(), 1, tail, ProtoUDP, &fmd)

	_, ok = h.frags.Get(1, ipA, ipB, tail.Identification())
	assert.False(t, ok, "tail fragment must delete the cache entry")

	key := Key{SrcIP: ipA, DstIP: ipB, SrcPort: 1111, DstPort: 2222, Proto: ProtoUDP, VRFID: 1}
	e, _ := h.r.table.Find(key)
	require.NotNil(t, e, "tail fragment should have recovered ports and hit the flow table")
}

func TestIsBroadcastOrMulticast(t *testing.T) {
	assert.True(t, isBroadcastOrMulticast(0xFFFFFFFF))
	assert.True(t, isBroadcastOrMulticast(0xE0000001)) // 224.0.0.1
	assert.False(t, isBroadcastOrMulticast(0x0A000001))
}
