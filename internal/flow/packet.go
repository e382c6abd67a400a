// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import "encoding/binary"

const (
	ipVersionIHLOffset  = 0
	ipTotalLenOffset    = 2
	ipIdentOffset       = 4
	ipFlagsFragOffset   = 6
	ipProtoOffset       = 9
	ipChecksumOffset    = 10
	ipSrcOffset         = 12
	ipDstOffset         = 16
	ipHeaderMinLen      = 20
	ipFlagMoreFragments = 0x2000
	ipFragOffsetMask    = 0x1FFF
)

// Packet is a mutable view over a raw IPv4 datagram held for the duration
// of one dataplane pass. Data starts at the IP header; Ethernet framing,
// if any, is stripped by the decode step in parse.go before a Packet is
// built.
type Packet struct {
	Data []byte

	// EthProto is the Ethernet payload type the frame arrived with; the
	// action engine drops non-IPv4 payloads at the forward step.
	EthProto uint16

	// Multicast is stamped by parse() when the destination is
	// broadcast/multicast.
	Multicast bool
	// FlowSet is sticky once a flow classification has run for this
	// packet, so re-entrant calls bypass unconditionally.
	FlowSet bool
	// ToMe marks a packet the receiving interface addressed to the
	// router itself: InetInput bypasses classification entirely.
	ToMe bool
	// PolicyEnabled carries the receiving interface's policy bit.
	PolicyEnabled bool
	// FlowGet is a one-off request for a lookup regardless of policy
	// state.
	FlowGet bool

	// NH is the resolved next-hop, if any, already attached to the
	// packet before the action engine runs (vp_nh).
	NH NextHop
}

// EthProtoIPv4 is the Ethernet payload type value for IPv4.
const EthProtoIPv4 uint16 = 0x0800

// Length returns ip_total_length.
func (p *Packet) Length() uint16 {
	return binary.BigEndian.Uint16(p.Data[ipTotalLenOffset : ipTotalLenOffset+2])
}

// ihl returns the IP header length in bytes.
func (p *Packet) ihl() int {
	return int(p.Data[ipVersionIHLOffset]&0x0F) * 4
}

// Proto returns the IP protocol number.
func (p *Packet) Proto() uint8 {
	return p.Data[ipProtoOffset]
}

// Identification returns the IP identification field, used as the
// fragment-cache key.
func (p *Packet) Identification() uint16 {
	return binary.BigEndian.Uint16(p.Data[ipIdentOffset : ipIdentOffset+2])
}

// moreFragments and fragOffset decode the flags/fragment-offset word.
func (p *Packet) flagsFrag() uint16 {
	return binary.BigEndian.Uint16(p.Data[ipFlagsFragOffset : ipFlagsFragOffset+2])
}

func (p *Packet) moreFragments() bool {
	return p.flagsFrag()&ipFlagMoreFragments != 0
}

func (p *Packet) fragOffset() uint16 {
	return p.flagsFrag() & ipFragOffsetMask
}

// IsFragmentHead reports whether this is the first fragment of a
// fragmented datagram (offset zero, MF set).
func (p *Packet) IsFragmentHead() bool {
	return p.fragOffset() == 0 && p.moreFragments()
}

// IsFragmentTail reports whether this is the last fragment (MF clear,
// offset nonzero).
func (p *Packet) IsFragmentTail() bool {
	return p.fragOffset() != 0 && !p.moreFragments()
}

// TransportHeaderValid reports whether the transport header is present in
// this packet: true for an unfragmented datagram or the head fragment,
// false for a continuation or tail fragment.
func (p *Packet) TransportHeaderValid() bool {
	return p.fragOffset() == 0
}

// SrcIP returns the source address.
func (p *Packet) SrcIP() uint32 {
	return binary.BigEndian.Uint32(p.Data[ipSrcOffset : ipSrcOffset+4])
}

// DstIP returns the destination address.
func (p *Packet) DstIP() uint32 {
	return binary.BigEndian.Uint32(p.Data[ipDstOffset : ipDstOffset+4])
}

// SetSrcIP overwrites the source address in place.
func (p *Packet) SetSrcIP(ip uint32) {
	binary.BigEndian.PutUint32(p.Data[ipSrcOffset:ipSrcOffset+4], ip)
}

// SetDstIP overwrites the destination address in place.
func (p *Packet) SetDstIP(ip uint32) {
	binary.BigEndian.PutUint32(p.Data[ipDstOffset:ipDstOffset+4], ip)
}

// IPChecksum returns the stored IP header checksum.
func (p *Packet) IPChecksum() uint16 {
	return binary.BigEndian.Uint16(p.Data[ipChecksumOffset : ipChecksumOffset+2])
}

// SetIPChecksum overwrites the stored IP header checksum.
func (p *Packet) SetIPChecksum(c uint16) {
	binary.BigEndian.PutUint16(p.Data[ipChecksumOffset:ipChecksumOffset+2], c)
}

// transportOffset is the byte offset of the transport header, immediately
// following the (options-inclusive) IP header.
func (p *Packet) transportOffset() int {
	return p.ihl()
}

// SrcPort/DstPort read the first two 16-bit words after the IP header, the
// layout shared by TCP and UDP. Callers must have verified
// TransportHeaderValid first.
func (p *Packet) SrcPort() uint16 {
	o := p.transportOffset()
	return binary.BigEndian.Uint16(p.Data[o : o+2])
}

func (p *Packet) DstPort() uint16 {
	o := p.transportOffset() + 2
	return binary.BigEndian.Uint16(p.Data[o : o+2])
}

func (p *Packet) SetSrcPort(port uint16) {
	o := p.transportOffset()
	binary.BigEndian.PutUint16(p.Data[o:o+2], port)
}

func (p *Packet) SetDstPort(port uint16) {
	o := p.transportOffset() + 2
	binary.BigEndian.PutUint16(p.Data[o:o+2], port)
}

// ICMPTypeAndID reads the ICMP type byte and, for echo/echo-reply, the
// identifier field.
func (p *Packet) ICMPTypeAndID() (icmpType uint8, identifier uint16) {
	o := p.transportOffset()
	icmpType = p.Data[o]
	identifier = binary.BigEndian.Uint16(p.Data[o+4 : o+6])
	return
}

// transportChecksumOffset returns the byte offset of the transport-layer
// checksum field for TCP (offset 16) or UDP (offset 6); other protocols
// have no transport checksum to fix up.
func (p *Packet) transportChecksumOffset() (offset int, ok bool) {
	switch p.Proto() {
	case ProtoTCP:
		return p.transportOffset() + 16, true
	case ProtoUDP:
		return p.transportOffset() + 6, true
	default:
		return 0, false
	}
}

// TransportChecksum returns the transport-layer checksum, if the protocol
// carries one.
func (p *Packet) TransportChecksum() (uint16, bool) {
	o, ok := p.transportChecksumOffset()
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint16(p.Data[o : o+2]), true
}

// SetTransportChecksum overwrites the transport-layer checksum, a no-op if
// the protocol has none.
func (p *Packet) SetTransportChecksum(c uint16) {
	o, ok := p.transportChecksumOffset()
	if !ok {
		return
	}
	binary.BigEndian.PutUint16(p.Data[o:o+2], c)
}

// Clone returns a deep copy of the packet, used to build the trap clone
// handed to the agent without aliasing the original's buffer.
func (p *Packet) Clone() *Packet {
	cp := *p
	cp.Data = make([]byte, len(p.Data))
	copy(cp.Data, p.Data)
	return &cp
}
