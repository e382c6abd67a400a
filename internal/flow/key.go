// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import (
	"encoding/binary"
	"fmt"
)

// Well-known ICMP port conventions used by Key derivation. Echo/echo-reply
// pairs share a key when reversed by folding the identifier into SrcPort and
// a sentinel reply code into DstPort; every other ICMP type carries its type
// in DstPort with SrcPort zeroed.
const (
	ICMPTypeEchoReply = 0
	ICMPTypeEchoReq   = 8

	// ICMPEchoReplyPort is the DstPort sentinel stamped into the key for
	// both the echo request and echo reply directions.
	ICMPEchoReplyPort = ICMPTypeEchoReply
)

// IP protocol numbers the key derivation and NAT path care about.
const (
	ProtoICMP = 1
	ProtoTCP  = 6
	ProtoUDP  = 17
)

// KeySize is the byte-comparable, on-wire size of Key: two 32-bit
// addresses, two 16-bit ports, proto byte, explicit zero-padding byte,
// VRF id.
const KeySize = 4 + 4 + 2 + 2 + 1 + 1 + 2

// Key is the canonical 5-tuple flow key, scoped to a VRF. Zero is explicit
// padding and must always be zero so two keys can be compared byte-for-byte.
type Key struct {
	SrcIP    uint32
	DstIP    uint32
	SrcPort  uint16
	DstPort  uint16
	Proto    uint8
	Zero     uint8
	VRFID    uint16
}

// Bytes renders the key into its canonical byte form for hashing and
// byte-wise equality, in a fixed field order so two equal keys always
// serialize identically regardless of struct padding on any platform.
func (k Key) Bytes() [KeySize]byte {
	var b [KeySize]byte
	binary.BigEndian.PutUint32(b[0:4], k.SrcIP)
	binary.BigEndian.PutUint32(b[4:8], k.DstIP)
	binary.BigEndian.PutUint16(b[8:10], k.SrcPort)
	binary.BigEndian.PutUint16(b[10:12], k.DstPort)
	b[12] = k.Proto
	b[13] = 0 // Zero is always written as zero, regardless of k.Zero
	binary.BigEndian.PutUint16(b[14:16], k.VRFID)
	return b
}

// Equal reports whether k and other are byte-identical keys.
func (k Key) Equal(other Key) bool {
	return k.Bytes() == other.Bytes()
}

// Reverse returns the key for the opposite direction of the same flow,
// within the same VRF and protocol.
func (k Key) Reverse() Key {
	return Key{
		SrcIP:   k.DstIP,
		DstIP:   k.SrcIP,
		SrcPort: k.DstPort,
		DstPort: k.SrcPort,
		Proto:   k.Proto,
		VRFID:   k.VRFID,
	}
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d -> %s:%d proto=%d vrf=%d",
		ipString(k.SrcIP), k.SrcPort, ipString(k.DstIP), k.DstPort, k.Proto, k.VRFID)
}

func ipString(ip uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(ip>>24), byte(ip>>16), byte(ip>>8), byte(ip))
}

// ICMPKeyPorts derives src_port/dst_port for an ICMP packet per spec: echo
// and echo-reply share a key by folding the identifier into SrcPort and a
// fixed sentinel into DstPort; every other ICMP type carries its type code
// in DstPort with SrcPort zeroed.
func ICMPKeyPorts(icmpType uint8, identifier uint16) (srcPort, dstPort uint16) {
	switch icmpType {
	case ICMPTypeEchoReq, ICMPTypeEchoReply:
		return identifier, ICMPEchoReplyPort
	default:
		return 0, uint16(icmpType)
	}
}
