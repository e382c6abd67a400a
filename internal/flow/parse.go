// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import (
	"fmt"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// DecodeEthernet strips the Ethernet framing off a raw wire frame and
// returns the Packet view the rest of the core operates on, starting at
// the IP header. It is the only place in the core that reaches for
// gopacket; once a Packet exists, every accessor works on raw offsets into
// an already-classified buffer.
func DecodeEthernet(frame []byte) (*Packet, error) {
	decoded := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)

	ethLayer := decoded.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return nil, fmt.Errorf("flow: frame has no ethernet header")
	}
	eth := ethLayer.(*layers.Ethernet)

	payload := ethLayer.LayerPayload()
	data := make([]byte, len(payload))
	copy(data, payload)

	return &Packet{
		Data:     data,
		EthProto: uint16(eth.EthernetType),
	}, nil
}
