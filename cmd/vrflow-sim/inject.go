// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"github.com/ashoksr/vrflow/internal/flow"
)

// runInject sends one synthetic TCP packet through InetInput against a
// fresh, empty router and reports the observed disposition -- a minimal
// standalone way to exercise the miss-then-trap path from the command
// line.
func runInject(configPath, srcIPStr, dstIPStr, srcPortStr, dstPortStr string) error {
	cfg := loadConfig(configPath)
	log := newLogger()

	srcIP, err := parseIPv4(srcIPStr)
	if err != nil {
		return fmt.Errorf("src-ip: %w", err)
	}
	dstIP, err := parseIPv4(dstIPStr)
	if err != nil {
		return fmt.Errorf("dst-ip: %w", err)
	}
	srcPort, err := parsePort(srcPortStr)
	if err != nil {
		return fmt.Errorf("src-port: %w", err)
	}
	dstPort, err := parsePort(dstPortStr)
	if err != nil {
		return fmt.Errorf("dst-port: %w", err)
	}

	traps := flow.NewFakeTrapSink()
	disposer := flow.NewFakeDisposer()
	collab := flow.Collaborators{
		NextHops: flow.NewFakeNextHops(),
		Frags:    flow.NewFakeFragments(),
		Mirrors:  flow.NewFakeMirrors(),
		Traps:    traps,
		IP:       flow.NewFakeIPStack(),
		Disposer: disposer,
	}

	router, err := flow.NewRouter(1, cfg, collab, cfg.NumCPU, log, flow.NewMetrics(nil))
	if err != nil {
		return fmt.Errorf("init router: %w", err)
	}
	defer router.Close()

	frame, err := buildTCPFrame(srcIP, dstIP, srcPort, dstPort)
	if err != nil {
		return fmt.Errorf("build frame: %w", err)
	}
	pkt, err := flow.DecodeEthernet(frame)
	if err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	pkt.PolicyEnabled = true

	var fmd flow.ForwardingMD
	router.InetInput(context.Background(), 1, pkt, flow.ProtoTCP, &fmd)

	fmt.Printf("trapped=%d freed=%d unresolved_holds=%d\n",
		len(traps.Trapped), len(disposer.Freed), router.UnresolvedHolds())
	return nil
}

// buildTCPFrame serializes an Ethernet+IPv4+TCP SYN with valid lengths and
// checksums, the frame shape the flow core sees off a real wire.
func buildTCPFrame(srcIP, dstIP net.IP, srcPort, dstPort uint16) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    srcIP,
		DstIP:    dstIP,
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		SYN:     true,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, tcp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func parseIPv4(s string) (net.IP, error) {
	ip := net.ParseIP(s).To4()
	if ip == nil {
		return nil, fmt.Errorf("not an IPv4 address: %q", s)
	}
	return ip, nil
}

func parsePort(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}
