// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import (
	"context"
	"fmt"
	"sync"
)

// This file collects small in-memory collaborator implementations used by
// tests and by the standalone simulator in cmd/vrflow-sim, where there is
// no real next-hop table, mirror registry, or IP stack to call into.

// FakeNextHop is a NextHop with a canned validation response.
type FakeNextHop struct {
	index      uint32
	validation SourceValidation
}

func NewFakeNextHop(index uint32, validation SourceValidation) *FakeNextHop {
	return &FakeNextHop{index: index, validation: validation}
}

func (n *FakeNextHop) Index() uint32 { return n.index }

func (n *FakeNextHop) ValidateSource(ctx context.Context, vrf uint16, pkt *Packet, fmd *ForwardingMD) (SourceValidation, error) {
	return n.validation, nil
}

// FakeNextHops is an in-memory NextHopResolver backed by a map.
type FakeNextHops struct {
	mu    sync.RWMutex
	table map[uint32]NextHop
}

func NewFakeNextHops() *FakeNextHops {
	return &FakeNextHops{table: make(map[uint32]NextHop)}
}

func (f *FakeNextHops) Set(index uint32, nh NextHop) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.table[index] = nh
}

func (f *FakeNextHops) GetNextHop(index uint32) (NextHop, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	nh, ok := f.table[index]
	return nh, ok
}

// fragKey identifies one in-flight fragmented datagram.
type fragKey struct {
	vrf    uint16
	srcIP  uint32
	dstIP  uint32
	ident  uint16
}

// FakeFragments is an in-memory FragmentCache.
type FakeFragments struct {
	mu    sync.Mutex
	table map[fragKey]FragmentRecord
}

func NewFakeFragments() *FakeFragments {
	return &FakeFragments{table: make(map[fragKey]FragmentRecord)}
}

func (f *FakeFragments) key(vrf uint16, srcIP, dstIP uint32, ident uint16) fragKey {
	return fragKey{vrf: vrf, srcIP: srcIP, dstIP: dstIP, ident: ident}
}

func (f *FakeFragments) Get(vrf uint16, srcIP, dstIP uint32, ident uint16) (FragmentRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.table[f.key(vrf, srcIP, dstIP, ident)]
	return rec, ok
}

func (f *FakeFragments) Add(vrf uint16, srcIP, dstIP uint32, ident uint16, rec FragmentRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.table[f.key(vrf, srcIP, dstIP, ident)] = rec
}

func (f *FakeFragments) Del(vrf uint16, srcIP, dstIP uint32, ident uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.table, f.key(vrf, srcIP, dstIP, ident))
}

// mirrorEntry is a refcounted fake mirror session.
type mirrorEntry struct {
	refs int
	meta *MirrorMeta
}

// FakeMirrors is an in-memory, refcounting MirrorRegistry. Dispatched
// copies are recorded rather than actually transmitted, so tests can
// assert on Sent.
type FakeMirrors struct {
	mu      sync.Mutex
	entries map[uint32]*mirrorEntry
	Sent    []MirroredPacket
}

// MirroredPacket records one Mirror dispatch for test assertions.
type MirroredPacket struct {
	MirrorID uint32
	Packet   *Packet
	FMD      ForwardingMD
}

func NewFakeMirrors() *FakeMirrors {
	return &FakeMirrors{entries: make(map[uint32]*mirrorEntry)}
}

func (m *FakeMirrors) Get(rid uint32, mirrorID uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[mirrorID]
	if !ok {
		e = &mirrorEntry{}
		m.entries[mirrorID] = e
	}
	e.refs++
	return true
}

func (m *FakeMirrors) Put(rid uint32, mirrorID uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[mirrorID]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(m.entries, mirrorID)
	}
}

func (m *FakeMirrors) Mirror(rid uint32, mirrorID uint32, pkt *Packet, fmd *ForwardingMD) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, MirroredPacket{MirrorID: mirrorID, Packet: pkt, FMD: *fmd})
}

func (m *FakeMirrors) SetMeta(index uint32, meta MirrorMeta) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[index]
	if !ok {
		e = &mirrorEntry{}
		m.entries[index] = e
	}
	e.meta = &meta
}

func (m *FakeMirrors) DelMeta(index uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[index]
	if !ok {
		return
	}
	e.meta = nil
	if e.refs <= 0 {
		delete(m.entries, index)
	}
}

// RefCount exposes the current reference count for mirrorID, for tests.
func (m *FakeMirrors) RefCount(mirrorID uint32) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[mirrorID]
	if !ok {
		return 0
	}
	return e.refs
}

// Trapped records one packet delivered to the agent.
type Trapped struct {
	Packet *Packet
	VRF    uint16
	Reason TrapReason
	Cookie *uint32
}

// FakeTrapSink is an in-memory TrapSink that records every trap.
type FakeTrapSink struct {
	mu      sync.Mutex
	Trapped []Trapped
}

func NewFakeTrapSink() *FakeTrapSink { return &FakeTrapSink{} }

func (t *FakeTrapSink) Trap(pkt *Packet, vrf uint16, reason TrapReason, cookie *uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var c *uint32
	if cookie != nil {
		v := *cookie
		c = &v
	}
	t.Trapped = append(t.Trapped, Trapped{Packet: pkt, VRF: vrf, Reason: reason, Cookie: c})
	return nil
}

// FakeIPStack is an in-memory IPStack that records calls instead of
// re-entering a real network stack.
type FakeIPStack struct {
	mu         sync.Mutex
	Received   []*Packet
	InputCall  []InputCall
	OutputCall []OutputCall
}

type InputCall struct {
	VRF    uint16
	Packet *Packet
	FMD    ForwardingMD
}

type OutputCall struct {
	VRF    uint16
	Packet *Packet
	NH     NextHop
	FMD    ForwardingMD
}

func NewFakeIPStack() *FakeIPStack { return &FakeIPStack{} }

func (s *FakeIPStack) Receive(ctx context.Context, pkt *Packet, fmd *ForwardingMD) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Received = append(s.Received, pkt)
	return nil
}

func (s *FakeIPStack) Input(ctx context.Context, vrf uint16, pkt *Packet, fmd *ForwardingMD) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InputCall = append(s.InputCall, InputCall{VRF: vrf, Packet: pkt, FMD: *fmd})
	return nil
}

func (s *FakeIPStack) Output(ctx context.Context, vrf uint16, pkt *Packet, nh NextHop, fmd *ForwardingMD) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OutputCall = append(s.OutputCall, OutputCall{VRF: vrf, Packet: pkt, NH: nh, FMD: *fmd})
	return nil
}

// Freed records one disposition for test assertions.
type Freed struct {
	Packet *Packet
	Reason DropReason
}

// FakeDisposer is an in-memory PacketSink recording every free.
type FakeDisposer struct {
	mu    sync.Mutex
	Freed []Freed
}

func NewFakeDisposer() *FakeDisposer { return &FakeDisposer{} }

func (d *FakeDisposer) Free(pkt *Packet, reason DropReason) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Freed = append(d.Freed, Freed{Packet: pkt, Reason: reason})
}

// String renders a Freed for debugging/assertion messages.
func (f Freed) String() string {
	return fmt.Sprintf("freed(%s)", f.Reason)
}
