// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import (
	"sync"
	"sync/atomic"
)

// Action is the disposition an Active entry applies to packets that match
// its key.
type Action int32

const (
	// ActionHold is the initial action of a newly allocated entry: queue
	// packets and wait for the agent's decision.
	ActionHold Action = iota
	ActionDrop
	ActionForward
	ActionNAT
)

func (a Action) String() string {
	switch a {
	case ActionHold:
		return "hold"
	case ActionDrop:
		return "drop"
	case ActionForward:
		return "forward"
	case ActionNAT:
		return "nat"
	default:
		return "invalid"
	}
}

// Flag bits carried in an entry's flags word.
type Flag uint32

const (
	// FlagActive marks the slot occupied. It is the only bit whose
	// false->true transition is made via compare-and-swap; every other
	// bit is a plain store guarded by the control plane's ownership of
	// the slot.
	FlagActive Flag = 1 << iota
	FlagMirror
	FlagVRFTranslate // VRFT: translate to entry.DVRF on forward/NAT
	FlagSNAT
	FlagDNAT
	FlagSPAT
	FlagDPAT
	FlagRFlowValid
	FlagTrapECMP
)

// Sentinel values used as out-of-band markers instead of optional types,
// so index/id comparisons stay plain integer compares on the fast path.
const (
	// NoRFlow marks an entry with no reverse-flow reference.
	NoRFlow int32 = -1
	// NoECMPIndex marks "no ECMP choice made yet".
	NoECMPIndex int32 = -1
	// MaxMirrorIndices is the sentinel mirror id meaning "unset"; any id
	// below this value is considered in range.
	MaxMirrorIndices uint32 = 0xFFFFFFFF

	// MaxVRFs bounds the destination VRF accepted for FlagVRFTranslate.
	MaxVRFs uint16 = 4096

	// DiagIPChecksum is the diagnostic sentinel IP checksum value that
	// suppresses incremental checksum recomputation during NAT, used by
	// test/diagnostic tooling that injects packets with a fixed checksum.
	DiagIPChecksum uint16 = 0xFFFF
)

// Stats are monotonic per-entry packet/byte counters. A 32-bit counter that
// wraps increments its _oflow companion; the pair together is the true
// 64-bit-ish count, read separately because the fast path only has a 32-bit
// atomic add available to it.
type Stats struct {
	Bytes        atomic.Uint32
	BytesOflow   atomic.Uint32
	Packets      atomic.Uint32
	PacketsOflow atomic.Uint32
}

// addBytes bumps Bytes by n, bumping BytesOflow if the fetch-add wrapped.
// The wrap test (new < n) is approximate: it can miss some wraps when n is
// small relative to the prior value. The overflow counters are advisory,
// not exact.
func (s *Stats) addBytes(n uint32) {
	if nv := s.Bytes.Add(n); nv < n {
		s.BytesOflow.Add(1)
	}
}

func (s *Stats) addPacket() {
	if nv := s.Packets.Add(1); nv == 0 {
		s.PacketsOflow.Add(1)
	}
}

// holdNode is one deferred packet awaiting the agent's decision.
type holdNode struct {
	packet     HeldPacket
	proto      uint8
	outerSrcIP uint32
	next       *holdNode
}

// HeldPacket is the opaque payload queued while an entry is in Hold. The
// core never interprets it; it is replayed verbatim to the action engine
// once the entry transitions to a concrete action.
type HeldPacket any

// Entry is one slot of the flow table. Inactive (ACTIVE clear) entries are
// free; Active entries carry the fields below. All fields besides flags,
// stats and the hold list (appended by any dataplane packet under holdMu)
// are written only by the slot's claimer (on insert), the control plane
// (on update) or the flush reset; the dataplane treats them as read-mostly and tolerates
// observing a partially updated entry mid-control-update.
type Entry struct {
	flags atomic.Uint32

	Key Key

	action atomic.Int32

	RFlow       atomic.Int32 // signed index of the reverse entry, or NoRFlow
	DVRF        atomic.Uint32
	SrcNHIndex  atomic.Uint32
	ECMPNHIndex atomic.Int32
	MirrorID    atomic.Uint32
	SecMirrorID atomic.Uint32

	Stats Stats

	holdMu   sync.Mutex
	holdHead *holdNode
	holdLen  int
}

// Flags returns the current flags word.
func (e *Entry) Flags() Flag {
	return Flag(e.flags.Load())
}

// Has reports whether all bits of f are set.
func (e *Entry) Has(f Flag) bool {
	return Flag(e.flags.Load())&f == f
}

// IsActive reports whether the slot is currently occupied.
func (e *Entry) IsActive() bool {
	return e.Has(FlagActive)
}

// SetFlags replaces the flags word wholesale. Used by the control plane,
// which owns the slot for the duration of an update; the dataplane never
// calls this: the flags word is written only by the control plane or by
// the owning slot-claimer.
func (e *Entry) SetFlags(f Flag) {
	e.flags.Store(uint32(f))
}

// Action returns the entry's current disposition.
func (e *Entry) Action() Action {
	return Action(e.action.Load())
}

// SetAction replaces the entry's disposition.
func (e *Entry) SetAction(a Action) {
	e.action.Store(int32(a))
}

// claim attempts the single correctness primitive of the table: the
// false->true transition of FlagActive, a CAS from the loaded non-ACTIVE
// flags word to exactly ACTIVE. Every other bit is discarded on success --
// safe only because reset always zeroes flags before a slot is published
// as free.
func (e *Entry) claim() bool {
	cur := e.flags.Load()
	if cur&uint32(FlagActive) != 0 {
		return false
	}
	return e.flags.CompareAndSwap(cur&^uint32(FlagActive), uint32(FlagActive))
}

// initClaimed installs the just-won key and the sentinel scalars a freshly
// claimed slot must carry. Called only by the
// CAS winner, strictly after claim() succeeds and before any reader can
// have observed ACTIVE for this generation of the slot (release ordering is
// provided by the CAS store itself: the key and sentinels below are
// ordinary stores that happened-before the flags CAS in program order on
// this goroutine, and any reader that observes FlagActive via an atomic
// load has synchronized-with this goroutine's CAS).
func (e *Entry) initClaimed(key Key) {
	e.Key = key
	e.RFlow.Store(NoRFlow)
	e.ECMPNHIndex.Store(NoECMPIndex)
	e.MirrorID.Store(MaxMirrorIndices)
	e.SecMirrorID.Store(MaxMirrorIndices)
	e.DVRF.Store(0)
	e.SrcNHIndex.Store(0)
	e.action.Store(int32(ActionHold))
}

// reset drains nothing itself (the flush path drains the hold list first)
// but zeroes stats/key/scalars and clears flags as the final store.
// Clearing FlagActive last is what publishes the slot as free to readers
// of find/find_free.
func (e *Entry) reset() {
	e.Stats.Bytes.Store(0)
	e.Stats.BytesOflow.Store(0)
	e.Stats.Packets.Store(0)
	e.Stats.PacketsOflow.Store(0)
	e.Key = Key{}
	e.RFlow.Store(NoRFlow)
	e.ECMPNHIndex.Store(NoECMPIndex)
	e.MirrorID.Store(MaxMirrorIndices)
	e.SecMirrorID.Store(MaxMirrorIndices)
	e.DVRF.Store(0)
	e.SrcNHIndex.Store(0)
	e.action.Store(int32(ActionDrop))
	e.flags.Store(0)
}
