// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import flerr "github.com/ashoksr/vrflow/internal/errors"

// Bucket is the number of consecutive primary-table slots probed as a unit
// before falling back to the overflow table.
const Bucket = 4

// Default table sizes.
const (
	DefaultPrimaryEntries  = 512 * 1024
	DefaultOverflowEntries = 8 * 1024
)

// EntrySize is the nominal per-entry size reported for the mmap-style
// address translation (table_size/oflow_table_size, va). It does
// not need to match sizeof(Entry) in this Go representation; it documents
// the stable on-wire record size external consumers plan against.
const EntrySize = 64

// Table is the two-tier bucketed flow-entry store: a primary array sized so
// that len(Primary) % Bucket == 0, and an overflow array consulted when a
// primary bucket is saturated. Virtual indices 0..N-1 address the primary;
// N..N+M-1 address the overflow, so external consumers (mmap export) see a
// single contiguous address range.
type Table struct {
	Primary  []Entry
	Overflow []Entry
	seed     uint64
}

// NewTable allocates a table with primary and overflow entries. primary
// must be a positive multiple of Bucket; it returns an error otherwise.
func NewTable(primary, overflow int, seed uint64) (*Table, error) {
	if primary <= 0 || primary%Bucket != 0 {
		return nil, flerr.Errorf(flerr.KindValidation, "flow: primary entry count %d must be a positive multiple of %d", primary, Bucket)
	}
	if overflow <= 0 {
		return nil, flerr.Errorf(flerr.KindValidation, "flow: overflow entry count %d must be positive", overflow)
	}
	return &Table{
		Primary:  make([]Entry, primary),
		Overflow: make([]Entry, overflow),
		seed:     seed,
	}, nil
}

// N is the primary table's entry count.
func (t *Table) N() int { return len(t.Primary) }

// M is the overflow table's entry count.
func (t *Table) M() int { return len(t.Overflow) }

// EntryAt translates a virtual index into the backing entry: indices
// below N address the primary, the remainder
// address the overflow, out-of-range indices return nil. Callers must treat
// rflow/ecmp-style stored indices as untrusted and always re-validate
// through this accessor; no generation counter exists,
// so a stale index may resolve to a slot that has since been reused.
func (t *Table) EntryAt(index int) *Entry {
	n := len(t.Primary)
	if index < 0 {
		return nil
	}
	if index < n {
		return &t.Primary[index]
	}
	j := index - n
	if j >= len(t.Overflow) {
		return nil
	}
	return &t.Overflow[j]
}

// Size is the primary table's exported size in bytes, for TABLE_GET.
func (t *Table) Size() uint64 {
	return uint64(len(t.Primary)) * EntrySize
}

// OverflowSize is the overflow table's exported size in bytes, for TABLE_GET.
func (t *Table) OverflowSize() uint64 {
	return uint64(len(t.Overflow)) * EntrySize
}

// VA resolves a byte offset into the exported address range -- primary
// entries concatenated with overflow entries -- to a virtual entry index,
// for memory-mapped export (flow_va). Returns -1 if the
// offset is out of range or misaligned.
func (t *Table) VA(offset uint64) int {
	if offset%EntrySize != 0 {
		return -1
	}
	index := int(offset / EntrySize)
	if index < 0 || index >= len(t.Primary)+len(t.Overflow) {
		return -1
	}
	return index
}
