// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

// Find locates the Active entry matching key, probing the primary table
// first and the overflow table on a primary miss. The returned index is
// virtual:
// primary hits return an index in [0,N), overflow hits return N+j. Ties
// between tables cannot occur in practice (a live key maps to at most one
// Active entry) but if they did, the primary match
// wins because it is probed first.
func (t *Table) Find(key Key) (*Entry, int) {
	h := hashKey(key, t.seed)

	if e, i := t.findInPrimary(h, key); e != nil {
		return e, i
	}
	if e, j := t.findInOverflow(h, key); e != nil {
		return e, len(t.Primary) + j
	}
	return nil, -1
}

// findInPrimary scans the Bucket slots starting at the bucket-aligned base
// derived from h. No wraparound is needed, because len(Primary) % Bucket
// == 0 guarantees base+Bucket-1 never crosses the table's end.
func (t *Table) findInPrimary(h uint64, key Key) (*Entry, int) {
	n := len(t.Primary)
	base := int(h%uint64(n)) &^ (Bucket - 1)
	for i := 0; i < Bucket; i++ {
		idx := base + i
		e := &t.Primary[idx]
		if e.IsActive() && e.Key.Equal(key) {
			return e, idx
		}
	}
	return nil, -1
}

// findInOverflow linearly probes the entire overflow table starting at
// h%M, wrapping modulo M.
func (t *Table) findInOverflow(h uint64, key Key) (*Entry, int) {
	m := len(t.Overflow)
	start := int(h % uint64(m))
	for i := 0; i < m; i++ {
		idx := (start + i) % m
		e := &t.Overflow[idx]
		if e.IsActive() && e.Key.Equal(key) {
			return e, idx
		}
	}
	return nil, -1
}

// FindFree claims a free slot for key using the same probe sequence as
// Find, but with the predicate "not active" and the CAS of Entry.claim as
// the attempted transition: primary bucket scanned without wraparound
// first, overflow scanned with wraparound on a primary miss. A losing CAS
// (another goroutine won the same slot first)
// moves on to the next candidate slot rather than retrying the same one.
func (t *Table) FindFree(key Key) (*Entry, int) {
	h := hashKey(key, t.seed)

	if e, i := t.claimInPrimary(h, key); e != nil {
		return e, i
	}
	if e, j := t.claimInOverflow(h, key); e != nil {
		return e, len(t.Primary) + j
	}
	return nil, -1
}

func (t *Table) claimInPrimary(h uint64, key Key) (*Entry, int) {
	n := len(t.Primary)
	base := int(h%uint64(n)) &^ (Bucket - 1)
	for i := 0; i < Bucket; i++ {
		idx := base + i
		e := &t.Primary[idx]
		if !e.IsActive() && e.claim() {
			e.initClaimed(key)
			return e, idx
		}
	}
	return nil, -1
}

func (t *Table) claimInOverflow(h uint64, key Key) (*Entry, int) {
	m := len(t.Overflow)
	start := int(h % uint64(m))
	for i := 0; i < m; i++ {
		idx := (start + i) % m
		e := &t.Overflow[idx]
		if !e.IsActive() && e.claim() {
			e.initClaimed(key)
			return e, idx
		}
	}
	return nil, -1
}

// Add returns the existing Active entry for key if one is present,
// otherwise allocates a fresh one via FindFree. Used only by the control
// plane, never by the dataplane fast path.
func (t *Table) Add(key Key) (*Entry, int) {
	if e, i := t.Find(key); e != nil {
		return e, i
	}
	return t.FindFree(key)
}
