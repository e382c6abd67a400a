// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package flow implements the flow-table datapath core: key derivation,
// the bucketed hash table, the hold queue, the action engine, and the
// control-plane handler that an agent drives to install and tear down
// flow entries.
package flow

import (
	"sync/atomic"

	flerr "github.com/ashoksr/vrflow/internal/errors"
	"github.com/ashoksr/vrflow/internal/flowconfig"
	"github.com/ashoksr/vrflow/internal/logging"
)

// Collaborators bundles every external dependency the router calls out to.
// All fields are required; NewRouter rejects a zero Collaborators.
type Collaborators struct {
	NextHops NextHopResolver
	Frags    FragmentCache
	Mirrors  MirrorRegistry
	Traps    TrapSink
	IP       IPStack
	Disposer PacketSink
}

func (c Collaborators) valid() bool {
	return c.NextHops != nil && c.Frags != nil && c.Mirrors != nil &&
		c.Traps != nil && c.IP != nil && c.Disposer != nil
}

// Router owns one flow table and the global backpressure/dispatch state
// around it. RID identifies this router instance and scopes
// mirror-registry calls; every control request carries it.
type Router struct {
	RID uint32

	table   *Table
	cfg     flowconfig.Config
	collab  Collaborators
	log     *logging.Logger
	metrics *Metrics

	worker *Worker

	holdCount   []atomic.Uint32
	actionCount atomic.Uint64

	cpuRoundRobin atomic.Uint64
}

// NewRouter allocates the flow table and wires the collaborators. numCPU
// sizes the per-CPU
// hold-count array and the flush worker pool.
func NewRouter(rid uint32, cfg flowconfig.Config, collab Collaborators, numCPU int, log *logging.Logger, metrics *Metrics) (*Router, error) {
	if !collab.valid() {
		return nil, errInvalidCollaborators
	}
	if numCPU <= 0 {
		numCPU = 1
	}
	if log == nil {
		log = logging.Discard()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	t, err := NewTable(cfg.PrimaryEntries, cfg.OverflowEntries, cfg.HashSeed)
	if err != nil {
		return nil, flerr.Attr(err, "router", rid)
	}

	r := &Router{
		RID:       rid,
		table:     t,
		cfg:       cfg,
		collab:    collab,
		log:       log.With("router", rid),
		metrics:   metrics,
		holdCount: make([]atomic.Uint32, numCPU),
		worker:    NewWorker(numCPU),
	}
	metrics.TableEntries.Set(float64(cfg.PrimaryEntries))
	metrics.OverflowEntries.Set(float64(cfg.OverflowEntries))
	return r, nil
}

// Close blocks until every flush job scheduled so far has finished
// (Worker.Close). It does not shut the worker pool down: a flush scheduled
// after Close still runs.
func (r *Router) Close() {
	r.worker.Close()
}

// Exit tears the router down: the table is reset either way; a hard exit
// additionally waits for outstanding flush jobs (Worker.Close). Neither
// form shuts the flush dispatcher down.
func (r *Router) Exit(softReset bool) {
	r.Reset()
	if !softReset {
		r.worker.Close()
	}
}

// Table exposes the backing store for the control API's TABLE_GET and for
// mmap-style export.
func (r *Router) Table() *Table { return r.table }

// TableSize is the primary table's exported size in bytes.
func (r *Router) TableSize() uint64 { return r.table.Size() }

// OverflowTableSize is the overflow table's exported size in bytes.
func (r *Router) OverflowTableSize() uint64 { return r.table.OverflowSize() }

// FlowVA resolves a byte offset in the exported address range to the
// backing Entry, for memory-mapped export.
func (r *Router) FlowVA(offset uint64) *Entry {
	idx := r.table.VA(offset)
	if idx < 0 {
		return nil
	}
	return r.table.EntryAt(idx)
}

// nextCPU hands out a logical CPU identity in round-robin order. A real
// dataplane pins each packet to its receiving thread's CPU, an affinity
// notion goroutines have no direct analogue for, so callers that need a
// stable identity per in-flight operation (hold-count lanes) draw one
// explicitly instead.
func (r *Router) nextCPU() int {
	n := uint64(len(r.holdCount))
	return int(r.cpuRoundRobin.Add(1) % n)
}
