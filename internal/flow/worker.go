// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import "golang.org/x/sync/errgroup"

// Worker is the per-CPU flush dispatcher: flush jobs are posted here
// instead of being run inline on the agent's request goroutine. A drain
// runs on its own goroutine, but once limit jobs are running, Schedule
// blocks the caller until one finishes. One errgroup.Group backs every logical CPU
// lane; the limit bounds how many flush jobs run concurrently rather than
// pinning a job to a specific lane, since this simulator has no real
// per-CPU affinity to honor.
type Worker struct {
	g *errgroup.Group
}

// NewWorker creates a dispatcher that runs at most limit flush jobs
// concurrently.
func NewWorker(limit int) *Worker {
	g := &errgroup.Group{}
	if limit > 0 {
		g.SetLimit(limit)
	}
	return &Worker{g: g}
}

// Schedule posts fn to run on the worker pool, waiting for a free slot
// when limit jobs are already running. Errors are swallowed, not
// propagated: a flush job that fails has already disposed of its packets
// along some path, and there is no caller left to report to by the time it
// runs.
func (w *Worker) Schedule(fn func()) {
	w.g.Go(func() error {
		fn()
		return nil
	})
}

// Wait blocks until every scheduled job has completed. Tests use this to
// make flush dispatch deterministic; the production entry points do not
// call it on the hot path.
func (w *Worker) Wait() {
	_ = w.g.Wait()
}

// Close waits for outstanding work before the router is torn down.
func (w *Worker) Close() {
	_ = w.g.Wait()
}
