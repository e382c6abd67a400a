// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"github.com/prometheus/client_golang/prometheus"

	flerr "github.com/ashoksr/vrflow/internal/errors"
	"github.com/ashoksr/vrflow/internal/flow"
	"github.com/ashoksr/vrflow/internal/flow/controlapi"
)

// runServer brings up a Router backed by in-memory fake collaborators --
// there is no real next-hop table, mirror registry, or IP stack in this
// simulator -- and serves the control API over HTTP.
func runServer(configPath, addr string) {
	cfg := loadConfig(configPath)
	log := newLogger()

	collab := flow.Collaborators{
		NextHops: flow.NewFakeNextHops(),
		Frags:    flow.NewFakeFragments(),
		Mirrors:  flow.NewFakeMirrors(),
		Traps:    flow.NewFakeTrapSink(),
		IP:       flow.NewFakeIPStack(),
		Disposer: flow.NewFakeDisposer(),
	}

	reg := prometheus.NewRegistry()
	router, err := flow.NewRouter(1, cfg, collab, cfg.NumCPU, log, flow.NewMetrics(reg))
	if err != nil {
		log.Error("failed to initialize flow router", "kind", flerr.GetKind(err).String(), "err", err)
		return
	}
	defer router.Close()

	log.Info("flow-table simulator starting",
		"primary_entries", cfg.PrimaryEntries, "overflow_entries", cfg.OverflowEntries, "addr", addr)

	srv := controlapi.NewServer(router, log, reg)
	if err := srv.ListenAndServe(addr); err != nil {
		log.Error("control API server exited", "err", err)
	}
}
