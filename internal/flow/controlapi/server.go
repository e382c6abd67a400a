// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package controlapi exposes the flow-table control plane (TABLE_GET,
// FLOW_SET) as an HTTP API the agent drives, the way
// internal/ebpf/controlplane exposes the eBPF dataplane's control surface.
package controlapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ashoksr/vrflow/internal/flow"
	"github.com/ashoksr/vrflow/internal/logging"
)

// Server wraps a *flow.Router with the gorilla/mux HTTP front end the agent
// talks to, mirroring ControlPlane's router/httpServer/mutex shape.
type Server struct {
	router *flow.Router
	logger *logging.Logger

	mux        *mux.Router
	httpServer *http.Server
	mu         sync.RWMutex
}

// NewServer builds a Server around router and wires its routes. reg is the
// Prometheus registry to scrape at /api/v1/flow/metrics; a nil reg is
// replaced by a fresh, empty registry, so the endpoint then serves none of
// the router's instruments.
func NewServer(router *flow.Router, logger *logging.Logger, reg *prometheus.Registry) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	s := &Server{router: router, logger: logger, mux: mux.NewRouter()}
	s.setupRoutes(reg)
	return s
}

// setupRoutes registers the control-plane endpoints under /api/v1/flow,
// mirroring ControlPlane.setupRoutes' route-prefix style.
func (s *Server) setupRoutes(reg *prometheus.Registry) {
	api := s.mux.PathPrefix("/api/v1/flow").Subrouter()

	api.HandleFunc("/table", s.handleTableGet).Methods("GET")
	api.HandleFunc("/entries", s.handleFlowSet).Methods("POST")
	api.HandleFunc("/entries/{index}", s.handleFlowSet).Methods("PUT", "DELETE")
	api.HandleFunc("/entries/{index}", s.handleGetEntry).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")
}

// Handler returns the http.Handler to mount, for callers that embed the
// control API in a larger mux or drive it directly (the package tests)
// instead of calling ListenAndServe.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe starts a dedicated HTTP server for the control API,
// mirroring ControlPlane.startHTTPServer.
func (s *Server) ListenAndServe(addr string) error {
	s.mu.Lock()
	s.httpServer = &http.Server{Addr: addr, Handler: s.mux}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("flow control API listening", "addr", addr)
	return srv.ListenAndServe()
}

// wireRequest is the JSON wire shape of flow.Request, decoded from the HTTP
// body.
type wireRequest struct {
	RID         uint32           `json:"rid"`
	Index       int              `json:"index"`
	SrcIP       uint32           `json:"src_ip"`
	DstIP       uint32           `json:"dst_ip"`
	SrcPort     uint16           `json:"src_port"`
	DstPort     uint16           `json:"dst_port"`
	Proto       uint8            `json:"proto"`
	VRF         uint16           `json:"vrf"`
	Action      flow.Action      `json:"action"`
	Flags       flow.Flag        `json:"flags"`
	RFlowIndex  int32            `json:"rflow_index"`
	SrcNHIndex  uint32           `json:"src_nh_index"`
	ECMPNHIndex int32            `json:"ecmp_nh_index"`
	DVRF        uint16           `json:"dvrf"`
	MirrorID    uint32           `json:"mirror_id"`
	SecMirrorID uint32           `json:"sec_mirror_id"`
	MirrorMeta  *flow.MirrorMeta `json:"mirror_meta,omitempty"`
}

func (wr wireRequest) toRequest() *flow.Request {
	return &flow.Request{
		Op: flow.OpFlowSet, RID: wr.RID, Index: wr.Index,
		SrcIP: wr.SrcIP, DstIP: wr.DstIP, SrcPort: wr.SrcPort, DstPort: wr.DstPort,
		Proto: wr.Proto, VRF: wr.VRF,
		Action: wr.Action, Flags: wr.Flags,
		RFlowIndex: wr.RFlowIndex, SrcNHIndex: wr.SrcNHIndex, ECMPNHIndex: wr.ECMPNHIndex,
		DVRF: wr.DVRF, MirrorID: wr.MirrorID, SecMirrorID: wr.SecMirrorID, MirrorMeta: wr.MirrorMeta,
	}
}

// wireResponse mirrors flow.Response on the wire, plus a request
// correlation id matching the convention elsewhere of attaching a uuid to
// control-plane log lines and responses.
type wireResponse struct {
	RequestID    string `json:"request_id"`
	Code         int32  `json:"code"`
	Index        int    `json:"index"`
	TableSize    uint64 `json:"ftable_size,omitempty"`
	OverflowSize uint64 `json:"ftable_oflow_size,omitempty"`
	Dev          int32  `json:"ftable_dev,omitempty"`
}

func (s *Server) writeResponse(w http.ResponseWriter, reqID string, resp *flow.Response) {
	w.Header().Set("Content-Type", "application/json")
	if resp.Code != flow.CodeSuccess {
		w.WriteHeader(http.StatusBadRequest)
	}
	_ = json.NewEncoder(w).Encode(wireResponse{
		RequestID:    reqID,
		Code:         resp.Code,
		Index:        resp.Index,
		TableSize:    resp.TableSize,
		OverflowSize: resp.OverflowSize,
		Dev:          resp.Dev,
	})
}

// handleTableGet reports the table's byte sizes for mmap sizing, TABLE_GET.
func (s *Server) handleTableGet(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()
	resp := s.router.ProcessRequest(&flow.Request{Op: flow.OpTableGet})
	s.logger.Info("table_get", "request_id", reqID)
	s.writeResponse(w, reqID, resp)
}

// handleFlowSet decodes a FLOW_SET body and dispatches it to the
// router. DELETE clears the ACTIVE
// bit server-side regardless of what the body carries, so an agent cannot
// accidentally resurrect an entry via a malformed delete.
func (s *Server) handleFlowSet(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()

	var wr wireRequest
	if err := json.NewDecoder(r.Body).Decode(&wr); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if idx, ok := mux.Vars(r)["index"]; ok {
		if _, err := fmt.Sscanf(idx, "%d", &wr.Index); err != nil {
			http.Error(w, "invalid index", http.StatusBadRequest)
			return
		}
	}
	if r.Method == http.MethodDelete {
		wr.Flags &^= flow.FlagActive
	}

	req := wr.toRequest()
	resp := s.router.ProcessRequest(req)
	s.logger.Info("flow_set", "request_id", reqID, "index", resp.Index, "code", resp.Code)
	s.writeResponse(w, reqID, resp)
}

// handleGetEntry reports a point-in-time snapshot of one entry, a read-only
// convenience endpoint the wire protocol does not itself define but that
// the agent's debugging tooling needs; it never mutates the table.
func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	var idx int
	if _, err := fmt.Sscanf(mux.Vars(r)["index"], "%d", &idx); err != nil {
		http.Error(w, "invalid index", http.StatusBadRequest)
		return
	}
	e := s.router.Table().EntryAt(idx)
	if e == nil || !e.IsActive() {
		http.Error(w, "no such entry", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"index":    idx,
		"key":      e.Key.String(),
		"action":   e.Action().String(),
		"flags":    e.Flags(),
		"hold_len": e.HoldLen(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":          "ok",
		"unresolved_holds": s.router.UnresolvedHolds(),
	})
}
