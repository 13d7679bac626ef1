// Package server exposes health probes, metrics and debug views of a running
// node over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/mux"

	"github.com/autopeer-io/meshnode/internal/meshnode/dfu"
	"github.com/autopeer-io/meshnode/internal/meshnode/neighbor"
	"github.com/autopeer-io/meshnode/internal/pkg/metrics"
	"github.com/autopeer-io/meshnode/pkg/log"
	mqtttopic "github.com/autopeer-io/meshnode/pkg/mqtt/topic"
	"github.com/autopeer-io/meshnode/pkg/options"
)

// Sources are the parts of the node the debug views read from.
type Sources struct {
	Neighbors *neighbor.Table
	// Topology walks the mesh from this node.
	Topology  func(ctx context.Context) ([]neighbor.NodeTable, error)
	DfuStatus func() dfu.Status
	// Ready reports whether the node is connected and past its boot checks.
	Ready func() bool
	Clock clock.Clock
}

type Server struct {
	server  *http.Server
	options *options.HttpOptions
	src     Sources

	// removals are serialized so a checked id is still present when removed.
	removeMu sync.Mutex
}

func NewServer(opts *options.HttpOptions, src Sources) *Server {
	s := &Server{options: opts, src: src}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.readyz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	debug := r.PathPrefix("/debug").Subrouter()
	debug.HandleFunc("/neighbors", s.neighbors).Methods(http.MethodGet)
	debug.HandleFunc("/neighbors/{id}", s.neighborInfo).Methods(http.MethodGet)
	debug.HandleFunc("/neighbors/{id}", s.removeNeighbor).Methods(http.MethodDelete)
	debug.HandleFunc("/topology", s.topology).Methods(http.MethodGet)
	debug.HandleFunc("/dfu", s.dfuStatus).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:    opts.Addr,
		Handler: r,
	}
	return s
}

// Handler is the router serving all endpoints.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	log.Info("Starting HTTP Server", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.options.ShutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.src.Ready != nil && !s.src.Ready() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) neighbors(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.src.Neighbors.PrintTable(w, s.src.Clock.Now()); err != nil {
		log.Error(err, "Failed to write neighbor table")
	}
}

func (s *Server) neighborInfo(w http.ResponseWriter, r *http.Request) {
	id, err := mqtttopic.ParseNodeID(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, ok := s.src.Neighbors.Find(id); !ok {
		http.Error(w, fmt.Sprintf("%016x: %v", id, neighbor.ErrNotFound), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := s.src.Neighbors.PrintInfo(w, id); err != nil {
		log.Error(err, "Failed to write neighbor info", "nodeID", fmt.Sprintf("%016x", id))
	}
}

func (s *Server) removeNeighbor(w http.ResponseWriter, r *http.Request) {
	id, err := mqtttopic.ParseNodeID(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.removeMu.Lock()
	defer s.removeMu.Unlock()
	if _, ok := s.src.Neighbors.Find(id); !ok {
		http.Error(w, fmt.Sprintf("%016x: %v", id, neighbor.ErrNotFound), http.StatusNotFound)
		return
	}
	s.src.Neighbors.RemoveAndFree(id)

	log.Info("Removed neighbor", "nodeID", fmt.Sprintf("%016x", id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) topology(w http.ResponseWriter, r *http.Request) {
	if s.src.Topology == nil {
		http.Error(w, "topology not available", http.StatusServiceUnavailable)
		return
	}

	tables, err := s.src.Topology(r.Context())
	switch {
	case errors.Is(err, neighbor.ErrWalkInProgress):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := neighbor.PrintTopology(w, tables); err != nil {
		log.Error(err, "Failed to write topology")
	}
}

type dfuStatusResponse struct {
	State          string `json:"state"`
	Target         string `json:"target,omitempty"`
	ImageSize      uint32 `json:"imageSize,omitempty"`
	BuildID        string `json:"buildId,omitempty"`
	GateWasEnabled bool   `json:"gateWasEnabled"`
}

func (s *Server) dfuStatus(w http.ResponseWriter, r *http.Request) {
	if s.src.DfuStatus == nil {
		http.Error(w, "dfu not running", http.StatusServiceUnavailable)
		return
	}

	st := s.src.DfuStatus()
	resp := dfuStatusResponse{State: st.State, GateWasEnabled: st.GateWasEnabled}
	if st.Image.Size != 0 {
		resp.Target = mqtttopic.NodeID(st.Target)
		resp.ImageSize = st.Image.Size
		resp.BuildID = fmt.Sprintf("%08x", st.Image.BuildID)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
