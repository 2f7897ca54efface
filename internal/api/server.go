// Package api exposes the read-only ops surface: health, prometheus metrics,
// and diagnostics reports as JSON. Not a gameplay surface; everything here is
// observational.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/caelmor/world/internal/core"
	"github.com/caelmor/world/internal/diag"
)

// TickView answers the current authoritative tick for reports.
type TickView interface {
	CurrentTick() core.Tick
}

// OpsServer serves the ops endpoints.
type OpsServer struct {
	diagnostics *diag.Diagnostics
	ticks       TickView
	logger      *zap.Logger
	srv         *http.Server
}

// NewOpsServer builds the server for addr.
func NewOpsServer(addr string, diagnostics *diag.Diagnostics, ticks TickView, logger *zap.Logger) *OpsServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &OpsServer{
		diagnostics: diagnostics,
		ticks:       ticks,
		logger:      logger.Named("ops"),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(diagnostics.Registry(), promhttp.HandlerOpts{})).Methods("GET")
	r.HandleFunc("/api/diag/hooks", s.handleHooks).Methods("GET")
	r.HandleFunc("/api/diag/pipeline", s.handlePipeline).Methods("GET")
	r.HandleFunc("/api/diag/tick", s.handleTick).Methods("GET")

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until Shutdown. Blocking; run on its own goroutine.
func (s *OpsServer) Start() error {
	s.logger.Info("ops server listening", zap.String("addr", s.srv.Addr))
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains the server.
func (s *OpsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *OpsServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status": "ok",
		"tick":   s.ticks.CurrentTick(),
	})
}

func (s *OpsServer) handleHooks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.diagnostics.Hooks.Report(s.ticks.CurrentTick()))
}

func (s *OpsServer) handlePipeline(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.diagnostics.Pipeline.Report())
}

func (s *OpsServer) handleTick(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.diagnostics.Ticks.Report())
}
