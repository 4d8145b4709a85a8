// Package server exposes the decision engine over HTTP: a decide endpoint,
// the active snapshot, health, and the Prometheus scrape endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/nairyuuu/vpbank-ml-api/internal/engine"
	"github.com/nairyuuu/vpbank-ml-api/internal/schema"
)

// AuditSink receives served decisions for the persistent audit trail.
// It may be nil when auditing is disabled.
type AuditSink interface {
	AppendDecision(id string, ts time.Time, payload []byte) error
}

// Server is the HTTP front of the decision engine.
type Server struct {
	engine *engine.Engine
	audit  AuditSink
	server *http.Server
}

// DecideRequest is the serving request body. Features are order-independent
// and must match the 31-name schema exactly.
type DecideRequest struct {
	TransactionID string               `json:"transaction_id,omitempty"`
	Features      schema.FeatureVector `json:"features"`
}

// DecideResponse wraps the decision with request bookkeeping.
type DecideResponse struct {
	TransactionID string          `json:"transaction_id,omitempty"`
	Decision      engine.Decision `json:"decision"`
	LatencyMs     float64         `json:"latency_ms"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New builds the server. audit may be nil.
func New(e *engine.Engine, audit AuditSink, addr string) *Server {
	s := &Server{engine: e, audit: audit}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/decide", s.handleDecide)
	mux.HandleFunc("/v1/snapshot", s.handleSnapshot)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests and blocks until shutdown.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting decision server")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()

	var req DecideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	decision, err := s.engine.Decide(ctx, req.Features)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, schema.ErrMismatch):
			status = http.StatusBadRequest
		case errors.Is(err, engine.ErrInsufficientSignals):
			status = http.StatusServiceUnavailable
		case errors.Is(err, engine.ErrNoSnapshot):
			status = http.StatusServiceUnavailable
		}
		log.Error().Err(err).Str("txn", req.TransactionID).Msg("decision failed")
		writeError(w, status, err.Error())
		return
	}

	if s.audit != nil {
		if payload, err := json.Marshal(decision); err == nil {
			if err := s.audit.AppendDecision(decision.ID, decision.Timestamp, payload); err != nil {
				log.Warn().Err(err).Str("decision", decision.ID).Msg("audit append failed")
			}
		}
	}

	resp := DecideResponse{
		TransactionID: req.TransactionID,
		Decision:      decision,
		LatencyMs:     float64(time.Since(start).Milliseconds()),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "no active snapshot")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{"healthy": true}
	if snap := s.engine.Snapshot(); snap == nil {
		status = http.StatusServiceUnavailable
		body["healthy"] = false
		body["reason"] = "no active snapshot"
	} else {
		body["snapshot_version"] = snap.Version
		body["uncalibrated"] = snap.Uncalibrated
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: msg})
}
