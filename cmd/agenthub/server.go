package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	agenthub "github.com/stackmesh/agenthub"
	"github.com/stackmesh/agenthub/config"
	"github.com/stackmesh/agenthub/internal/metrics"
	"github.com/stackmesh/agenthub/types"
)

// Server hosts the hub's HTTP API and the separate metrics listener.
type Server struct {
	cfg       *config.Config
	hub       *agenthub.Hub
	collector *metrics.Collector
	logger    *zap.Logger

	httpServer    *http.Server
	metricsServer *http.Server
	cancel        context.CancelFunc
}

// NewServer wires the API around an assembled hub.
func NewServer(cfg *config.Config, hub *agenthub.Hub, collector *metrics.Collector, logger *zap.Logger) *Server {
	return &Server{
		cfg:       cfg,
		hub:       hub,
		collector: collector,
		logger:    logger.With(zap.String("component", "server")),
	}
}

// Start launches the hub background loops and both HTTP listeners.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.hub.Start(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/invoke", s.handleInvoke)
	mux.HandleFunc("POST /api/v1/handoff", s.handleHandoff)
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/memory/{agent}/{session}", s.handleMemoryGet)
	mux.HandleFunc("PUT /api/v1/memory/{agent}/{session}", s.handleMemorySet)
	mux.HandleFunc("DELETE /api/v1/memory/sessions/{session}", s.handleMemoryForget)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		RateLimiter(ctx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	}
	if s.cfg.Auth.Enabled {
		middlewares = append(middlewares, JWTAuth(s.cfg.Auth, []string{"/healthz"}, s.logger))
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		Handler:      Chain(mux, middlewares...),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", zap.Error(err))
		}
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	s.metricsServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		Handler: metricsMux,
	}
	go func() {
		s.logger.Info("metrics server listening", zap.String("addr", s.metricsServer.Addr))
		if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return nil
}

// WaitForShutdown blocks until SIGINT/SIGTERM, then shuts everything down
// within the configured grace period.
func (s *Server) WaitForShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	s.logger.Info("shutdown signal received")
	s.Shutdown()
}

// Shutdown stops the listeners, then the hub.
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http server shutdown", zap.Error(err))
	}
	if err := s.metricsServer.Shutdown(ctx); err != nil {
		s.logger.Warn("metrics server shutdown", zap.Error(err))
	}
	if err := s.hub.Shutdown(ctx); err != nil {
		s.logger.Warn("hub shutdown", zap.Error(err))
	}
	if s.cancel != nil {
		s.cancel()
	}
}

type invokeRequest struct {
	Tool      string          `json:"tool"`
	Args      json.RawMessage `json:"args"`
	AgentID   string          `json:"agent_id"`
	SessionID string          `json:"session_id"`
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Tool == "" || req.AgentID == "" || req.SessionID == "" {
		writeJSONError(w, http.StatusBadRequest, "tool, agent_id and session_id are required")
		return
	}
	if agent, ok := types.AgentID(r.Context()); ok && agent != req.AgentID {
		writeJSONError(w, http.StatusForbidden, "token subject does not match agent_id")
		return
	}

	resp, err := s.hub.Invoke(r.Context(), types.ToolCall{
		Tool:      req.Tool,
		Args:      req.Args,
		AgentID:   req.AgentID,
		SessionID: req.SessionID,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if resp.Queued != nil {
		writeJSON(w, http.StatusAccepted, resp.Queued)
		return
	}
	writeJSON(w, http.StatusOK, resp.Result)
}

type handoffRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleHandoff(w http.ResponseWriter, r *http.Request) {
	var req handoffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.From == "" || req.To == "" || req.SessionID == "" {
		writeJSONError(w, http.StatusBadRequest, "from, to and session_id are required")
		return
	}
	res, err := s.hub.Handoff(r.Context(), req.From, req.To, req.SessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.hub.Status(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleMemoryGet(w http.ResponseWriter, r *http.Request) {
	agent, session := r.PathValue("agent"), r.PathValue("session")
	snapshot := s.hub.Memory().Snapshot(agent, session)
	if snapshot == nil {
		snapshot = map[string]json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleMemorySet(w http.ResponseWriter, r *http.Request) {
	agent, session := r.PathValue("agent"), r.PathValue("session")
	var entries map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for key, value := range entries {
		s.hub.Memory().Set(agent, session, key, value)
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMemoryForget closes a session: every agent's entries for it drop in
// one call.
func (s *Server) handleMemoryForget(w http.ResponseWriter, r *http.Request) {
	s.hub.Memory().Forget(r.PathValue("session"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	// Degraded still answers 200: the hub keeps serving cached reads and
	// queueing mutations. The mode field tells the operator which.
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"mode":   s.hub.Monitor().Mode().String(),
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// writeError maps hub taxonomy errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var hubErr *types.Error
	if errors.As(err, &hubErr) {
		status := hubErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, map[string]any{
			"error":     hubErr.Code,
			"message":   hubErr.Message,
			"retryable": hubErr.Retryable,
		})
		return
	}
	writeJSONError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
