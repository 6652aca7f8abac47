// Package http exposes PlanHub's dispatch facade over REST. Transport
// concerns (routing, auth, body limits) live here; every dispatched
// call still comes back as one ToolEnvelope with HTTP 200, so callers
// read outcomes from the envelope, not the status code.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/planhub/planhub/internal/auth"
	"github.com/planhub/planhub/internal/db"
	"github.com/planhub/planhub/internal/telemetry"
	"github.com/planhub/planhub/internal/tools"
)

const maxRequestBodyBytes = 1 << 20

// AuditReader lists recent dispatched calls. Implemented by *db.DB;
// optional.
type AuditReader interface {
	ListToolCalls(ctx context.Context, limit int) ([]*db.ToolCall, error)
}

type Server struct {
	dispatcher *tools.Dispatcher
	audit      AuditReader
	verifier   auth.TokenVerifier
	srv        *http.Server
	logger     *slog.Logger
}

// Config configures the HTTP transport. Verifier enables bearer auth
// on /api/v1/* when non-nil; MCPHandler, when non-nil, is mounted at
// /mcp on the same listener.
type Config struct {
	Addr       string
	Dispatcher *tools.Dispatcher
	Audit      AuditReader
	Verifier   auth.TokenVerifier
	MCPHandler http.Handler
	Logger     *slog.Logger
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		dispatcher: cfg.Dispatcher,
		audit:      cfg.Audit,
		verifier:   cfg.Verifier,
		logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /metricsz", s.handleMetrics)
	mux.HandleFunc("GET /api/v1/operations", s.requireAuth(s.handleOperations))
	mux.HandleFunc("POST /api/v1/dispatch", s.requireAuth(s.handleDispatch))
	mux.HandleFunc("GET /api/v1/tool_calls", s.requireAuth(s.handleToolCalls))
	if cfg.MCPHandler != nil {
		mux.Handle("/mcp", cfg.MCPHandler)
	}

	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      withLogging(logger, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) ListenAndServe() error {
	s.logger.Info("http server starting", "addr", s.srv.Addr)
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.srv.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	if s.verifier == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeErr(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		subject, err := s.verifier.Verify(token)
		if err != nil {
			writeErr(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		r.Header.Set("X-Planhub-Subject", subject)
		next(w, r)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	io.WriteString(w, telemetry.RenderPrometheus())
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"operations": s.dispatcher.Catalog()})
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req tools.Request
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	ctx := r.Context()
	if traceID := r.Header.Get("X-Trace-Id"); traceID != "" {
		ctx = tools.WithTraceID(ctx, traceID)
	}

	env := s.dispatcher.Dispatch(ctx, req)
	writeJSON(w, http.StatusOK, env)
}

func (s *Server) handleToolCalls(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeErr(w, http.StatusNotFound, "audit log not configured")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeErr(w, http.StatusBadRequest, "limit must be an integer between 1 and 500")
			return
		}
		limit = n
	}
	records, err := s.audit.ListToolCalls(r.Context(), limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "listing tool calls failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tool_calls": records, "count": len(records)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", fmt.Sprintf("%dms", time.Since(start).Milliseconds()),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
