// Package server exposes the HTTP surface of the help server: health
// and index-status reporting, rebuild triggering and the JSON-RPC
// endpoint.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	helperrors "github.com/onec-help/onechelp/internal/errors"
	"github.com/onec-help/onechelp/internal/mcp"
	"github.com/onec-help/onechelp/internal/store"
)

const (
	// maxRequestBody caps JSON-RPC request bodies.
	maxRequestBody = 1 << 20

	shutdownTimeout = 10 * time.Second
)

// Server serves the HTTP API.
type Server struct {
	addr     string
	protocol *mcp.Handler
	rebuild  mcp.RebuildService
	store    store.Store
	logger   *slog.Logger

	httpServer *http.Server
}

// NewServer wires the HTTP surface over the protocol handler, the
// rebuild orchestrator and the store.
func NewServer(host string, port int, protocol *mcp.Handler, rebuild mcp.RebuildService, st store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:     fmt.Sprintf("%s:%d", host, port),
		protocol: protocol,
		rebuild:  rebuild,
		store:    st,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /index/status", s.handleIndexStatus)
	mux.HandleFunc("POST /index/rebuild", s.handleIndexRebuild)
	mux.HandleFunc("POST /mcp", s.handleMCP)
	mux.HandleFunc("GET /tools", s.handleTools)

	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.logRequests(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the server and blocks until the context is
// cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	s.logger.Info("http server listening", slog.String("addr", s.addr))

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	connected := s.store.Healthy(r.Context())

	status := "ok"
	storeState := "connected"
	if !connected {
		status = "degraded"
		storeState = "disconnected"
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": status,
		"store":  storeState,
	})
}

func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.rebuild.Status())
}

func (s *Server) handleIndexRebuild(w http.ResponseWriter, r *http.Request) {
	err := s.rebuild.Trigger(r.Context())
	if err != nil {
		if helperrors.GetCode(err) == helperrors.ErrCodeRebuildBusy {
			s.writeJSON(w, http.StatusConflict, map[string]any{
				"accepted": false,
				"reason":   "rebuild already in progress",
			})
			return
		}
		s.logger.Error("rebuild trigger failed", slog.String("error", err.Error()))
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"accepted": false,
			"reason":   "internal error",
		})
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

// handleMCP answers 200 for every well-formed HTTP request; protocol
// failures are reported inside the JSON-RPC envelope, not as HTTP
// status codes.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		http.Error(w, "cannot read request body", http.StatusBadRequest)
		return
	}

	resp := s.protocol.Handle(r.Context(), body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp)
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"tools": mcp.ToolDescriptors()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", slog.String("error", err.Error()))
	}
}

// statusRecorder captures the response code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)))
	})
}
