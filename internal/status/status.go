// Package status serves a read-only HTTP view of a running monitor: liveness,
// loop counters and the active watch set.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fanmon/fanmon/internal/mask"
	"github.com/fanmon/fanmon/internal/monitor"
)

// Source is the monitor state the handlers read. *monitor.Monitor implements
// it.
type Source interface {
	State() monitor.State
	Stats() *monitor.Stats
	Paths() []string
	Mask() mask.Mask
	Uptime() time.Duration
}

// Health is the body of GET /healthz.
type Health struct {
	Status        string  `json:"status"`
	State         string  `json:"state"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Watches is the body of GET /watches.
type Watches struct {
	Paths  []string `json:"paths"`
	Events []string `json:"events"`
	Mask   string   `json:"mask"`
}

// Server holds the dependencies needed by the handlers.
type Server struct {
	src    Source
	logger *slog.Logger
}

// NewServer creates a Server reading from src.
func NewServer(src Source, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{src: src, logger: logger}
}

// NewRouter returns the chi router for s.
//
// Route layout:
//
//	GET /healthz  – liveness and lifecycle state (never authenticated)
//	GET /stats    – loop counters
//	GET /watches  – watched directories and subscription mask
//
// With a non-nil auth, /stats and /watches require an RS256 bearer token.
func NewRouter(s *Server, auth *AuthConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		if auth != nil {
			r.Use(requireJWT(*auth, s.logger))
		}
		r.Get("/stats", s.handleStats)
		r.Get("/watches", s.handleWatches)
	})

	return r
}

// handleHealthz reports 200 while the loop is running and 503 otherwise.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	st := s.src.State()
	h := Health{
		Status:        "ok",
		State:         st.String(),
		UptimeSeconds: s.src.Uptime().Seconds(),
	}
	code := http.StatusOK
	if st != monitor.Running {
		h.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, h)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.src.Stats().Snapshot())
}

func (s *Server) handleWatches(w http.ResponseWriter, r *http.Request) {
	m := s.src.Mask()
	paths := s.src.Paths()
	if paths == nil {
		paths = []string{}
	}
	s.writeJSON(w, http.StatusOK, Watches{
		Paths:  paths,
		Events: m.Names(),
		Mask:   fmt.Sprintf("%#x", uint64(m)),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("status: failed to encode response", slog.Any("error", err))
	}
}

// Serve listens on addr and serves the status routes until ctx is cancelled.
// The listener is bound before Serve returns so that address errors surface
// to the caller; requests are handled on a background goroutine.
func Serve(ctx context.Context, addr string, s *Server, auth *AuthConfig) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("status: listen %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:      NewRouter(s, auth),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("status: listening", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status: server error", slog.Any("error", err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("status: shutdown error", slog.Any("error", err))
		}
	}()

	return ln.Addr(), nil
}
