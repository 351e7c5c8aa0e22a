// Package admin exposes the local operations endpoints.
package admin

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/hlwatch/engine/internal/metrics"
	"github.com/hlwatch/engine/internal/store"
	"github.com/hlwatch/engine/internal/watchlist"
)

// Server serves health, status, and cursor-reset endpoints on localhost.
// It is not meant to be exposed publicly.
type Server struct {
	httpServer *http.Server
	store      *store.Store
	tracker    *metrics.Tracker
	watchlist  *watchlist.Manager
}

// NewServer creates the admin server listening on the given port.
func NewServer(port int, st *store.Store, tracker *metrics.Tracker, wl *watchlist.Manager) *Server {
	s := &Server{
		store:     st,
		tracker:   tracker,
		watchlist: wl,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /reset-cursor", s.handleResetCursor)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start runs the server until Shutdown. Blocks.
func (s *Server) Start() error {
	slog.Info("admin_server_started", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	watched, elevated := s.watchlist.Counts()
	snap := s.tracker.Snapshot(watched, elevated)

	encoded, err := sonnet.Marshal(snap)
	if err != nil {
		http.Error(w, "encode status failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(encoded)
}

// handleResetCursor deletes the stored cursor for one address, forcing the
// next scan cycle to re-apply the configured lookback from scratch.
func (s *Server) handleResetCursor(w http.ResponseWriter, r *http.Request) {
	address := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("address")))
	if address == "" {
		http.Error(w, "missing address parameter", http.StatusBadRequest)
		return
	}

	if err := s.store.DeleteCursor(store.CursorSource(address)); err != nil {
		slog.Error("cursor_reset_failed", "address", address, "error", err)
		http.Error(w, "cursor reset failed", http.StatusInternalServerError)
		return
	}

	slog.Info("cursor_reset", "address", address)
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, "cursor reset for %s\n", address)
}
