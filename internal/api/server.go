// Package api exposes the local status surface consumed by the
// out-of-core UI.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"inputshare/internal/session"
)

// statusSnapshot is the JSON shape served and pushed to observers.
type statusSnapshot struct {
	Status session.Status `json:"status"`
	Reason string         `json:"reason,omitempty"`
}

// Server serves the status snapshot over HTTP and pushes changes over
// a websocket hub. Loopback only; this is an observer surface, not a
// control plane.
type Server struct {
	log *slog.Logger

	mu       sync.RWMutex
	snapshot statusSnapshot

	wsMgr *wsManager
	http  *http.Server
	ln    net.Listener
}

// NewServer creates a stopped server.
func NewServer(log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		log:      log.With("component", "api"),
		snapshot: statusSnapshot{Status: session.StatusDisconnected},
	}
	s.wsMgr = newWSManager(s.log)
	return s
}

// StatusChanged implements session.Observer. Runs on the session
// queue; the broadcast itself hops to the hub goroutine.
func (s *Server) StatusChanged(st session.Status, reason string) {
	s.mu.Lock()
	s.snapshot = statusSnapshot{Status: st, Reason: reason}
	snap := s.snapshot
	s.mu.Unlock()
	s.wsMgr.broadcast(snap)
}

// Start binds the loopback listener and serves until Stop.
func (s *Server) Start(port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/ws", s.wsMgr.handleWebSocket)

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api: listen on %s: %w", addr, err)
	}
	s.ln = ln
	s.http = &http.Server{Handler: mux}
	go s.wsMgr.run()
	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("status server stopped", "err", err)
		}
	}()
	s.log.Info("status API listening", "addr", addr)
	return nil
}

// Addr returns the bound address, or empty before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop shuts the server and hub down.
func (s *Server) Stop() {
	if s.http != nil {
		s.http.Close()
	}
	s.wsMgr.stop()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	snap := s.snapshot
	s.mu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}
