package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Server runs the read-only status HTTP server: /health, /api/status, and
// an optional /ws stream that pushes the snapshot on every poll tick.
type Server struct {
	provider Provider
	hub      *Hub
	server   *http.Server
	log      *slog.Logger
}

// NewServer wires the handlers and hub for the given provider.
func NewServer(provider Provider, port int, log *slog.Logger) *Server {
	log = log.With("component", "api")
	hub := NewHub(log)

	s := &Server{provider: provider, hub: hub, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWebSocket)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Run starts the hub, a periodic broadcast loop, and the HTTP server, and
// blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	go s.hub.Run()
	go s.broadcastLoop(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	s.log.Info("status server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.Error("status server error", "error", err)
	}
}

func (s *Server) broadcastLoop(ctx context.Context) {
	t := time.NewTicker(2 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.hub.BroadcastSnapshot(s.provider.Snapshot())
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.provider.Snapshot()); err != nil {
		s.log.Error("encode status snapshot", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // read-only ops surface, no credentials carried
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}
	c := newClient(s.hub, conn)

	data, err := json.Marshal(s.provider.Snapshot())
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
