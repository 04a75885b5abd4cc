// Package apihttp serves the optional monitoring/progress surface (§4.9):
// Prometheus metrics, a liveness probe, and a websocket endpoint that
// streams composition progress ticks while a `compose --watch` run is in
// flight.
package apihttp

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shiguredo/hisui-sub000/internal/domain"
)

// Server is the monitoring HTTP server. It owns the websocket hub and
// multiplexes /metrics, /healthz and /compose/progress.
type Server struct {
	hub    *wsHub
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewServer builds a Server. A nil logger falls back to slog.Default.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{hub: newWSHub(logger), logger: logger}
	go s.hub.run()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/compose/progress", s.handleProgressWS)
	s.mux = mux
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleProgressWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{hub: s.hub, conn: conn, send: make(chan []byte, 64)}
	s.hub.register <- client
	go client.writePump()
	go client.readPump()
}

// BroadcastProgress fans a progress tick out to every connected viewer. Safe
// to call on a nil Server (e.g. when --watch was not requested).
func (s *Server) BroadcastProgress(update domain.ProgressUpdate) {
	if s == nil || s.hub == nil {
		return
	}
	s.hub.BroadcastProgress(update)
}

// Close stops the hub and disconnects every connected viewer.
func (s *Server) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.hub.Close()
}
