// Package stream runs the dedicated streaming server: a standalone listener
// that serves nothing but websocket upgrades and speaks the same control
// protocol as the API server's /ws channel.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tickbridge/tickbridge/internal/session"
)

const shutdownGrace = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Server struct {
	httpServer *http.Server
	sessions   *session.Handler
}

func NewServer(port string, sessions *session.Handler) *Server {
	s := &Server{sessions: sessions}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Stream upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	s.sessions.HandleConn(conn)
}

// Start serves until Shutdown is called. It returns http.ErrServerClosed on
// graceful shutdown.
func (s *Server) Start() error {
	slog.Info("Streaming server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
