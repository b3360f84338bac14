package server

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/tickbridge/tickbridge/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // clients connect from arbitrary origins
	},
}

func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()

	if !s.globalLimiter.Acquire() {
		metrics.ConnectionsRejectedTotal.WithLabelValues("global_limit").Inc()
		return c.String(http.StatusServiceUnavailable, "Connection limit reached")
	}
	defer s.globalLimiter.Release()

	if !s.ipLimiter.Acquire(ip) {
		metrics.ConnectionsRejectedTotal.WithLabelValues("ip_limit").Inc()
		return c.String(http.StatusTooManyRequests, "Too many connections from this address")
	}
	defer s.ipLimiter.Release(ip)

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return nil
	}

	// Blocks for the connection's lifetime.
	s.sessions.HandleConn(conn)
	return nil
}
