package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tickbridge/tickbridge/internal/version"
)

func (s *Server) handleLiveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "alive",
		"version": version.Version,
	})
}

// handleReadiness reports 503 until the terminal connection is up, so load
// balancers keep traffic away from an instance that cannot serve ticks.
func (s *Server) handleReadiness(c echo.Context) error {
	if !s.provider.Connected() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": "terminal not connected",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ready",
		"version": version.Version,
	})
}
