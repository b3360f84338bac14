// Package server exposes the HTTP API and the HTTP-upgraded streaming
// channel. Everything beyond /ws is a thin pass-through to the terminal
// gateway.
package server

import (
	"context"
	"fmt"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tickbridge/tickbridge/internal/config"
	"github.com/tickbridge/tickbridge/internal/domain"
	"github.com/tickbridge/tickbridge/internal/session"
)

type Server struct {
	echo     *echo.Echo
	config   *config.Config
	provider domain.Provider
	sessions *session.Handler

	globalLimiter *GlobalConnectionLimiter
	ipLimiter     *IPConnectionLimiter
}

func NewServer(cfg *config.Config, provider domain.Provider, sessions *session.Handler) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	srv := &Server{
		echo:          e,
		config:        cfg,
		provider:      provider,
		sessions:      sessions,
		globalLimiter: NewGlobalConnectionLimiter(cfg.MaxConnections),
		ipLimiter:     NewIPConnectionLimiter(cfg.MaxConnectionsPerIP),
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) registerRoutes() {
	// Observability
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Service banner
	s.echo.GET("/", s.handleRoot)

	// Terminal lifecycle
	s.echo.POST("/connect", s.handleConnect)
	s.echo.POST("/disconnect", s.handleDisconnect)

	// Market data
	s.echo.GET("/account", s.handleAccount)
	s.echo.GET("/symbols", s.handleSymbols)
	s.echo.GET("/tick/:symbol", s.handleTick)
	s.echo.GET("/rates/:symbol", s.handleRates)

	// Trading pass-throughs
	s.echo.GET("/positions", s.handlePositions)
	s.echo.GET("/orders", s.handleOrders)
	s.echo.POST("/order", s.handlePlaceOrder)
	s.echo.DELETE("/position/:ticket", s.handleClosePosition)
	s.echo.PATCH("/position", s.handleModifyPosition)
	s.echo.POST("/calculate/position-size", s.handlePositionSize)

	// HTTP-upgraded streaming channel
	s.echo.GET("/ws", s.handleWebSocket)
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.APIPort))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
