package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/tickbridge/tickbridge/internal/config"
	"github.com/tickbridge/tickbridge/internal/hub"
	"github.com/tickbridge/tickbridge/internal/logging"
	"github.com/tickbridge/tickbridge/internal/poller"
	"github.com/tickbridge/tickbridge/internal/provider/mt5"
	"github.com/tickbridge/tickbridge/internal/server"
	"github.com/tickbridge/tickbridge/internal/session"
	"github.com/tickbridge/tickbridge/internal/stream"
	"github.com/tickbridge/tickbridge/internal/version"
)

const (
	sessionMsgsPerSecond = 10
	sessionMsgBurst      = 20
	shutdownTimeout      = 10 * time.Second
)

func setupConfig() *config.Config {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func runGracefulShutdown(cancelPoller context.CancelFunc, apiSrv *server.Server, streamSrv *stream.Server, tickHub *hub.Hub, provider *mt5.Client) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		// Order matters: silence the poller first so no further ticks are
		// dispatched, then close connections, then release the terminal.
		cancelPoller()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := apiSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := streamSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Streaming server shutdown error", "error", err)
		}

		tickHub.Stop()

		if err := provider.Disconnect(shutdownCtx); err != nil {
			slog.Error("Terminal disconnect error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting",
		"env", cfg.AppEnv,
		"version", version.String(),
		"api_port", cfg.APIPort,
		"stream_port", cfg.StreamPort,
	)

	provider := mt5.NewClient(cfg.GatewayURL)

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 30*time.Second)
	if err := provider.Connect(connectCtx, cfg.TerminalPath); err != nil {
		// Not fatal: POST /connect can establish the session later.
		slog.Warn("Initial terminal connect failed", "error", err)
	}
	cancelConnect()

	tickHub := hub.New(clock)
	sessions := session.NewHandler(tickHub, provider, sessionMsgsPerSecond, sessionMsgBurst)

	pollCtx, cancelPoller := context.WithCancel(context.Background())
	tickPoller := poller.New(provider, tickHub, tickHub, clock, cfg.PollInterval, cfg.FetchTimeout)
	go tickPoller.Run(pollCtx)
	go provider.RunKeepAlive(pollCtx, clock, cfg.KeepAliveEvery)

	apiSrv := server.NewServer(cfg, provider, sessions)
	streamSrv := stream.NewServer(cfg.StreamPort, sessions)

	done := runGracefulShutdown(cancelPoller, apiSrv, streamSrv, tickHub, provider)

	go func() {
		if err := streamSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Streaming server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("API server starting", "port", cfg.APIPort)
	if err := apiSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("API server error", "error", err)
		os.Exit(1)
	}

	<-done
}
