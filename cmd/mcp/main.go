// Command mcp runs the trading tool server over stdio for AI-agent
// integration. It shares the terminal gateway client and configuration with
// the main server but serves no HTTP; stdout carries the tool protocol, so
// all logging goes to stderr.
package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/tickbridge/tickbridge/internal/config"
	"github.com/tickbridge/tickbridge/internal/logging"
	"github.com/tickbridge/tickbridge/internal/mcptools"
	"github.com/tickbridge/tickbridge/internal/provider/mt5"
	"github.com/tickbridge/tickbridge/internal/version"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.InitLoggerTo(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.Info("Tool server starting", "version", version.String(), "gateway", cfg.GatewayURL)

	provider := mt5.NewClient(cfg.GatewayURL)
	srv := mcptools.NewServer(cfg, provider)

	if err := srv.ServeStdio(); err != nil {
		slog.Error("Tool server exited", "error", err)
		os.Exit(1)
	}
}
