package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppEnv     string
	APIPort    string
	StreamPort string
	LogLevel   string
	LogFormat  string

	GatewayURL   string
	TerminalPath string

	PollInterval   time.Duration
	FetchTimeout   time.Duration
	KeepAliveEvery time.Duration

	MaxConnections      int64
	MaxConnectionsPerIP int

	DefaultDeviation   int
	DefaultMagicNumber int
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:       getEnv("APP_ENV", "development"),
		APIPort:      getEnv("API_PORT", "8000"),
		StreamPort:   getEnv("STREAM_PORT", "8765"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "text"),
		GatewayURL:   getEnv("MT5_GATEWAY_URL", ""),
		TerminalPath: getEnv("MT5_PATH", ""),
	}

	var err error
	if cfg.PollInterval, err = getDuration("POLL_INTERVAL", 10*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = getDuration("FETCH_TIMEOUT", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.KeepAliveEvery, err = getDuration("KEEPALIVE_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}

	maxConns, err := getInt("MAX_CONNECTIONS", 1000)
	if err != nil {
		return nil, err
	}
	cfg.MaxConnections = int64(maxConns)

	if cfg.MaxConnectionsPerIP, err = getInt("MAX_CONNECTIONS_PER_IP", 20); err != nil {
		return nil, err
	}
	if cfg.DefaultDeviation, err = getInt("DEFAULT_DEVIATION", 10); err != nil {
		return nil, err
	}
	if cfg.DefaultMagicNumber, err = getInt("DEFAULT_MAGIC_NUMBER", 12345); err != nil {
		return nil, err
	}

	if cfg.GatewayURL == "" {
		return nil, fmt.Errorf("MT5_GATEWAY_URL is required")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if cfg.APIPort == cfg.StreamPort {
		return nil, fmt.Errorf("API_PORT and STREAM_PORT must differ")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return v, nil
}
