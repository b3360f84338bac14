package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("MT5_GATEWAY_URL", "http://localhost:5001")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8000", cfg.APIPort)
	assert.Equal(t, "8765", cfg.StreamPort)
	assert.Equal(t, 10*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 30*time.Second, cfg.KeepAliveEvery)
	assert.Equal(t, int64(1000), cfg.MaxConnections)
	assert.Equal(t, 20, cfg.MaxConnectionsPerIP)
	assert.Equal(t, 10, cfg.DefaultDeviation)
	assert.Equal(t, 12345, cfg.DefaultMagicNumber)
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_PORT", "9000")
	t.Setenv("POLL_INTERVAL", "25ms")
	t.Setenv("MAX_CONNECTIONS", "50")
	t.Setenv("MT5_PATH", "C:\\terminal64.exe")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.APIPort)
	assert.Equal(t, 25*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, int64(50), cfg.MaxConnections)
	assert.Equal(t, "C:\\terminal64.exe", cfg.TerminalPath)
}

func TestLoad_MissingGatewayURL(t *testing.T) {
	t.Setenv("MT5_GATEWAY_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MT5_GATEWAY_URL")
}

func TestLoad_InvalidDuration(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("POLL_INTERVAL", "fast")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POLL_INTERVAL")
}

func TestLoad_InvalidInteger(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAX_CONNECTIONS", "many")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_CONNECTIONS")
}

func TestLoad_NonPositivePollInterval(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("POLL_INTERVAL", "-5ms")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POLL_INTERVAL must be positive")
}

func TestLoad_PortsMustDiffer(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_PORT", "8765")
	t.Setenv("STREAM_PORT", "8765")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
}
