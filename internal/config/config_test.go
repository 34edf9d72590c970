package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8002, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Hub.HeartbeatInterval.Duration)
	assert.Equal(t, 5*time.Minute, cfg.Hub.IdleTimeout.Duration)
	assert.Equal(t, 100, cfg.Limits.API.MaxRequests)
	assert.Equal(t, time.Minute, cfg.Limits.API.Window.Duration)
	assert.Equal(t, 50, cfg.Limits.Socket.MaxRequests)
	assert.Equal(t, time.Second, cfg.Limits.Socket.Window.Duration)
	assert.Equal(t, 20, cfg.Limits.AuthTry.MaxRequests)
	assert.Equal(t, 5*time.Minute, cfg.Limits.AuthTry.Window.Duration)
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9100
  env: production
hub:
  heartbeat_interval: 10s
  idle_timeout: 2m
limits:
  socket:
    max_requests: 25
    window: 1s
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "production", cfg.Server.Env)
	assert.Equal(t, 10*time.Second, cfg.Hub.HeartbeatInterval.Duration)
	assert.Equal(t, 2*time.Minute, cfg.Hub.IdleTimeout.Duration)
	assert.Equal(t, 25, cfg.Limits.Socket.MaxRequests)
}

func TestEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9100\n"), 0o600))

	t.Setenv("PORT", "9200")
	t.Setenv("HEARTBEAT_INTERVAL", "45s")
	t.Setenv("SECRET_KEY", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Hub.HeartbeatInterval.Duration)
	assert.Equal(t, "from-env", cfg.Auth.SecretKey)
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [broken"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}
