package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CHORUS_SERVER_URL", "")
	t.Setenv("CHORUS_SOCKET_PATH", "")
	t.Setenv("CHORUS_TOKEN", "")
	t.Setenv("CHORUS_DEBUG", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000", cfg.ServerURL)
	require.Equal(t, "/v1/stream", cfg.SocketPath)
	require.Equal(t, 10, cfg.MaxReconnectAttempts)
	require.Equal(t, time.Second, cfg.ReconnectBaseDelay)
	require.Equal(t, 30*time.Second, cfg.ReconnectMaxDelay)
	require.Equal(t, 15*time.Second, cfg.HTTPTimeout)
	require.Equal(t, 5*time.Minute, cfg.TriggerTimeout)
	require.False(t, cfg.Debug)
	require.DirExists(t, cfg.ChorusHome)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CHORUS_SERVER_URL", "https://chorus.example.com")
	t.Setenv("CHORUS_SOCKET_PATH", "/custom/stream")
	t.Setenv("CHORUS_TOKEN", "secret")
	t.Setenv("CHORUS_MAX_RECONNECT_ATTEMPTS", "4")
	t.Setenv("CHORUS_RECONNECT_BASE_DELAY", "250ms")
	t.Setenv("CHORUS_TRIGGER_TIMEOUT", "90s")
	t.Setenv("CHORUS_DEBUG", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://chorus.example.com", cfg.ServerURL)
	require.Equal(t, "/custom/stream", cfg.SocketPath)
	require.Equal(t, "secret", cfg.Token)
	require.Equal(t, 4, cfg.MaxReconnectAttempts)
	require.Equal(t, 250*time.Millisecond, cfg.ReconnectBaseDelay)
	require.Equal(t, 90*time.Second, cfg.TriggerTimeout)
	require.True(t, cfg.Debug)
}

func TestLoadRejectsGarbageValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CHORUS_MAX_RECONNECT_ATTEMPTS", "lots")
	t.Setenv("CHORUS_RECONNECT_BASE_DELAY", "-3s")
	t.Setenv("CHORUS_HTTP_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 10, cfg.MaxReconnectAttempts)
	require.Equal(t, time.Second, cfg.ReconnectBaseDelay)
	require.Equal(t, 15*time.Second, cfg.HTTPTimeout)
}
