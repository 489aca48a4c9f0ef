package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all client configuration, loaded from environment variables
// with sensible defaults.
type Config struct {
	// ServerURL is the base URL of the chorus backend (no trailing slash).
	ServerURL string
	// SocketPath is the Socket.IO endpoint path on the server.
	SocketPath string
	// Token is an opaque bearer token attached to API and socket traffic.
	Token string

	// ChorusHome is the directory where chorus stores local state.
	ChorusHome string

	// MaxReconnectAttempts bounds consecutive reconnect attempts before the
	// transport settles in the disconnected state.
	MaxReconnectAttempts int
	// ReconnectBaseDelay is the first reconnect backoff interval.
	ReconnectBaseDelay time.Duration
	// ReconnectMaxDelay caps the exponential backoff.
	ReconnectMaxDelay time.Duration
	// ConnectTimeout bounds a single connection attempt.
	ConnectTimeout time.Duration

	// HTTPTimeout is the per-request timeout for the session gateway.
	HTTPTimeout time.Duration
	// TriggerTimeout is how long a pending trigger may wait for its result
	// before it is expired locally.
	TriggerTimeout time.Duration

	// LogLevel is the textual log level (trace|debug|info|warn|error).
	LogLevel string
	// Debug enables verbose logging regardless of LogLevel.
	Debug bool
}

const (
	defaultSocketPath           = "/v1/stream"
	defaultMaxReconnectAttempts = 10
	defaultReconnectBaseDelay   = 1 * time.Second
	defaultReconnectMaxDelay    = 30 * time.Second
	defaultConnectTimeout       = 10 * time.Second
	defaultHTTPTimeout          = 15 * time.Second
	defaultTriggerTimeout       = 5 * time.Minute
)

// Load loads configuration from environment and defaults.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	chorusHome := os.Getenv("CHORUS_HOME_DIR")
	if chorusHome == "" {
		chorusHome = filepath.Join(homeDir, ".chorus")
	}
	if err := os.MkdirAll(chorusHome, 0700); err != nil {
		return nil, fmt.Errorf("failed to create chorus home: %w", err)
	}

	serverURL := os.Getenv("CHORUS_SERVER_URL")
	if serverURL == "" {
		serverURL = "http://localhost:8000"
	}

	cfg := &Config{
		ServerURL:            serverURL,
		SocketPath:           getenvDefault("CHORUS_SOCKET_PATH", defaultSocketPath),
		Token:                os.Getenv("CHORUS_TOKEN"),
		ChorusHome:           chorusHome,
		MaxReconnectAttempts: getenvInt("CHORUS_MAX_RECONNECT_ATTEMPTS", defaultMaxReconnectAttempts),
		ReconnectBaseDelay:   getenvDuration("CHORUS_RECONNECT_BASE_DELAY", defaultReconnectBaseDelay),
		ReconnectMaxDelay:    getenvDuration("CHORUS_RECONNECT_MAX_DELAY", defaultReconnectMaxDelay),
		ConnectTimeout:       getenvDuration("CHORUS_CONNECT_TIMEOUT", defaultConnectTimeout),
		HTTPTimeout:          getenvDuration("CHORUS_HTTP_TIMEOUT", defaultHTTPTimeout),
		TriggerTimeout:       getenvDuration("CHORUS_TRIGGER_TIMEOUT", defaultTriggerTimeout),
		LogLevel:             os.Getenv("CHORUS_LOG_LEVEL"),
		Debug:                os.Getenv("CHORUS_DEBUG") == "1" || os.Getenv("CHORUS_DEBUG") == "true",
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
