package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func validConfig() Config {
	return Config{
		WebSocket: WebSocketConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadLimit:    65536,
			WriteTimeout: 10 * time.Second,
			PingInterval: 54 * time.Second,
			PongTimeout:  60 * time.Second,
		},
		Lobby: LobbyConfig{
			IdleTimeout: 10 * time.Minute,
			SendBuffer:  256,
			EventBuffer: 1024,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func TestValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestWebSocketAddr(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "0.0.0.0:8080", cfg.WebSocket.Addr())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	err := os.WriteFile(path, []byte(`
websocket:
  host: 127.0.0.1
  port: 9090
  read_limit: 32768
  write_timeout: 5s
  ping_interval: 30s
  pong_timeout: 35s
lobby:
  idle_timeout: 5m
  send_buffer: 128
  event_buffer: 512
logging:
  level: debug
  format: console
`), 0644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.WebSocket.Host)
	assert.Equal(t, 9090, cfg.WebSocket.Port)
	assert.Equal(t, 5*time.Minute, cfg.Lobby.IdleTimeout)
	assert.Equal(t, 128, cfg.Lobby.SendBuffer)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "minimal.yaml")
	err := os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.WebSocket.Port)
	assert.Equal(t, 10*time.Minute, cfg.Lobby.IdleTimeout)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestValidateWebSocketPort(t *testing.T) {
	cfg := validConfig()
	cfg.WebSocket.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.WebSocket.Port = 65536
	assert.Error(t, cfg.Validate())
}

func TestValidateWebSocketReadLimit(t *testing.T) {
	cfg := validConfig()
	cfg.WebSocket.ReadLimit = 0
	assert.Error(t, cfg.Validate())
}

func TestValidatePongTimeoutExceedsPingInterval(t *testing.T) {
	cfg := validConfig()
	cfg.WebSocket.PongTimeout = cfg.WebSocket.PingInterval
	assert.Error(t, cfg.Validate())
}

func TestValidateLobbyIdleTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Lobby.IdleTimeout = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateLobbyBuffers(t *testing.T) {
	cfg := validConfig()
	cfg.Lobby.SendBuffer = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Lobby.EventBuffer = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateLoggingLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := validConfig()
		cfg.Logging.Level = level
		assert.NoError(t, cfg.Validate(), "level %q should be valid", level)
	}
	cfg := validConfig()
	cfg.Logging.Level = "trace"
	assert.Error(t, cfg.Validate())
}

func TestValidateLoggingFormat(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		cfg := validConfig()
		cfg.Logging.Format = format
		assert.NoError(t, cfg.Validate(), "format %q should be valid", format)
	}
	cfg := validConfig()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())
}

// Property-based tests

func TestPropertyValidPortRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		port := rapid.IntRange(1, 65535).Draw(t, "port")
		cfg := validConfig()
		cfg.WebSocket.Port = port
		if err := cfg.Validate(); err != nil {
			t.Fatalf("port %d should be valid: %v", port, err)
		}
	})
}

func TestPropertyInvalidPortRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		port := rapid.OneOf(
			rapid.IntRange(-1000, 0),
			rapid.IntRange(65536, 100000),
		).Draw(t, "port")
		cfg := validConfig()
		cfg.WebSocket.Port = port
		if err := cfg.Validate(); err == nil {
			t.Fatalf("port %d should be rejected", port)
		}
	})
}
