package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "ws://localhost:8000/ws", c.Stream.URL)
	assert.Equal(t, 5*time.Second, c.Stream.HeartbeatPeriod)
	assert.Equal(t, 3*time.Second, c.Stream.Reconnect.Delay)
	assert.Equal(t, 1.0, c.Stream.Reconnect.Multiplier)
	assert.Zero(t, c.Stream.Reconnect.MaxRetries)
	assert.Equal(t, "XU100", c.Market.ActiveSymbol)
	assert.Equal(t, "memory", c.Cache.Type)
	assert.Equal(t, -1, c.Kafka.RequiredAcks)
}

func TestLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	path := writeConfig(t, `
environment: production
stream:
  url: wss://feed.example.com/ws
  reconnect:
    delay: 1s
    multiplier: 2
    max_delay: 30s
    max_retries: 10
market:
  symbols: [GARAN, THYAO]
`)
	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", c.Environment)
	assert.Equal(t, "wss://feed.example.com/ws", c.Stream.URL)
	assert.Equal(t, 2.0, c.Stream.Reconnect.Multiplier)
	assert.Equal(t, uint64(10), c.Stream.Reconnect.MaxRetries)
	assert.Equal(t, 5*time.Second, c.Stream.HeartbeatPeriod)
	assert.Equal(t, []string{"GARAN", "THYAO"}, c.Market.Symbols)
	assert.Equal(t, 8080, c.Server.Port)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad environment": "environment: moon\n",
		"bad cache type":  "cache:\n  type: memcached\n",
		"kafka without brokers": "kafka:\n  enabled: true\n",
		"max delay below delay": "stream:\n  reconnect:\n    delay: 10s\n    multiplier: 2\n    max_delay: 1s\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("DASHBOARD_STREAM_URL", "ws://override:9000/ws")
	t.Setenv("DASHBOARD_SYMBOLS", "AKBNK, ASELS")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("DASHBOARD_HTTP_PORT", "9090")

	c, err := LoadWithEnv(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "ws://override:9000/ws", c.Stream.URL)
	assert.Equal(t, []string{"AKBNK", "ASELS"}, c.Market.Symbols)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "redis", c.Cache.Type)
	assert.Equal(t, "redis:6379", c.Cache.Addr)
	assert.Equal(t, 9090, c.Server.Port)
}
