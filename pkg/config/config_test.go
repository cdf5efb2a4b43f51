package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 6, cfg.Channels.Count)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "value", cfg.ErrorMode)
}

func TestParseOverridesDefaults(t *testing.T) {
	data := []byte(`
endpoint: cache.example.com:443
request_timeout: 1500ms
error_mode: throw
channels:
  count: 3
  max_idle: 30s
retry:
  strategy: exponential
  initial_delay: 20ms
  max_delay: 1s
  multiplier: 1.5
logging:
  level: debug
  backend: zap
observability:
  enable_metrics: true
`)

	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, "cache.example.com:443", cfg.Endpoint)
	assert.Equal(t, 1500*time.Millisecond, cfg.RequestTimeout)
	assert.Equal(t, "throw", cfg.ErrorMode)
	assert.Equal(t, 3, cfg.Channels.Count)
	assert.Equal(t, 30*time.Second, cfg.Channels.MaxIdle)
	assert.Equal(t, StrategyExponential, cfg.Retry.Strategy)
	assert.Equal(t, 20*time.Millisecond, cfg.Retry.InitialDelay)
	assert.Equal(t, 1.5, cfg.Retry.Multiplier)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Observability.EnableMetrics)

	// untouched keys keep their defaults
	assert.Equal(t, 5*time.Second, cfg.Channels.KeepAliveTime)
	assert.Equal(t, "relay", cfg.Observability.MetricsNamespace)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero timeout", "request_timeout: 0s"},
		{"negative channels", "channels:\n  count: -1"},
		{"bad error mode", "error_mode: explode"},
		{"unknown strategy", "retry:\n  strategy: forever"},
		{"bad jitter", "retry:\n  strategy: fixed_timeout\n  jitter: 1.5"},
		{"bad multiplier", "retry:\n  strategy: exponential\n  multiplier: 0.5"},
		{"bad sample rate", "observability:\n  enable_tracing: true\n  tracing:\n    sample_rate: 2"},
		{"not yaml", "endpoint: [unterminated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("endpoint: localhost:9000\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", cfg.Endpoint)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
