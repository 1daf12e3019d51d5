package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "admission.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeFile(t, `
http:
  addr: ":18080"
redis:
  addr: "redis:6379"
kafka:
  brokers: ["k1:9092", "k2:9092"]
worker:
  time_window_tick: 30s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":18080", cfg.HTTP.Addr)
	assert.Equal(t, ":9090", cfg.GRPC.Addr)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, "stock-changed", cfg.Kafka.Topic)
	assert.Equal(t, 30*time.Second, cfg.Worker.TimeWindowTick)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout)
}

func TestMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Store.Path, cfg.Store.Path)
	assert.False(t, cfg.Kafka.Enabled())
}

func TestEnvironmentOverridesFile(t *testing.T) {
	cfg := Default()
	env := map[string]string{
		"HTTP_ADDR":               ":7000",
		"KAFKA_BROKERS":           "a:9092, b:9092,",
		"LOG_LEVEL":               "debug",
		"OTEL_ENABLED":            "true",
		"OTEL_TRACES_SAMPLER_ARG": "0.25",
		"DB_PATH":                 "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	require.NoError(t, cfg.applyEnv(lookup))

	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.InDelta(t, 0.25, cfg.Telemetry.SampleRatio, 1e-9)
	assert.Equal(t, Default().Store.Path, cfg.Store.Path)
}

func TestBadEnvironmentValue(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) {
		if k == "OTEL_ENABLED" {
			return "maybe", true
		}
		return "", false
	})
	assert.ErrorContains(t, err, "OTEL_ENABLED")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Store.Path = ""
	cfg.Telemetry.SampleRatio = 2
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.path")
	assert.Contains(t, err.Error(), "sample_ratio")
}

func TestInvalidYAML(t *testing.T) {
	_, err := Load(writeFile(t, "http: [unclosed"))
	assert.ErrorContains(t, err, "parse")
}
