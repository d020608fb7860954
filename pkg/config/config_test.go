package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "sqlite", c.Storage.Backend)
	assert.Equal(t, "feature_aware", c.Analysis.Method)
	assert.Equal(t, 100, c.Analysis.MinBars)
	assert.Equal(t, 1000, c.Analysis.WarnBars)
	assert.Equal(t, 20, c.Analysis.Horizon)
	assert.Equal(t, 50, c.Analysis.Length)
	assert.Equal(t, 10, c.Analysis.TopK)
	assert.Equal(t, 5*time.Minute, c.Cache.TTL)
	assert.Equal(t, -1, c.Kafka.RequiredAcks)
}

func TestParseOverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(`
environment: production
server:
  port: 9090
storage:
  backend: clickhouse
clickhouse:
  host: ch.internal
analysis:
  method: geometric
  dtw_window: 5
  shape: mixed
  top_k: 25
  intervals: [H1, H4]
`))
	require.NoError(t, err)
	assert.Equal(t, "production", c.Environment)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, "ch.internal", c.ClickHouse.Host)
	assert.Equal(t, 9000, c.ClickHouse.Port)
	assert.Equal(t, "geometric", c.Analysis.Method)
	assert.Equal(t, 5, c.Analysis.DTWWindow)
	assert.Equal(t, "mixed", c.Analysis.Shape)
	assert.Equal(t, 25, c.Analysis.TopK)
	assert.Equal(t, []string{"H1", "H4"}, c.Analysis.Intervals)
	assert.Equal(t, 15*time.Second, c.Server.ReadTimeout)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"backend":   "storage: {backend: s3}",
		"gateway":   "storage: {backend: http}",
		"method":    "analysis: {method: cosine}",
		"shape":     "analysis: {shape: mirror}",
		"dtw":       "analysis: {dtw_window: -1}",
		"kafka":     "kafka: {enabled: true}",
		"cacheType": "cache: {type: disk}",
		"horizon":   "analysis: {horizon: 0}",
		"length":    "analysis: {length: 1}",
		"topK":      "analysis: {top_k: 0}",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: staging\n"), 0o644))

	t.Setenv("SERVER_PORT", "7000")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("STORAGE_BACKEND", "sqlite")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", c.Environment)
	assert.Equal(t, 7000, c.Server.Port)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)

	t.Setenv("SERVER_PORT", "abc")
	_, err = LoadWithEnv(path)
	assert.Error(t, err)
}
