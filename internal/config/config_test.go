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

func TestLoad_ExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("RELAY_DB_PASSWORD", "s3cret")

	path := writeConfig(t, `
database:
  host: db
  user: relay
  password: ${RELAY_DB_PASSWORD}
  dbname: announcements
sync:
  max_concurrency: 8
dispatch:
  enabled: true
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "host=db port=5432 user=relay password=s3cret dbname=announcements sslmode=disable", cfg.Database.DSN())
	assert.Equal(t, ":50051", cfg.Server.Addr)
	assert.Equal(t, 8, cfg.Sync.MaxConcurrency)
	assert.Equal(t, 30*time.Second, cfg.Sync.FeedTimeout)
	assert.Equal(t, 3, cfg.Fetch.Retry.MaxAttempts)
	assert.Equal(t, 1, cfg.Fetch.RateLimit.Burst)
	assert.Zero(t, cfg.Fetch.RateLimit.RequestsPerSecond)
	assert.True(t, cfg.Dispatch.Enabled)
	assert.Equal(t, "@every 5m", cfg.Dispatch.Schedule)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_KeepsExplicitValues(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: 127.0.0.1:9000
fetch:
  timeout: 2s
  retry:
    max_attempts: 1
dispatch:
  schedule: "*/10 * * * *"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, 2*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 1, cfg.Fetch.Retry.MaxAttempts)
	assert.Equal(t, "*/10 * * * *", cfg.Dispatch.Schedule)
	assert.False(t, cfg.Dispatch.Enabled)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "database: [unterminated")
	_, err := Load(path)
	assert.ErrorContains(t, err, "parse config")
}
