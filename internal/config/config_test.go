package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4242, cfg.Port)
	assert.Equal(t, "localhost", cfg.BackendHost)
	assert.Equal(t, 60, cfg.TimeoutSec)
	assert.False(t, cfg.SafeMode)
	assert.Equal(t, "http://localhost:4243", cfg.BackendOrigin())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
host: 127.0.0.1
port: 9090
backend_host: tsdb.internal
backend_port: 4242
timeout: 30
safe_mode: true
rules:
  query_no_aggregator: null
  too_many_datapoints: 10000
blockedlist:
  - "^releases$"
allowedlist:
  - "^mymetric.*"
db:
  redis:
    host: redis.internal
    port: 6380
  expire: 3600
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "tsdb.internal", cfg.BackendHost)
	assert.True(t, cfg.SafeMode)
	assert.Equal(t, []string{"^releases$"}, cfg.BlockedList)
	assert.Equal(t, "redis.internal:6380", cfg.RedisAddr())
	assert.Equal(t, 3600, cfg.DB.Expire)
	assert.Contains(t, cfg.Rules, "query_no_aggregator")
	assert.Equal(t, 10000, cfg.Rules["too_many_datapoints"])
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := &Config{Port: 0, BackendPort: 1, BackendHost: "x", TimeoutSec: 1}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMissingBackendHost(t *testing.T) {
	cfg := &Config{Port: 1, BackendPort: 1, TimeoutSec: 1}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveTimeout(t *testing.T) {
	cfg := &Config{Port: 1, BackendPort: 1, BackendHost: "x", TimeoutSec: 0}
	assert.Error(t, cfg.Validate())
}
