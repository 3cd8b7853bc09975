package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	// Storage config
	assert.Empty(t, cfg.Storage.DatabasePath)
	assert.Equal(t, "scripts", cfg.Storage.ScriptsDir)

	// Fetch config
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout.Std())
	assert.Zero(t, cfg.Fetch.RequestsPerSecond)

	// Sandbox config
	assert.Equal(t, 5*time.Second, cfg.Sandbox.Timeout.Std())
	assert.Equal(t, 4, cfg.Sandbox.PoolSize)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoadOrDefault(t *testing.T) {
	cfg := LoadOrDefault()

	assert.NotNil(t, cfg)
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":               "9000",
		"HOST":               "127.0.0.1",
		"USERSCRIPTS_DB":     "/var/lib/us.db",
		"USERSCRIPTS_DIR":    "/srv/scripts",
		"FETCH_TIMEOUT":      "10s",
		"FETCH_RPS":          "2.5",
		"SANDBOX_POOL":       "8",
		"LOG_LEVEL":          "debug",
		"LOG_DEV":            "true",
		"RATE_LIMIT_RPS":     "500",
		"RATE_LIMIT_BURST":   "1000",
		"RATE_LIMIT_ENABLED": "false",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "/var/lib/us.db", cfg.Storage.DatabasePath)
	assert.Equal(t, "/srv/scripts", cfg.Storage.ScriptsDir)
	assert.Equal(t, 10*time.Second, cfg.Fetch.Timeout.Std())
	assert.InDelta(t, 2.5, cfg.Fetch.RequestsPerSecond, 0.0001)
	assert.Equal(t, 8, cfg.Sandbox.PoolSize)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoadWithPartialEnvironmentVariables(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)

	// Defaults still apply
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 4, cfg.Sandbox.PoolSize)
}

func TestLoadTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "userscripts.toml")
	content := `
[server]
port = "7000"

[fetch]
timeout = "3s"
user_agent = "test-agent"

[sandbox]
pool_size = 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 3*time.Second, cfg.Fetch.Timeout.Std())
	assert.Equal(t, "test-agent", cfg.Fetch.UserAgent)
	assert.Equal(t, 2, cfg.Sandbox.PoolSize)
}

func TestLoadYAMLFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "userscripts.yaml")
	content := "server:\n  port: \"7100\"\n  host: \"10.0.0.1\"\nlogging:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv(FileEnv, path)
	t.Setenv("PORT", "7200")

	cfg, err := Load()
	require.NoError(t, err)

	// Environment beats file, file beats default
	assert.Equal(t, "7200", cfg.Server.Port)
	assert.Equal(t, "10.0.0.1", cfg.Server.Host)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoadFileRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "userscripts.ini")
	require.NoError(t, os.WriteFile(path, []byte("port=1"), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestInvalidDuration(t *testing.T) {
	t.Setenv("FETCH_TIMEOUT", "soon")

	_, err := Load()
	assert.Error(t, err)
	assert.Equal(t, "8000", LoadOrDefault().Server.Port)
}
