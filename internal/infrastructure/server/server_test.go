package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/config"
)

const seedScript = `// ==UserScript==
// @name        Seeded
// @namespace   test
// @version     1.0
// @match       *://*.example.com/*
// @grant       GM_log
// ==/UserScript==
GM_log('seeded');
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Logging.Development = true
	cfg.RateLimit.Enabled = false
	cfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "db", "userscripts.db")
	cfg.Storage.ScriptsDir = t.TempDir()
	cfg.Sandbox.PoolSize = 1
	return cfg
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestSeedPersistAndRestore(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Storage.ScriptsDir, "seeded.user.js"), []byte(seedScript), 0o644))
	ctx := context.Background()

	srv, err := NewServer(ctx, cfg, nil)
	require.NoError(t, err)
	report, err := srv.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)

	w := get(t, srv, "/dispatch?url=https://www.example.com/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Seeded")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	require.NoError(t, srv.Close())

	cfg.Storage.ScriptsDir = ""
	again, err := NewServer(ctx, cfg, nil)
	require.NoError(t, err)
	defer again.Close()

	w = get(t, again, "/scripts")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"Seeded"`)
}

func TestMetricsEndpoints(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.DatabasePath = ""
	srv, err := NewServer(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer srv.Close()

	get(t, srv, "/health")
	w := get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "userscripts_http_requests_total"))

	w = get(t, srv, "/metrics/json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "total_requests")
}

func TestRunShutsDownOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.DatabasePath = ""
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	srv, err := NewServer(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
