package http

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/bridge"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/dispatch"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/installer"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/resources"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/store"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/persistence"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/providers/sandbox"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/shared/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (*installer.Fetched, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.bodies[url]
	if !ok {
		return nil, fmt.Errorf("GET %s: status 404", url)
	}
	return &installer.Fetched{Body: []byte(body), FinalURL: url}, nil
}

type listener struct {
	outcomes []string
}

func (l *listener) InstallFinished(res installer.Result) {
	l.outcomes = append(l.outcomes, res.Outcome.String())
}

type env struct {
	router   *gin.Engine
	fetcher  *stubFetcher
	listener *listener
	metrics  *monitoring.Metrics
}

func newEnv(t *testing.T) *env {
	t.Helper()
	kv := persistence.NewMemory()
	cache := resources.NewCache(kv)
	st := store.New(nil)
	fetcher := &stubFetcher{bodies: map[string]string{}}
	metrics := monitoring.NewMetrics()
	b := bridge.New(kv, cache)

	inst := installer.New(st, cache, fetcher,
		installer.WithPersister(store.NewPersister(kv)),
		installer.WithRemoveHook(func(ctx context.Context, sc *types.Script) { _ = b.ClearValues(ctx, sc.ID) }),
	)
	pool, err := sandbox.NewPool(sandbox.DefaultConfig(), 1)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	l := &listener{}
	h := NewHandlers(Deps{
		Store:      st,
		Installer:  inst,
		Dispatcher: dispatch.New(st, cache, metrics, nil),
		Executor:   sandbox.NewExecutor(pool, b, nil),
		Listener:   l,
		Metrics:    metrics,
	})
	r := gin.New()
	h.Register(r)
	return &env{router: r, fetcher: fetcher, listener: l, metrics: metrics}
}

func (e *env) do(method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	var buf bytes.Buffer
	if body != nil {
		data, _ := sonic.Marshal(body)
		buf.Write(data)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	out := map[string]any{}
	_ = sonic.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func userscript(name, version, extra, code string) string {
	return "// ==UserScript==\n// @name " + name + "\n// @namespace test\n// @version " + version + "\n" + extra + "// ==/UserScript==\n" + code
}

func installSource(t *testing.T, e *env, src string) string {
	t.Helper()
	w, out := e.do(http.MethodPost, "/scripts", map[string]any{"source": src, "url": "https://example.com/x.user.js"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return out["script"].(map[string]any)["id"].(string)
}

func TestInstallListAndDetail(t *testing.T) {
	e := newEnv(t)
	id := installSource(t, e, userscript("A", "1.0", "// @match *://*.example.com/*\n// @include /([a-z/\n", ""))

	w, out := e.do(http.MethodGet, "/scripts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), out["count"])

	w, out = e.do(http.MethodGet, "/scripts/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "A", out["name"])
	assert.Equal(t, []any{"*://*.example.com/*"}, out["runs_at"])
	diags := out["diagnostics"].([]any)
	require.Len(t, diags, 1)
	assert.Equal(t, "include", diags[0].(map[string]any)["rule"])

	assert.Equal(t, []string{"inserted"}, e.listener.outcomes)
	assert.Equal(t, 1, len(e.metrics.Snapshot().Installs))
}

func TestInstallOutcomesMapToStatus(t *testing.T) {
	e := newEnv(t)
	installSource(t, e, userscript("A", "1.1", "", ""))

	w, out := e.do(http.MethodPost, "/scripts", map[string]any{"source": userscript("A", "1.1", "", "")})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "duplicate_noop", out["outcome"])

	w, out = e.do(http.MethodPost, "/scripts", map[string]any{"source": userscript("A", "1.0", "", "")})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "stale_version", out["outcome"])

	w, out = e.do(http.MethodPost, "/scripts", map[string]any{"source": userscript("A", "1.2", "", "")})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "update_applied", out["outcome"])

	w, out = e.do(http.MethodPost, "/scripts", map[string]any{"source": "no metadata here"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "malformed_metadata", out["outcome"])

	w, out = e.do(http.MethodPost, "/scripts", map[string]any{"url": "https://nowhere.example/a.user.js"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "fetch_error", out["outcome"])

	w, _ = e.do(http.MethodPost, "/scripts", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateFromURL(t *testing.T) {
	e := newEnv(t)
	e.fetcher.bodies["https://example.com/a.user.js"] = userscript("A", "1.0", "", "")
	w, out := e.do(http.MethodPost, "/scripts", map[string]any{"url": "https://example.com/a.user.js"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := out["script"].(map[string]any)["id"].(string)

	e.fetcher.bodies["https://example.com/a.user.js"] = userscript("A", "2.0", "", "")
	w, out = e.do(http.MethodPost, "/scripts/"+id+"/update", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "update_applied", out["outcome"])
	assert.Equal(t, "2.0", out["script"].(map[string]any)["version"])
}

func TestToggleAndRemove(t *testing.T) {
	e := newEnv(t)
	id := installSource(t, e, userscript("A", "1.0", "", ""))

	w, out := e.do(http.MethodPost, "/scripts/"+id+"/disable", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, out["enabled"])

	w, out = e.do(http.MethodGet, "/dispatch?url=https://example.com/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, out["scripts"])

	w, _ = e.do(http.MethodPost, "/scripts/"+id+"/enable", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = e.do(http.MethodDelete, "/scripts/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = e.do(http.MethodGet, "/scripts/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = e.do(http.MethodDelete, "/scripts/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDispatchAndNavigate(t *testing.T) {
	e := newEnv(t)
	installSource(t, e, userscript("A", "1.0", "// @match *://*.example.com/*\n", "console.log('A ran on ' + location);"))
	installSource(t, e, userscript("B", "1.0", "// @match *://other.org/*\n", ""))
	installSource(t, e, userscript("C", "1.0", "// @run-at document-start\n", ""))

	w, out := e.do(http.MethodGet, "/dispatch?url=https://www.example.com/p&phase=document-idle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	scripts := out["scripts"].([]any)
	require.Len(t, scripts, 1)
	assert.Equal(t, "A", scripts[0].(map[string]any)["name"])

	w, out = e.do(http.MethodPost, "/navigate", map[string]any{"url": "https://www.example.com/p"})
	require.Equal(t, http.StatusOK, w.Code)
	results := out["results"].([]any)
	require.Len(t, results, 1)
	// location is not defined in the sandbox, so the script throws
	assert.Contains(t, results[0].(map[string]any)["error"], "location")

	w, _ = e.do(http.MethodGet, "/dispatch", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvalidInput(t *testing.T) {
	e := newEnv(t)
	w, _ := e.do(http.MethodGet, "/scripts/bad..id", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = e.do(http.MethodPost, "/scripts", map[string]any{"url": "ftp://example.com/a.user.js"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = e.do(http.MethodGet, "/dispatch?url=not-a-url", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDetect(t *testing.T) {
	e := newEnv(t)
	w, out := e.do(http.MethodPost, "/detect", map[string]any{
		"html": `<a href="/s/a.user.js">a</a><a href="/b.js">b</a>`,
		"base": "https://example.com/",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), out["count"])
}

func TestSourceAndHealth(t *testing.T) {
	e := newEnv(t)
	src := userscript("A", "1.0", "", "var x = 1;")
	id := installSource(t, e, src)

	w, _ := e.do(http.MethodGet, "/scripts/"+id+"/source", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, src, w.Body.String())

	w, out := e.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), out["scripts"])
}
