package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RecordInstall("inserted", 2, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Installs.WithLabelValues("inserted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.PatternDiagnostics))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Installs.WithLabelValues("inserted")))
}

func TestSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordInstall("inserted", 0, time.Millisecond)
	m.RecordInstall("duplicate_noop", 0, time.Millisecond)
	m.RecordDispatch("document-idle", 3, time.Microsecond)
	m.RecordBridgeCall("getValue", "denied")
	m.RecordBridgeCall("getValue", "ok")
	m.IncWSConnections()

	s := m.Snapshot()
	assert.Equal(t, int64(1), s.Installs["inserted"])
	assert.Equal(t, int64(1), s.Dispatches)
	assert.Equal(t, int64(1), s.DeniedCalls)
	assert.Equal(t, int64(1), s.ActiveConnections)

	s.Installs["inserted"] = 99
	assert.Equal(t, int64(1), m.Snapshot().Installs["inserted"])
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()
	r := gin.New()
	r.Use(Middleware(m))
	r.GET("/scripts/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scripts/us_1", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/scripts/:id", "404")))
	assert.Equal(t, int64(1), m.Snapshot().TotalErrors)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "userscripts_http_requests_total")
	assert.Contains(t, w.Body.String(), "userscripts_uptime_seconds")
}

func TestTimerWithoutMetrics(t *testing.T) {
	NewTimer(nil, "script").Stop("success")

	m := NewMetrics()
	NewTimer(m, "resource").Stop("error")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchCalls.WithLabelValues("resource", "error")))
}
