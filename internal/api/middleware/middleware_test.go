package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, ip string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = ip + ":1234"
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func engine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })
	return r
}

func TestRateLimitPerClient(t *testing.T) {
	r := engine(RateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 2}))

	assert.Equal(t, http.StatusOK, serve(r, "10.0.0.1", nil).Code)
	assert.Equal(t, http.StatusOK, serve(r, "10.0.0.1", nil).Code)
	w := serve(r, "10.0.0.1", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, serve(r, "10.0.0.2", nil).Code)
}

func TestIdleVisitorsAreDropped(t *testing.T) {
	set := newLimiterSet(RateLimitConfig{RequestsPerSecond: 10})
	now := time.Now()
	set.now = func() time.Time { return now }

	set.get("a")
	set.get("b")
	assert.Equal(t, 2, set.size())

	now = now.Add(idleTTL + time.Minute)
	set.get("c")
	assert.Equal(t, 1, set.size())
}

func TestGlobalRateLimit(t *testing.T) {
	r := engine(GlobalRateLimit(RateLimitConfig{RequestsPerSecond: 1, Burst: 1}))
	assert.Equal(t, http.StatusOK, serve(r, "10.0.0.1", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, "10.0.0.2", nil).Code)
}

func TestRequestID(t *testing.T) {
	r := engine(RequestID())

	w := serve(r, "10.0.0.1", map[string]string{RequestIDHeader: "abc"})
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc", w.Body.String())

	w = serve(r, "10.0.0.1", nil)
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)
	assert.Equal(t, w.Header().Get(RequestIDHeader), w.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	r := engine(CORS(DefaultCORSConfig()))
	r.OPTIONS("/", func(c *gin.Context) {})

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://ui.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
