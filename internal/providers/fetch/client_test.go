package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/shared/types"
)

func newTestClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return NewClient(cfg, nil, nil)
}

func TestFetchScript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get(RequestIDHeader))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/javascript")
		_, _ = w.Write([]byte("// ==UserScript==\n// @name A\n// ==/UserScript==\n"))
	}))
	defer srv.Close()

	c := newTestClient(Config{UserAgent: "test-agent"})
	got, err := c.Fetch(context.Background(), srv.URL+"/a.user.js")
	require.NoError(t, err)
	assert.Contains(t, string(got.Body), "@name A")
	assert.Equal(t, "application/javascript", got.ContentType)
	assert.Equal(t, srv.URL+"/a.user.js", got.FinalURL)
}

func TestFetchPropagatesTrace(t *testing.T) {
	var traceID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = r.Header.Get(tracing.TraceHeader)
		_, _ = w.Write([]byte("x"))
	}))
	defer srv.Close()

	tracer := tracing.New("test", nil)
	defer tracer.Close()
	span, ctx := tracer.StartSpan(context.Background(), "install")

	_, err := newTestClient(Config{}).Fetch(ctx, srv.URL+"/a.user.js")
	require.NoError(t, err)
	assert.Equal(t, string(span.TraceID), traceID)
}

func TestFetchFollowsRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old.user.js", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new.user.js", http.StatusFound)
	})
	mux.HandleFunc("/new.user.js", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("x"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	got, err := newTestClient(Config{}).Fetch(context.Background(), srv.URL+"/old.user.js")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/new.user.js", got.FinalURL)
}

func TestFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newTestClient(Config{}).Fetch(context.Background(), srv.URL+"/missing.user.js")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Status)
}

func TestFetchNeverRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(Config{}).Fetch(context.Background(), srv.URL+"/a.user.js")
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestServerErrorsTripHostBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(Config{})
	for i := 0; i < 5; i++ {
		_, err := c.Fetch(context.Background(), srv.URL+"/a.user.js")
		require.Error(t, err)
	}
	_, err := c.Fetch(context.Background(), srv.URL+"/a.user.js")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(5), hits.Load())

	states := c.BreakerStates()
	require.Len(t, states, 1)
	for _, s := range states {
		assert.Equal(t, resilience.StateOpen, s)
	}
}

func TestClientErrorsDoNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := newTestClient(Config{})
	for i := 0; i < 10; i++ {
		_, err := c.Fetch(context.Background(), srv.URL+"/missing.js")
		var se *StatusError
		require.ErrorAs(t, err, &se)
	}
}

func TestFetchRejectsScheme(t *testing.T) {
	_, err := newTestClient(Config{}).Fetch(context.Background(), "ftp://example.com/a.user.js")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestFetchBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 2048)))
	}))
	defer srv.Close()

	_, err := newTestClient(Config{MaxBodyBytes: 1024}).Fetch(context.Background(), srv.URL+"/big.js")
	assert.ErrorIs(t, err, ErrTooLarge)
}

// endless streams chunks until the client hangs up
func endless(w http.ResponseWriter, r *http.Request) {
	chunk := []byte(strings.Repeat("a", 4096))
	flusher, _ := w.(http.Flusher)
	for {
		if _, err := w.Write(chunk); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		select {
		case <-r.Context().Done():
			return
		default:
		}
	}
}

func TestBodyLimitStopsReadingStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(endless))
	defer srv.Close()

	c := newTestClient(Config{MaxBodyBytes: 1024, Timeout: 30 * time.Second})

	done := make(chan error, 2)
	go func() {
		_, err := c.Fetch(context.Background(), srv.URL+"/huge.user.js")
		done <- err
	}()
	go func() {
		_, err := c.Do(context.Background(), &types.HTTPRequest{Method: "GET", URL: srv.URL + "/feed"})
		done <- err
	}()

	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			assert.ErrorIs(t, err, ErrTooLarge)
		case <-time.After(5 * time.Second):
			t.Fatal("body limit did not stop an unbounded response")
		}
	}
}

func TestOversizedBodiesDoNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 2048)))
	}))
	defer srv.Close()

	c := newTestClient(Config{MaxBodyBytes: 1024})
	for i := 0; i < 6; i++ {
		_, err := c.Fetch(context.Background(), srv.URL+"/big.js")
		require.ErrorIs(t, err, ErrTooLarge)
	}
	for _, s := range c.BreakerStates() {
		assert.Equal(t, resilience.StateClosed, s)
	}
}

func TestFetchConvertsCharset(t *testing.T) {
	// "café" in ISO-8859-1
	latin1 := []byte{'/', '/', ' ', 'c', 'a', 'f', 0xe9}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/javascript; charset=iso-8859-1")
		_, _ = w.Write(latin1)
	}))
	defer srv.Close()

	got, err := newTestClient(Config{}).Fetch(context.Background(), srv.URL+"/a.user.js")
	require.NoError(t, err)
	assert.Equal(t, "// café", string(got.Body))
}

func TestFetchKeepsBinary(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0xff, 0xfe}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}))
	defer srv.Close()

	got, err := newTestClient(Config{}).Fetch(context.Background(), srv.URL+"/icon.png")
	require.NoError(t, err)
	assert.Equal(t, png, got.Body)
}

func TestFetchCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := newTestClient(Config{}).Fetch(ctx, srv.URL+"/slow.user.js")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDoCrossOrigin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(Config{}).Do(context.Background(), &types.HTTPRequest{
		Method:  "post",
		URL:     srv.URL + "/api",
		Headers: map[string]string{"X-Test": "yes"},
		Body:    `{"a":1}`,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.Status)
	assert.Equal(t, `{"ok":true}`, resp.Body)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])
}

func TestDoTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	_, err := newTestClient(Config{}).Do(context.Background(), &types.HTTPRequest{
		URL:     srv.URL,
		Timeout: 50 * time.Millisecond,
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIsText(t *testing.T) {
	tests := []struct {
		contentType string
		url         string
		want        bool
	}{
		{"text/css", "https://x/a", true},
		{"application/javascript; charset=utf-8", "https://x/a", true},
		{"application/json", "https://x/a", true},
		{"image/png", "https://x/a.js", false},
		{"", "https://x/a.user.js?v=2", true},
		{"application/octet-stream", "https://x/a.css", true},
		{"", "https://x/a.png", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isText(tt.contentType, tt.url), "%s %s", tt.contentType, tt.url)
	}
}
