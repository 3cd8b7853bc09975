package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/installer"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/shared/types"
)

// RequestIDHeader carries a correlation id on every outbound request
const RequestIDHeader = "X-Request-ID"

var (
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
	ErrTooLarge          = errors.New("response body too large")
)

// StatusError is an HTTP response outside 2xx/3xx
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Status)
}

// Config configures the client
type Config struct {
	Timeout           time.Duration
	UserAgent         string
	RequestsPerSecond float64
	MaxBodyBytes      int64
}

// DefaultConfig returns the settings used when none are given
func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Second,
		UserAgent:    "userscripts/1.0",
		MaxBodyBytes: 10 << 20,
	}
}

// Client downloads scripts and resources and performs cross-origin
// requests for scripts. It never retries: a failed fetch is reported to
// the caller, who decides whether to try again.
type Client struct {
	resty    *resty.Client
	limiter  *rate.Limiter
	breakers *resilience.Group
	metrics  *monitoring.Metrics
	maxBody  int64
	log      *logging.Logger
}

// NewClient creates a client. metrics and log may be nil.
func NewClient(cfg Config, metrics *monitoring.Metrics, log *logging.Logger) *Client {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	log = logging.OrNop(log).Component("fetch")

	// The retryable client only contributes its pooled transport.
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0
	retryClient.Logger = nil

	restyClient := resty.New()
	restyClient.
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", cfg.UserAgent).
		SetResponseBodyLimit(int(cfg.MaxBodyBytes))
	restyClient.SetTransport(retryClient.HTTPClient.Transport)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	breakers := resilience.NewGroup("fetch", resilience.Settings{
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 20 && float64(counts.TotalFailures)/float64(counts.Requests) > 0.7)
		},
		IsSuccessful: successful,
		OnStateChange: func(name string, from, to resilience.State) {
			log.Warn("Circuit breaker state changed", zap.String("breaker", name), zap.Stringer("from", from), zap.Stringer("to", to))
			if metrics != nil {
				metrics.SetBreakerState(name, int(to))
			}
		},
	})

	return &Client{
		resty:    restyClient,
		limiter:  limiter,
		breakers: breakers,
		metrics:  metrics,
		maxBody:  cfg.MaxBodyBytes,
		log:      log,
	}
}

// successful keeps client errors and caller cancellation from tripping a
// host's breaker; only transport failures and 5xx count.
func successful(err error) bool {
	var se *StatusError
	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, ErrTooLarge):
		return true
	case errors.As(err, &se):
		return se.Status < 500
	}
	return false
}

// bodyErr maps resty's body limit error onto ErrTooLarge. resty stops
// reading as soon as the limit is crossed.
func (c *Client) bodyErr(err error, rawURL string) error {
	if errors.Is(err, resty.ErrResponseBodyTooLarge) {
		return fmt.Errorf("%w: over %d bytes from %s", ErrTooLarge, c.maxBody, rawURL)
	}
	return err
}

func failureStatus(err error) string {
	if errors.Is(err, ErrTooLarge) {
		return "too_large"
	}
	return "error"
}

// BreakerStates reports every per-host breaker
func (c *Client) BreakerStates() map[string]resilience.State {
	return c.breakers.States()
}

func (c *Client) request(ctx context.Context, rawURL string) (*resty.Request, *resilience.Breaker, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("rate limit: %w", err)
	}
	req := c.resty.R().
		SetContext(ctx).
		SetHeader(RequestIDHeader, uuid.NewString())
	tracing.Inject(ctx, func(k, v string) { req.SetHeader(k, v) })
	return req, c.breakers.Get(u.Host), nil
}

// Fetch downloads url for the installer. Text bodies are converted to
// UTF-8; binary bodies are returned untouched.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*installer.Fetched, error) {
	timer := monitoring.NewTimer(c.metrics, "download")

	req, breaker, err := c.request(ctx, rawURL)
	if err != nil {
		timer.Stop("error")
		return nil, err
	}

	resp, err := resilience.Call(ctx, breaker, func(ctx context.Context) (*resty.Response, error) {
		resp, err := req.Get(rawURL)
		if err != nil {
			return nil, c.bodyErr(err, rawURL)
		}
		if resp.StatusCode() >= 400 {
			return nil, &StatusError{URL: rawURL, Status: resp.StatusCode()}
		}
		return resp, nil
	})
	if err != nil {
		timer.Stop(failureStatus(err))
		c.log.Debug("Fetch failed", zap.String("url", rawURL), zap.Error(err))
		return nil, err
	}

	body := resp.Body()
	contentType := resp.Header().Get("Content-Type")
	if isText(contentType, rawURL) {
		body = toUTF8(body, contentType)
	}

	timer.Stop("success")
	return &installer.Fetched{
		Body:        body,
		ContentType: contentType,
		FinalURL:    finalURL(resp, rawURL),
	}, nil
}

// Do performs a cross-origin request for a script. Any HTTP status is a
// response; only transport failures are errors.
func (c *Client) Do(ctx context.Context, in *types.HTTPRequest) (*types.HTTPResponse, error) {
	timer := monitoring.NewTimer(c.metrics, "xhr")

	if in.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.Timeout)
		defer cancel()
	}

	req, breaker, err := c.request(ctx, in.URL)
	if err != nil {
		timer.Stop("error")
		return nil, err
	}
	if len(in.Headers) > 0 {
		req.SetHeaders(in.Headers)
	}
	if in.Body != "" {
		req.SetBody(in.Body)
	}
	method := strings.ToUpper(in.Method)
	if method == "" {
		method = resty.MethodGet
	}

	resp, err := resilience.Call(ctx, breaker, func(context.Context) (*resty.Response, error) {
		resp, err := req.Execute(method, in.URL)
		if err != nil {
			return nil, c.bodyErr(err, in.URL)
		}
		return resp, nil
	})
	if err != nil {
		timer.Stop(failureStatus(err))
		return nil, err
	}

	headers := make(map[string]string, len(resp.Header()))
	for k, v := range resp.Header() {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	body := resp.Body()
	if isText(resp.Header().Get("Content-Type"), in.URL) {
		body = toUTF8(body, resp.Header().Get("Content-Type"))
	}

	timer.Stop("success")
	return &types.HTTPResponse{
		Status:     resp.StatusCode(),
		StatusText: resp.Status(),
		Headers:    headers,
		Body:       string(body),
		FinalURL:   finalURL(resp, in.URL),
	}, nil
}

func finalURL(resp *resty.Response, fallback string) string {
	if resp.RawResponse != nil && resp.RawResponse.Request != nil && resp.RawResponse.Request.URL != nil {
		return resp.RawResponse.Request.URL.String()
	}
	return fallback
}
