package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "userscripts"

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Script lifecycle metrics
	Installs           *prometheus.CounterVec
	InstallDuration    prometheus.Histogram
	PatternDiagnostics prometheus.Counter
	ScriptsInstalled   prometheus.Gauge
	ScriptsEnabled     prometheus.Gauge

	// Dispatch metrics
	DispatchDuration *prometheus.HistogramVec
	DispatchSelected *prometheus.HistogramVec

	// Bridge metrics
	BridgeCalls *prometheus.CounterVec

	// Outbound fetch metrics
	FetchCalls    *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec
	BreakerState  *prometheus.GaugeVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests     int64            `json:"total_requests"`
	TotalErrors       int64            `json:"total_errors"`
	Installs          map[string]int64 `json:"installs"`
	Dispatches        int64            `json:"dispatches"`
	DeniedCalls       int64            `json:"denied_calls"`
	ActiveConnections int64            `json:"active_connections"`
	UptimeSeconds     float64          `json:"uptime_seconds"`
}

// NewMetrics creates a collector set on its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),
		snapshot:  MetricsSnapshot{Installs: make(map[string]int64)},

		// HTTP metrics
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_size_bytes",
				Help:      "HTTP request size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		// Script lifecycle metrics
		Installs: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "installs_total",
				Help:      "Install attempts by outcome",
			},
			[]string{"outcome"},
		),
		InstallDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "install_duration_seconds",
				Help:      "Install attempt duration in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		PatternDiagnostics: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pattern_diagnostics_total",
				Help:      "Patterns that failed to compile",
			},
		),
		ScriptsInstalled: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "scripts_installed",
				Help:      "Number of installed scripts",
			},
		),
		ScriptsEnabled: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "scripts_enabled",
				Help:      "Number of enabled scripts",
			},
		),

		// Dispatch metrics
		DispatchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Time to select scripts for a navigation",
				Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
			},
			[]string{"phase"},
		),
		DispatchSelected: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_selected_scripts",
				Help:      "Scripts selected per navigation",
				Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
			},
			[]string{"phase"},
		),

		// Bridge metrics
		BridgeCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bridge_calls_total",
				Help:      "Capability calls by capability and status",
			},
			[]string{"capability", "status"},
		),

		// Outbound fetch metrics
		FetchCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_calls_total",
				Help:      "Outbound fetches by kind and status",
			},
			[]string{"kind", "status"},
		),
		FetchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Outbound fetch duration in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"kind"},
		),
		BreakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),

		// WebSocket metrics
		WSConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ws_connections",
				Help:      "Number of active WebSocket connections",
			},
		),
		WSMessages: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ws_messages_total",
				Help:      "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	f.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Service uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordInstall records one install attempt
func (m *Metrics) RecordInstall(outcome string, diagnostics int, duration time.Duration) {
	m.Installs.WithLabelValues(outcome).Inc()
	m.InstallDuration.Observe(duration.Seconds())
	if diagnostics > 0 {
		m.PatternDiagnostics.Add(float64(diagnostics))
	}

	m.mu.Lock()
	m.snapshot.Installs[outcome]++
	m.mu.Unlock()
}

// RecordDispatch records one navigation query
func (m *Metrics) RecordDispatch(phase string, selected int, duration time.Duration) {
	m.DispatchDuration.WithLabelValues(phase).Observe(duration.Seconds())
	m.DispatchSelected.WithLabelValues(phase).Observe(float64(selected))

	m.mu.Lock()
	m.snapshot.Dispatches++
	m.mu.Unlock()
}

// RecordBridgeCall records one capability call
func (m *Metrics) RecordBridgeCall(capability, status string) {
	m.BridgeCalls.WithLabelValues(capability, status).Inc()
	if status == "denied" {
		m.mu.Lock()
		m.snapshot.DeniedCalls++
		m.mu.Unlock()
	}
}

// RecordFetch records one outbound fetch
func (m *Metrics) RecordFetch(kind, status string, duration time.Duration) {
	m.FetchCalls.WithLabelValues(kind, status).Inc()
	m.FetchDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// SetBreakerState publishes a circuit breaker state
func (m *Metrics) SetBreakerState(name string, state int) {
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}

// SetScripts sets the installed and enabled script gauges
func (m *Metrics) SetScripts(installed, enabled int) {
	m.ScriptsInstalled.Set(float64(installed))
	m.ScriptsEnabled.Set(float64(enabled))
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// Snapshot returns current values for the JSON stats endpoint
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	s.Installs = make(map[string]int64, len(m.snapshot.Installs))
	for k, v := range m.snapshot.Installs {
		s.Installs[k] = v
	}
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
