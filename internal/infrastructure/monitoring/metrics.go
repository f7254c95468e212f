package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/firedesk/firedesk/internal/shared/types"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Instance lifecycle metrics
	InstancesByState *prometheus.GaugeVec
	StartsTotal      prometheus.Counter
	StopsTotal       prometheus.Counter
	CrashesTotal     prometheus.Counter
	RestartsTotal    prometheus.Counter

	// Provider metrics
	ProviderCalls    *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSEvents      prometheus.Counter

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for the JSON health endpoint
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current values for the JSON health endpoint.
type Snapshot struct {
	TotalRequests int64       `json:"total_requests"`
	TotalErrors   int64       `json:"total_errors"`
	Crashes       int64       `json:"crashes"`
	Instances     types.Stats `json:"instances"`
	UptimeSeconds int64       `json:"uptime_seconds"`
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "firedesk_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "firedesk_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "firedesk_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "firedesk_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),

		// Instance lifecycle metrics
		InstancesByState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "firedesk_instances",
				Help: "Number of instances by observed state",
			},
			[]string{"state"},
		),
		StartsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "firedesk_instance_starts_total",
				Help: "Total number of successful instance starts",
			},
		),
		StopsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "firedesk_instance_stops_total",
				Help: "Total number of instance stops",
			},
		),
		CrashesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "firedesk_instance_crashes_total",
				Help: "Total number of unexpected browser exits",
			},
		),
		RestartsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "firedesk_instance_restarts_total",
				Help: "Total number of automatic crash restarts",
			},
		),

		// Provider metrics
		ProviderCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "firedesk_provider_calls_total",
				Help: "Total number of provider calls",
			},
			[]string{"provider", "method", "status"},
		),
		ProviderDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "firedesk_provider_duration_seconds",
				Help:    "Provider call duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"provider", "method"},
		),

		// WebSocket metrics
		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "firedesk_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSEvents: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "firedesk_ws_events_total",
				Help: "Total number of state events streamed to clients",
			},
		),

		// System metrics
		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "firedesk_uptime_seconds",
				Help: "Admin service uptime in seconds",
			},
		),
	}

	// Start uptime updater
	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	// Update snapshot
	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordProviderCall records a provider call
func (m *Metrics) RecordProviderCall(provider, method, status string, duration time.Duration) {
	m.ProviderCalls.WithLabelValues(provider, method, status).Inc()
	m.ProviderDuration.WithLabelValues(provider, method).Observe(duration.Seconds())
}

// RecordStart records a successful instance start
func (m *Metrics) RecordStart() {
	m.StartsTotal.Inc()
}

// RecordStop records an instance stop
func (m *Metrics) RecordStop() {
	m.StopsTotal.Inc()
}

// RecordCrash records an unexpected browser exit
func (m *Metrics) RecordCrash() {
	m.CrashesTotal.Inc()
	m.mu.Lock()
	m.snapshot.Crashes++
	m.mu.Unlock()
}

// RecordRestart records an automatic crash restart
func (m *Metrics) RecordRestart() {
	m.RestartsTotal.Inc()
}

// SetInstanceStats updates the per-state instance gauges
func (m *Metrics) SetInstanceStats(stats types.Stats) {
	m.InstancesByState.WithLabelValues("running").Set(float64(stats.Running))
	m.InstancesByState.WithLabelValues("stopped").Set(float64(stats.Stopped))
	m.InstancesByState.WithLabelValues("crashed").Set(float64(stats.Crashed))
	m.InstancesByState.WithLabelValues("transitioning").Set(float64(stats.Starting))

	m.mu.Lock()
	m.snapshot.Instances = stats
	m.mu.Unlock()
}

// RecordWSEvent records a state event streamed to a client
func (m *Metrics) RecordWSEvent() {
	m.WSEvents.Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}

// GetSnapshot returns current values for the JSON health endpoint
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := m.snapshot
	snap.UptimeSeconds = int64(time.Since(m.startTime).Seconds())
	return snap
}
