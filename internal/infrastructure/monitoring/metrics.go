package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Sandbox metrics
	SandboxesActive  prometheus.Gauge
	SandboxStarts    prometheus.Counter
	SandboxStops     prometheus.Counter
	TrapOps          *prometheus.CounterVec
	SnapshotRecords  prometheus.Counter
	SnapshotRebuilds prometheus.Counter

	// Bus metrics
	BusEvents     *prometheus.CounterVec
	WSConnections prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for the JSON API
type Snapshot struct {
	TotalRequests   int64   `json:"total_requests"`
	TotalErrors     int64   `json:"total_errors"`
	ActiveSandboxes int64   `json:"active_sandboxes"`
	TotalDuration   float64 `json:"-"`
	RequestCount    int64   `json:"-"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector on the default registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates a metrics collector on a custom registerer.
// Tests use this to avoid duplicate registration panics.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandveil_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sandveil_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SandboxesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sandveil_sandboxes_active",
				Help: "Number of active sandboxes",
			},
		),
		SandboxStarts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sandveil_sandbox_starts_total",
				Help: "Total number of sandbox starts",
			},
		),
		SandboxStops: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sandveil_sandbox_stops_total",
				Help: "Total number of sandbox stops",
			},
		),
		TrapOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandveil_trap_ops_total",
				Help: "Total proxy trap operations by trap name",
			},
			[]string{"trap"},
		),
		SnapshotRecords: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sandveil_snapshot_records_total",
				Help: "Total UMD snapshot captures",
			},
		),
		SnapshotRebuilds: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sandveil_snapshot_rebuilds_total",
				Help: "Total UMD snapshot rebuilds",
			},
		),

		BusEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sandveil_bus_events_total",
				Help: "Total data-bus events by application",
			},
			[]string{"app"},
		),
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sandveil_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sandveil_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
	}
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status >= "400" {
		m.snapshot.TotalErrors++
	}
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.RequestCount++
	m.mu.Unlock()
}

// RecordSandboxStart records a sandbox activation
func (m *Metrics) RecordSandboxStart() {
	m.SandboxStarts.Inc()
	m.SandboxesActive.Inc()

	m.mu.Lock()
	m.snapshot.ActiveSandboxes++
	m.mu.Unlock()
}

// RecordSandboxStop records a sandbox deactivation
func (m *Metrics) RecordSandboxStop() {
	m.SandboxStops.Inc()
	m.SandboxesActive.Dec()

	m.mu.Lock()
	m.snapshot.ActiveSandboxes--
	m.mu.Unlock()
}

// RecordTrap records one proxy trap operation
func (m *Metrics) RecordTrap(trap string) {
	m.TrapOps.WithLabelValues(trap).Inc()
}

// RecordBusEvent records a data-bus emission
func (m *Metrics) RecordBusEvent(app string) {
	m.BusEvents.WithLabelValues(app).Inc()
}

// GetSnapshot returns the current metric snapshot for the JSON API
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := m.snapshot
	snap.UptimeSeconds = time.Since(m.startTime).Seconds()
	return snap
}
