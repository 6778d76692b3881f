package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so components can run without instrumentation in tests.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Channel metrics
	ChannelCalls    *prometheus.CounterVec
	ChannelDuration *prometheus.HistogramVec
	ChannelListens  *prometheus.GaugeVec

	// Watch metrics
	WatchSessions      prometheus.Gauge
	WatchSubscriptions prometheus.Gauge
	WatchEvents        *prometheus.CounterVec

	// Extension scan metrics
	ExtensionScans        *prometheus.CounterVec
	ExtensionScanDuration prometheus.Histogram
	ExtensionCollisions   prometheus.Counter
	ExtensionsDiscovered  prometheus.Gauge

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	startTime time.Time

	// Snapshot for the health endpoint
	snapshot MetricsSnapshot
	mu       sync.RWMutex
}

// MetricsSnapshot holds current values reported by the health endpoint
type MetricsSnapshot struct {
	TotalCalls        int64
	TotalErrors       int64
	ActiveSessions    int64
	ActiveConnections int64
}

// NewMetrics registers the collectors with reg. Passing nil registers with
// the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		// Channel metrics
		ChannelCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_channel_calls_total",
				Help: "Total number of channel calls",
			},
			[]string{"channel", "command", "code"},
		),
		ChannelDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_channel_call_duration_seconds",
				Help:    "Channel call duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"channel", "command"},
		),
		ChannelListens: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agent_channel_listeners",
				Help: "Number of attached event listeners",
			},
			[]string{"channel", "event"},
		),

		// Watch metrics
		WatchSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "agent_watch_sessions",
				Help: "Number of live watch sessions",
			},
		),
		WatchSubscriptions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "agent_watch_subscriptions",
				Help: "Number of open watch subscriptions",
			},
		),
		WatchEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_watch_events_total",
				Help: "Total number of watch events forwarded",
			},
			[]string{"kind"},
		),

		// Extension scan metrics
		ExtensionScans: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_extension_scans_total",
				Help: "Total number of extension root scans",
			},
			[]string{"group", "status"},
		),
		ExtensionScanDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agent_extension_scan_duration_seconds",
				Help:    "Duration of a full extension scan in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		ExtensionCollisions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_extension_collisions_total",
				Help: "Total number of extensions overridden by a later scan",
			},
		),
		ExtensionsDiscovered: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "agent_extensions_discovered",
				Help: "Number of extensions in the last merged scan",
			},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "agent_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "agent_uptime_seconds",
			Help: "Agent uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordChannelCall records a channel call. code is empty on success.
func (m *Metrics) RecordChannelCall(channel, command, code string, duration time.Duration) {
	if m == nil {
		return
	}
	if code == "" {
		code = "ok"
	}
	m.ChannelCalls.WithLabelValues(channel, command, code).Inc()
	m.ChannelDuration.WithLabelValues(channel, command).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalCalls++
	if code != "ok" {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// AddChannelListener adjusts the listener gauge by delta
func (m *Metrics) AddChannelListener(channel, event string, delta int) {
	if m == nil {
		return
	}
	m.ChannelListens.WithLabelValues(channel, event).Add(float64(delta))
}

// SetWatchSessions sets the number of live watch sessions
func (m *Metrics) SetWatchSessions(count int) {
	if m == nil {
		return
	}
	m.WatchSessions.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveSessions = int64(count)
	m.mu.Unlock()
}

// AddWatchSubscriptions adjusts the open subscription gauge by delta
func (m *Metrics) AddWatchSubscriptions(delta int) {
	if m == nil {
		return
	}
	m.WatchSubscriptions.Add(float64(delta))
}

// RecordWatchEvents counts forwarded watch events of kind "change" or "error"
func (m *Metrics) RecordWatchEvents(kind string, count int) {
	if m == nil {
		return
	}
	m.WatchEvents.WithLabelValues(kind).Add(float64(count))
}

// RecordExtensionScan records one root scan in group "builtin" or "installed"
func (m *Metrics) RecordExtensionScan(group string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "failed"
	}
	m.ExtensionScans.WithLabelValues(group, status).Inc()
}

// RecordExtensionMerge records the outcome of a full scan
func (m *Metrics) RecordExtensionMerge(discovered, collisions int, duration time.Duration) {
	if m == nil {
		return
	}
	m.ExtensionsDiscovered.Set(float64(discovered))
	m.ExtensionCollisions.Add(float64(collisions))
	m.ExtensionScanDuration.Observe(duration.Seconds())
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// Snapshot returns the current snapshot values
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Uptime returns time since the metrics were created
func (m *Metrics) Uptime() time.Duration {
	if m == nil {
		return 0
	}
	return time.Since(m.startTime)
}
