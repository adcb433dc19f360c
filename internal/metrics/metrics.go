// Package metrics provides Prometheus metrics for termbroker.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	instance *Metrics
)

// Metrics holds all Prometheus metric collectors.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	HTTPResponseSize     *prometheus.HistogramVec

	TerminalSessionsActive prometheus.Gauge
	TerminalSessionsTotal  *prometheus.CounterVec
	TerminalBytesWritten   prometheus.Counter
	TerminalBytesRead      prometheus.Counter
	TerminalClientsGauge   prometheus.Gauge

	WebSocketConnectionsGauge *prometheus.GaugeVec
	WebSocketMessagesTotal    *prometheus.CounterVec
	WebSocketMessageSize      *prometheus.HistogramVec
	WebSocketLatency          *prometheus.HistogramVec

	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
	DBQueryDuration     *prometheus.HistogramVec
	DBErrorsTotal       *prometheus.CounterVec

	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	BuildInfo    *prometheus.GaugeVec
	StartupTime  prometheus.Gauge
	GoroutineNum prometheus.Gauge
}

// Get returns the singleton Metrics instance.
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	m := &Metrics{}

	m.HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "termbroker",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by endpoint, method, and status code",
		},
		[]string{"endpoint", "method", "status"},
	)

	m.HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "termbroker",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "method"},
	)

	m.HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "termbroker",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)

	m.HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "termbroker",
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"endpoint"},
	)

	m.TerminalSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "termbroker",
			Subsystem: "terminal",
			Name:      "sessions_active",
			Help:      "Number of terminal sessions with a live PTY",
		},
	)

	m.TerminalSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "termbroker",
			Subsystem: "terminal",
			Name:      "sessions_total",
			Help:      "Total number of terminal sessions by lifecycle outcome",
		},
		[]string{"outcome"},
	)

	m.TerminalBytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "termbroker",
			Subsystem: "terminal",
			Name:      "bytes_written_total",
			Help:      "Total bytes written into PTY devices from clients",
		},
	)

	m.TerminalBytesRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "termbroker",
			Subsystem: "terminal",
			Name:      "bytes_read_total",
			Help:      "Total bytes read from PTY devices for delivery to clients",
		},
	)

	m.TerminalClientsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "termbroker",
			Subsystem: "terminal",
			Name:      "attached_clients",
			Help:      "Number of WebSocket clients currently attached to any session",
		},
	)

	m.WebSocketConnectionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "termbroker",
			Subsystem: "websocket",
			Name:      "connections",
			Help:      "Current number of WebSocket connections by type",
		},
		[]string{"type"},
	)

	m.WebSocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "termbroker",
			Subsystem: "websocket",
			Name:      "messages_total",
			Help:      "Total number of WebSocket messages by type and direction",
		},
		[]string{"type", "direction"},
	)

	m.WebSocketMessageSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "termbroker",
			Subsystem: "websocket",
			Name:      "message_size_bytes",
			Help:      "WebSocket message size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 2, 10),
		},
		[]string{"type"},
	)

	m.WebSocketLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "termbroker",
			Subsystem: "websocket",
			Name:      "latency_seconds",
			Help:      "WebSocket message latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"type"},
	)

	m.DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "termbroker",
			Subsystem: "database",
			Name:      "connections_active",
			Help:      "Number of active database connections",
		},
	)

	m.DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "termbroker",
			Subsystem: "database",
			Name:      "connections_idle",
			Help:      "Number of idle database connections",
		},
	)

	m.DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "termbroker",
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation", "table"},
	)

	m.DBErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "termbroker",
			Subsystem: "database",
			Name:      "errors_total",
			Help:      "Total number of database errors",
		},
		[]string{"operation", "error_type"},
	)

	m.CacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "termbroker",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_name"},
	)

	m.CacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "termbroker",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_name"},
	)

	m.BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "termbroker",
			Subsystem: "build",
			Name:      "info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_date"},
	)

	m.StartupTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "termbroker",
			Subsystem: "server",
			Name:      "startup_timestamp",
			Help:      "Server startup timestamp",
		},
	)

	m.GoroutineNum = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "termbroker",
			Subsystem: "server",
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	m.StartupTime.Set(float64(time.Now().Unix()))

	return m
}

// RecordHTTPRequest records an HTTP request metric.
func (m *Metrics) RecordHTTPRequest(endpoint, method string, statusCode int, duration time.Duration, responseSize int) {
	status := statusCodeToLabel(statusCode)
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
	m.HTTPResponseSize.WithLabelValues(endpoint).Observe(float64(responseSize))
}

// RecordTerminalSessionStarted marks a session as started.
func (m *Metrics) RecordTerminalSessionStarted() {
	m.TerminalSessionsTotal.WithLabelValues("started").Inc()
}

// RecordTerminalSessionEnded marks a session as closed, either cleanly or
// because it expired.
func (m *Metrics) RecordTerminalSessionEnded(outcome string) {
	m.TerminalSessionsTotal.WithLabelValues(outcome).Inc()
}

// SetTerminalSessionsActive sets the live-PTY session count.
func (m *Metrics) SetTerminalSessionsActive(count int) {
	m.TerminalSessionsActive.Set(float64(count))
}

// SetTerminalAttachedClients sets the number of attached WebSocket clients.
func (m *Metrics) SetTerminalAttachedClients(count int) {
	m.TerminalClientsGauge.Set(float64(count))
}

// RecordTerminalWrite records bytes sent from a client into a PTY.
func (m *Metrics) RecordTerminalWrite(n int) {
	m.TerminalBytesWritten.Add(float64(n))
}

// RecordTerminalRead records bytes read from a PTY for delivery to clients.
func (m *Metrics) RecordTerminalRead(n int) {
	m.TerminalBytesRead.Add(float64(n))
}

// RecordWebSocketConnection records a WebSocket connection change.
func (m *Metrics) RecordWebSocketConnection(connType string, delta int) {
	m.WebSocketConnectionsGauge.WithLabelValues(connType).Add(float64(delta))
}

// RecordWebSocketMessage records a WebSocket message.
func (m *Metrics) RecordWebSocketMessage(msgType, direction string, size int) {
	m.WebSocketMessagesTotal.WithLabelValues(msgType, direction).Inc()
	m.WebSocketMessageSize.WithLabelValues(msgType).Observe(float64(size))
}

// RecordCacheOperation records a cache hit or miss.
func (m *Metrics) RecordCacheOperation(cacheName string, hit bool) {
	if hit {
		m.CacheHitsTotal.WithLabelValues(cacheName).Inc()
	} else {
		m.CacheMissesTotal.WithLabelValues(cacheName).Inc()
	}
}

// RecordDBQuery records a database query.
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration, err error) {
	m.DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		m.DBErrorsTotal.WithLabelValues(operation, "query_error").Inc()
	}
}

// SetBuildInfo sets build information.
func (m *Metrics) SetBuildInfo(version, commit, buildDate string) {
	m.BuildInfo.WithLabelValues(version, commit, buildDate).Set(1)
}

func statusCodeToLabel(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
