package metrics

import (
	"context"
	"runtime"
	"time"

	"gorm.io/gorm"

	"termbroker/internal/logging"
)

// SessionLister is the subset of terminal.Manager the collector needs; kept
// narrow so this package never imports internal/terminal directly.
type SessionLister interface {
	Count() int
	AttachedClientCount() int
}

// SystemMetricsCollector periodically samples runtime, database, and
// terminal session gauges that can't be updated inline at the point of
// change.
type SystemMetricsCollector struct {
	db       *gorm.DB
	sessions SessionLister
	metrics  *Metrics
	interval time.Duration
	stopCh   chan struct{}
}

// NewSystemMetricsCollector creates a collector. sessions may be nil if the
// terminal manager isn't available yet (e.g. during early startup).
func NewSystemMetricsCollector(db *gorm.DB, sessions SessionLister, interval time.Duration) *SystemMetricsCollector {
	return &SystemMetricsCollector{
		db:       db,
		sessions: sessions,
		metrics:  Get(),
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins periodic collection.
func (c *SystemMetricsCollector) Start(ctx context.Context) {
	go func() {
		c.collectAll()

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.collectAll()
			case <-c.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *SystemMetricsCollector) Stop() {
	close(c.stopCh)
}

func (c *SystemMetricsCollector) collectAll() {
	c.collectSystemMetrics()
	c.collectDatabaseMetrics()
	c.collectTerminalMetrics()
}

func (c *SystemMetricsCollector) collectSystemMetrics() {
	c.metrics.GoroutineNum.Set(float64(runtime.NumGoroutine()))
}

func (c *SystemMetricsCollector) collectDatabaseMetrics() {
	if c.db == nil {
		return
	}

	sqlDB, err := c.db.DB()
	if err != nil {
		logging.S().Warnw("failed to get database stats", "err", err)
		return
	}

	stats := sqlDB.Stats()
	c.metrics.DBConnectionsActive.Set(float64(stats.InUse))
	c.metrics.DBConnectionsIdle.Set(float64(stats.Idle))
}

func (c *SystemMetricsCollector) collectTerminalMetrics() {
	if c.sessions == nil {
		return
	}
	c.metrics.SetTerminalSessionsActive(c.sessions.Count())
	c.metrics.SetTerminalAttachedClients(c.sessions.AttachedClientCount())
}

// WebSocketMetricsRecorder provides methods for recording WebSocket metrics.
type WebSocketMetricsRecorder struct {
	metrics *Metrics
}

func NewWebSocketMetricsRecorder() *WebSocketMetricsRecorder {
	return &WebSocketMetricsRecorder{metrics: Get()}
}

func (r *WebSocketMetricsRecorder) ConnectionOpened(connType string) {
	r.metrics.RecordWebSocketConnection(connType, 1)
}

func (r *WebSocketMetricsRecorder) ConnectionClosed(connType string) {
	r.metrics.RecordWebSocketConnection(connType, -1)
}

func (r *WebSocketMetricsRecorder) MessageSent(msgType string, size int) {
	r.metrics.RecordWebSocketMessage(msgType, "out", size)
}

func (r *WebSocketMetricsRecorder) MessageReceived(msgType string, size int) {
	r.metrics.RecordWebSocketMessage(msgType, "in", size)
}

func (r *WebSocketMetricsRecorder) RecordLatency(msgType string, latency time.Duration) {
	r.metrics.WebSocketLatency.WithLabelValues(msgType).Observe(latency.Seconds())
}
