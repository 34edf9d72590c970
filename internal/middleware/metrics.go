package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	wsConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "Total number of WebSocket connections accepted",
		},
	)

	wsActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	messagesRoutedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_messages_routed_total",
			Help: "Messages routed to a document room, by type",
		},
		[]string{"type"},
	)

	messagesRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_messages_rejected_total",
			Help: "Inbound frames dropped by validation",
		},
	)

	messagesThrottledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_messages_throttled_total",
			Help: "Inbound frames dropped by the per-connection rate limit",
		},
	)

	httpRequestsThrottledTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "http_requests_throttled_total",
			Help: "HTTP requests rejected by the API rate limit",
		},
	)
)

// Metrics returns a gin middleware that records request counters and
// latency histograms.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

// MetricsHandler exposes the Prometheus registry for Gin.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordWebSocketConnection increments WebSocket connection counters.
func RecordWebSocketConnection() {
	wsConnectionsTotal.Inc()
	wsActiveConnections.Inc()
}

// RecordWebSocketDisconnection decrements the active connection gauge.
func RecordWebSocketDisconnection() {
	wsActiveConnections.Dec()
}

// RecordMessageRouted counts a frame fanned out to a room.
func RecordMessageRouted(messageType string) {
	messagesRoutedTotal.WithLabelValues(messageType).Inc()
}

// RecordMessageRejected counts a frame dropped by validation.
func RecordMessageRejected() {
	messagesRejectedTotal.Inc()
}

// RecordMessageThrottled counts a frame dropped by the message limit.
func RecordMessageThrottled() {
	messagesThrottledTotal.Inc()
}

// RecordHTTPThrottled counts an HTTP request rejected by the API limit.
func RecordHTTPThrottled() {
	httpRequestsThrottledTotal.Inc()
}
