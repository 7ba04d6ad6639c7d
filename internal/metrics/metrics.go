// Package metrics exposes Prometheus collectors plus atomic shadow counters
// that the health endpoint can read directly (Prometheus gauges are
// write-only from application code).
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeStreamCount  int64
	framesPushedCount  int64
	framesDroppedCount int64
)

// Stream connection metrics
var (
	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pushgate_active_stream_connections",
		Help: "The number of live push stream connections",
	})

	StreamsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pushgate_streams_opened_total",
		Help: "The total number of accepted stream connections",
	})

	StreamsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pushgate_streams_rejected_total",
		Help: "The total number of stream registrations rejected by the per-user cap",
	})
)

// Fan-out metrics
var (
	FramesPushed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pushgate_frames_pushed_total",
		Help: "The total number of frames delivered to live connections by event type",
	}, []string{"event"}) // "connected", "notification", "unread-count", "error", "heartbeat"

	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pushgate_frames_dropped_total",
		Help: "The total number of frame writes that failed and evicted their writer",
	})

	NotificationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pushgate_notifications_created_total",
		Help: "The total number of notifications persisted",
	})
)

// Rate limiter metrics
var (
	RateLimitDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pushgate_rate_limit_decisions_total",
		Help: "Rate-limit checks by policy, store path and outcome",
	}, []string{"policy", "path", "outcome"}) // path: "primary"/"fallback", outcome: "allowed"/"denied"

	RateLimitFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pushgate_rate_limit_fallbacks_total",
		Help: "Checks answered by the in-process fallback store because the shared store was unreachable",
	})
)

// HTTP metrics
var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pushgate_http_requests_total",
		Help: "The total number of HTTP requests by route and status",
	}, []string{"route", "status"})

	HTTPRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pushgate_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 10, 5),
	})
)

// Database metrics
var (
	DBConnections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pushgate_db_connections_total",
		Help: "Database connection attempts by status",
	}, []string{"status"}) // "success", "failure", "closed"

	DBOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pushgate_db_operations_total",
		Help: "Database operations by kind",
	}, []string{"operation"})
)

// IncrementActiveStreams bumps the gauge and the shadow counter together.
func IncrementActiveStreams() {
	ActiveStreams.Inc()
	StreamsOpened.Inc()
	atomic.AddInt64(&activeStreamCount, 1)
}

// DecrementActiveStreams is the counterpart of IncrementActiveStreams.
func DecrementActiveStreams() {
	ActiveStreams.Dec()
	atomic.AddInt64(&activeStreamCount, -1)
}

// GetActiveStreamCount returns the current live connection count.
func GetActiveStreamCount() int64 {
	return atomic.LoadInt64(&activeStreamCount)
}

// IncrementFramesPushed records one delivered frame.
func IncrementFramesPushed(event string) {
	FramesPushed.WithLabelValues(event).Inc()
	atomic.AddInt64(&framesPushedCount, 1)
}

// IncrementFramesDropped records one failed write that evicted its writer.
func IncrementFramesDropped() {
	FramesDropped.Inc()
	atomic.AddInt64(&framesDroppedCount, 1)
}

// GetFramesPushedCount returns frames delivered since start.
func GetFramesPushedCount() int64 { return atomic.LoadInt64(&framesPushedCount) }

// GetFramesDroppedCount returns failed frame writes since start.
func GetFramesDroppedCount() int64 { return atomic.LoadInt64(&framesDroppedCount) }

// Register pre-registers label combinations so dashboards see zeroes instead
// of absent series.
func Register() {
	for _, event := range []string{"connected", "notification", "unread-count", "error", "heartbeat"} {
		FramesPushed.WithLabelValues(event)
	}
	for _, policy := range []string{"notify", "stream"} {
		for _, path := range []string{"primary", "fallback"} {
			for _, outcome := range []string{"allowed", "denied"} {
				RateLimitDecisions.WithLabelValues(policy, path, outcome)
			}
		}
	}
	for _, status := range []string{"success", "failure", "closed"} {
		DBConnections.WithLabelValues(status)
	}
}
