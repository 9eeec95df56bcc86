// Package metrics exposes Prometheus collectors for the HTTP surface, audio
// uploads, Drive throttling and the janitor. Operation lifecycle metrics live
// in the progress sinks.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	uploadsTotal               *prometheus.CounterVec
	uploadBytesTotal           prometheus.Counter
	janitorRemovedTotal        *prometheus.CounterVec
	chatMessagesTotal          *prometheus.CounterVec
	driveThrottleSeconds       prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)

		uploadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resona_uploads_total",
				Help: "Audio files received on /api/upload, labeled by result.",
			},
			[]string{"result"},
		)

		uploadBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "resona_upload_bytes_total",
				Help: "Bytes of audio accepted on /api/upload.",
			},
		)

		janitorRemovedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resona_janitor_removed_total",
				Help: "Items removed by the janitor, labeled by kind.",
			},
			[]string{"kind"},
		)

		chatMessagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resona_chat_messages_total",
				Help: "Chat history entries appended, labeled by type.",
			},
			[]string{"type"},
		)

		driveThrottleSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "resona_drive_throttle_seconds",
				Help:    "Time Drive calls spent waiting on the per-token rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		)
	})
}

// RouteLabel normalizes a chi route pattern for use as a label value.
func RouteLabel(pattern string) string {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return "unknown"
	}
	if len(pattern) > 1 {
		pattern = strings.TrimSuffix(pattern, "/")
	}
	return pattern
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveUpload counts one received file. result is "stored" or a rejection
// reason such as "not_audio" or "too_large".
func ObserveUpload(result string, bytes int64) {
	uploadsTotal.WithLabelValues(result).Inc()
	if bytes > 0 {
		uploadBytesTotal.Add(float64(bytes))
	}
}

// ObserveJanitor adds n removed items of the given kind.
func ObserveJanitor(kind string, n int) {
	if n > 0 {
		janitorRemovedTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// ObserveChatMessage counts one chat entry.
func ObserveChatMessage(kind string) {
	chatMessagesTotal.WithLabelValues(kind).Inc()
}

// ObserveDriveThrottle records one rate limiter wait.
func ObserveDriveThrottle(d time.Duration) {
	driveThrottleSeconds.Observe(d.Seconds())
}
