// Package metrics provides Prometheus instrumentation for the guard.
package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainguard",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chainguard",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ValidationsTotal counts validations by chain and decision.
	ValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainguard",
			Name:      "validations_total",
			Help:      "Total transaction validations by chain and decision.",
		},
		[]string{"chain", "decision"},
	)

	// PatternHitsTotal counts matched dangerous patterns.
	PatternHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chainguard",
			Name:      "pattern_hits_total",
			Help:      "Total dangerous-pattern matches by pattern id.",
		},
		[]string{"pattern"},
	)

	// EmergencyStopActive reports whether the emergency latch is set.
	EmergencyStopActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chainguard",
		Name:      "emergency_stop_active",
		Help:      "1 when the emergency stop latch is active.",
	})

	// ActiveEventClients tracks connected event-stream clients.
	ActiveEventClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chainguard",
		Name:      "active_event_clients",
		Help:      "Number of currently connected event-stream clients.",
	})

	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chainguard",
		Name:      "goroutines",
		Help:      "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ValidationsTotal,
		PatternHitsTotal,
		EmergencyStopActive,
		ActiveEventClients,
		GoroutineCount,
	)
}

// StartRuntimeCollector periodically samples the goroutine count into its
// gauge. Call in a goroutine; exits when ctx is done.
func StartRuntimeCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
