// Package telemetry defines the Prometheus counters, histograms, and gauges
// consumed by the proxy server and protector, and exposes them through the
// standard exposition handler.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Telemetry bundles every metric the proxy records, constructed once at
// startup and shared read-only (Prometheus collectors are internally
// synchronized) across all request-handling goroutines.
type Telemetry struct {
	RequestsTotal              *prometheus.CounterVec
	RequestsBlocked            *prometheus.CounterVec
	RequestsAllowedlistMatched prometheus.Counter
	RequestsMetrics            *prometheus.CounterVec
	DatapointsServedCount      prometheus.Counter
	TSDBRequestLatencySeconds  *prometheus.HistogramVec
	TSDBRequestInterval        *prometheus.HistogramVec
	SafeMode                   prometheus.Gauge

	registry *prometheus.Registry
}

// New constructs and registers every metric against a fresh registry.
func New() *Telemetry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	t := &Telemetry{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_total",
			Help: "Total requests handled by the proxy, labeled by method, path, and HTTP status.",
		}, []string{"method", "path", "return_code"}),

		RequestsBlocked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_blocked",
			Help: "Requests denied by a rule, labeled by safe-mode state and the denying rule.",
		}, []string{"safe_mode", "rule"}),

		RequestsAllowedlistMatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "requests_allowedlist_matched",
			Help: "Requests that matched the allowlist and bypassed rule evaluation.",
		}),

		RequestsMetrics: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_metrics",
			Help: "Per-metric request counter.",
		}, []string{"metric"}),

		DatapointsServedCount: factory.NewCounter(prometheus.CounterOpts{
			Name: "datapoints_served_count",
			Help: "Total datapoints emitted to clients.",
		}),

		TSDBRequestLatencySeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tsdb_request_latency_seconds",
			Help:    "Backend request latency, labeled by HTTP status, path, and method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"http_code", "path", "method"}),

		TSDBRequestInterval: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tsdb_request_interval",
			Help:    "Query start-age in days.",
			Buckets: []float64{1, 30, 90},
		}, []string{"interval"}),

		SafeMode: factory.NewGauge(prometheus.GaugeOpts{
			Name: "safe_mode",
			Help: "1 when the proxy is running in safe mode, 0 otherwise.",
		}),

		registry: reg,
	}

	return t
}

// Handler returns the standard Prometheus exposition HTTP handler for
// /metrics.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}
