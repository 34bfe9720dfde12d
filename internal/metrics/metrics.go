// Package metrics registers the Prometheus metrics this proxy exposes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus metric the proxy records. Pass to
// components that need to observe request or backend lifecycle activity.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	ActiveSessions   prometheus.Gauge
	BackendSpawns    *prometheus.CounterVec
	BackendSpawnFail *prometheus.CounterVec
	BackendUptime    *prometheus.GaugeVec
}

// NewMetrics creates and registers every metric with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcp_transport_proxy",
				Name:      "requests_total",
				Help:      "Total number of MCP requests processed, by backend and status",
			},
			[]string{"backend", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "mcp_transport_proxy",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds, by backend",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		ActiveSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "mcp_transport_proxy",
				Name:      "active_sessions",
				Help:      "Number of active SSE/Streamable-HTTP sessions",
			},
		),
		BackendSpawns: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcp_transport_proxy",
				Name:      "backend_spawns_total",
				Help:      "Total backend process spawns, by backend name",
			},
			[]string{"backend"},
		),
		BackendSpawnFail: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "mcp_transport_proxy",
				Name:      "backend_spawn_failures_total",
				Help:      "Total backend process spawn failures, by backend name",
			},
			[]string{"backend"},
		),
		BackendUptime: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "mcp_transport_proxy",
				Name:      "backend_up",
				Help:      "1 if the named backend's process is currently running",
			},
			[]string{"backend"},
		),
	}
}
