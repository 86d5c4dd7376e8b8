// Package telemetry holds the Prometheus metrics and the OpenTelemetry
// tracer and meter setup shared by the services and the CLI.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for DreamOps.
// Pass to components that need to record metrics; a nil *Metrics records nothing.
type Metrics struct {
	ConnectsTotal     *prometheus.CounterVec
	ConnectedServers  prometheus.Gauge
	ToolCallsTotal    *prometheus.CounterVec
	ToolCallDuration  *prometheus.HistogramVec
	ResolutionsTotal  *prometheus.CounterVec
	ActionsTotal      *prometheus.CounterVec
	ResolveCacheHits  prometheus.Counter
	ContextCallsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ConnectsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dreamops",
				Name:      "connects_total",
				Help:      "Total capability server connection attempts",
			},
			[]string{"server", "result"}, // result=ok/error
		),
		ConnectedServers: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "dreamops",
				Name:      "connected_servers",
				Help:      "Number of capability clients currently connected",
			},
		),
		ToolCallsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dreamops",
				Name:      "tool_calls_total",
				Help:      "Total tool calls by outcome",
			},
			[]string{"server", "tool", "result"}, // result=ok or an error kind
		),
		ToolCallDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dreamops",
				Name:      "tool_call_duration_seconds",
				Help:      "Tool call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"server"},
		),
		ResolutionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dreamops",
				Name:      "resolutions_total",
				Help:      "Total alerts resolved by matched category",
			},
			[]string{"category"}, // category=none when no rule matched
		),
		ActionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dreamops",
				Name:      "actions_total",
				Help:      "Total resolution actions emitted",
			},
			[]string{"action_type", "risk"},
		),
		ResolveCacheHits: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "dreamops",
				Name:      "resolve_cache_hits_total",
				Help:      "Resolutions served from the alert fingerprint cache",
			},
		),
		ContextCallsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dreamops",
				Name:      "context_calls_total",
				Help:      "Context-gathering tool calls by outcome",
			},
			[]string{"server", "result"},
		),
	}
}

// WriteTextfile gathers the registry into a file in the node exporter
// textfile format.
func WriteTextfile(g prometheus.Gatherer, path string) error {
	return prometheus.WriteToTextfile(path, g)
}
