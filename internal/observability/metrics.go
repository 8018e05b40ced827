// Package observability exposes Prometheus instrumentation for the
// transcoding pipeline.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline collectors on a dedicated registry so tests can
// create isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	JobsSubmitted    prometheus.Counter
	JobsCompleted    *prometheus.CounterVec
	QueueDepth       prometheus.Gauge
	RunningJobs      prometheus.Gauge
	TranscodeSeconds prometheus.Histogram
}

// New creates and registers all pipeline collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		JobsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "vts_jobs_submitted_total",
			Help: "Jobs accepted by the coordinator.",
		}),
		JobsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vts_jobs_completed_total",
			Help: "Jobs that reached a terminal status.",
		}, []string{"status"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vts_queue_depth",
			Help: "Jobs waiting for a worker slot.",
		}),
		RunningJobs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vts_jobs_running",
			Help: "Jobs currently holding a worker slot.",
		}),
		TranscodeSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vts_transcode_duration_seconds",
			Help:    "Wall-clock duration of finished transcodes.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
	}
}

// Handler returns the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
