// Package metric provides Prometheus metrics for the simulation driver.
//
// It exposes batch progress, checkpoint I/O timings and sizes, and
// restore timings at /metrics in Prometheus format. Only the coordinator
// rank serves the endpoint; worker ranks register nothing.
//
// @req RQ-0403
// @design DS-0402
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all application metrics backed by a dedicated
// prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	// Simulation progress.
	BatchesCompleted prometheus.Counter
	ActiveBatch      prometheus.Gauge
	KEffective       prometheus.Gauge

	// Checkpoint I/O.
	CheckpointWrites   prometheus.Counter
	CheckpointDuration prometheus.Histogram
	CheckpointBytes    prometheus.Gauge
	RestoreDuration    prometheus.Histogram

	// Source bank.
	SourceSites prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all collectors
// registered, including the standard Go runtime collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		BatchesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "openmc",
			Name:      "batches_completed_total",
			Help:      "Number of simulation batches completed.",
		}),
		ActiveBatch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "openmc",
			Name:      "active_batch",
			Help:      "Index of the batch currently being simulated.",
		}),
		KEffective: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "openmc",
			Name:      "k_effective",
			Help:      "Latest accumulated k-effective mean (eigenvalue runs).",
		}),
		CheckpointWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "openmc",
			Name:      "checkpoint_writes_total",
			Help:      "Number of checkpoint files written.",
		}),
		CheckpointDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "openmc",
			Name:      "checkpoint_write_seconds",
			Help:      "Wall time spent writing a checkpoint file.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		CheckpointBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "openmc",
			Name:      "checkpoint_bytes",
			Help:      "Size in bytes of the most recent checkpoint file.",
		}),
		RestoreDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "openmc",
			Name:      "restore_seconds",
			Help:      "Wall time spent loading and reconciling a checkpoint.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		SourceSites: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "openmc",
			Name:      "source_sites",
			Help:      "Number of source sites held by this rank.",
		}),
	}

	reg.MustRegister(
		r.BatchesCompleted,
		r.ActiveBatch,
		r.KEffective,
		r.CheckpointWrites,
		r.CheckpointDuration,
		r.CheckpointBytes,
		r.RestoreDuration,
		r.SourceSites,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// Handler returns an HTTP handler serving this registry in Prometheus
// exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
