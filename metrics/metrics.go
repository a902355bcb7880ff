// Package metrics exports ranking engine metrics in Prometheus format.
//
// Every method on a nil *Collector is a no-op, so components accept an
// optional collector without guarding each call site.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Candidate sources reported by the index manager.
const (
	SourceIndex = "index"
	SourceScan  = "scan"
)

// Rebuild kinds.
const (
	RebuildFull        = "full"
	RebuildIncremental = "incremental"
)

// Collector records query, index and deletion metrics.
type Collector struct {
	registry *prometheus.Registry

	queryLatency  prometheus.Histogram
	queries       *prometheus.CounterVec
	queryErrors   *prometheus.CounterVec
	retries       prometheus.Counter
	staleDropped  prometheus.Counter
	fallbacks     prometheus.Counter
	unavailable   prometheus.Counter
	rebuilds      *prometheus.CounterVec
	rebuildTime   *prometheus.HistogramVec
	activeRecords prometheus.Gauge
	indexed       prometheus.Gauge
	pending       prometheus.Gauge
	deletions     *prometheus.CounterVec
}

// Config configures the collector.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for latency histograms (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns default collector configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
	}
}

// NewCollector creates a collector and registers its metrics.
func NewCollector(cfg Config) *Collector {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{registry: registry}

	c.queryLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "recall",
			Subsystem: "query",
			Name:      "latency_seconds",
			Help:      "Ranking query latency in seconds",
			Buckets:   cfg.LatencyBuckets,
		},
	)

	c.queries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recall",
			Subsystem: "query",
			Name:      "total",
			Help:      "Total number of ranking queries by candidate source",
		},
		[]string{"source"},
	)

	c.queryErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recall",
			Subsystem: "query",
			Name:      "rejected_total",
			Help:      "Total number of rejected queries by reason",
		},
		[]string{"reason"},
	)

	c.retries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recall",
			Subsystem: "query",
			Name:      "widened_total",
			Help:      "Queries retried with a widened candidate count",
		},
	)

	c.staleDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recall",
			Subsystem: "query",
			Name:      "stale_candidates_total",
			Help:      "Index candidates discarded because their record was no longer active",
		},
	)

	c.fallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recall",
			Subsystem: "index",
			Name:      "fallback_scans_total",
			Help:      "Queries answered by linear scan because no index snapshot was available",
		},
	)

	c.unavailable = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recall",
			Subsystem: "index",
			Name:      "unavailable_total",
			Help:      "Persisted index snapshots rejected as missing or corrupt",
		},
	)

	c.rebuilds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recall",
			Subsystem: "index",
			Name:      "rebuilds_total",
			Help:      "Index rebuilds by kind and status",
		},
		[]string{"kind", "status"},
	)

	c.rebuildTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "recall",
			Subsystem: "index",
			Name:      "rebuild_seconds",
			Help:      "Index rebuild duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"kind"},
	)

	c.activeRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "recall",
			Subsystem: "store",
			Name:      "active_records",
			Help:      "Number of active embedding records at the last index build",
		},
	)

	c.indexed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "recall",
			Subsystem: "index",
			Name:      "entries",
			Help:      "Number of vectors in the published index snapshot",
		},
	)

	c.pending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "recall",
			Subsystem: "index",
			Name:      "pending_changes",
			Help:      "Record changes not yet folded into the index snapshot",
		},
	)

	c.deletions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recall",
			Subsystem: "forget",
			Name:      "deletions_total",
			Help:      "Deletions by mode",
		},
		[]string{"mode"},
	)

	registry.MustRegister(
		c.queryLatency,
		c.queries,
		c.queryErrors,
		c.retries,
		c.staleDropped,
		c.fallbacks,
		c.unavailable,
		c.rebuilds,
		c.rebuildTime,
		c.activeRecords,
		c.indexed,
		c.pending,
		c.deletions,
	)

	return c
}

// RecordQuery records a completed query.
func (c *Collector) RecordQuery(source string, latency time.Duration) {
	if c == nil {
		return
	}
	c.queries.WithLabelValues(source).Inc()
	c.queryLatency.Observe(latency.Seconds())
}

// RecordRejected records a query rejected during validation.
func (c *Collector) RecordRejected(reason string) {
	if c == nil {
		return
	}
	c.queryErrors.WithLabelValues(reason).Inc()
}

// RecordWidened records a query retried with a larger candidate count.
func (c *Collector) RecordWidened() {
	if c == nil {
		return
	}
	c.retries.Inc()
}

// RecordStale records index candidates dropped during re-validation.
func (c *Collector) RecordStale(count int) {
	if c == nil || count == 0 {
		return
	}
	c.staleDropped.Add(float64(count))
}

// RecordFallback records a query answered by linear scan without a snapshot.
func (c *Collector) RecordFallback() {
	if c == nil {
		return
	}
	c.fallbacks.Inc()
}

// RecordUnavailable records a persisted snapshot that could not be used.
func (c *Collector) RecordUnavailable() {
	if c == nil {
		return
	}
	c.unavailable.Inc()
}

// RecordRebuild records an index rebuild.
func (c *Collector) RecordRebuild(kind string, elapsed time.Duration, success bool) {
	if c == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	c.rebuilds.WithLabelValues(kind, status).Inc()
	c.rebuildTime.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// SetIndexSizes publishes the sizes observed at the last index change.
func (c *Collector) SetIndexSizes(active, indexed, pending int) {
	if c == nil {
		return
	}
	c.activeRecords.Set(float64(active))
	c.indexed.Set(float64(indexed))
	c.pending.Set(float64(pending))
}

// SetPending publishes the number of unfolded record changes.
func (c *Collector) SetPending(pending int) {
	if c == nil {
		return
	}
	c.pending.Set(float64(pending))
}

// RecordDeletion records a soft or hard deletion.
func (c *Collector) RecordDeletion(mode string) {
	if c == nil {
		return
	}
	c.deletions.WithLabelValues(mode).Inc()
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
