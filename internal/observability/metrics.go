package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// detection engine and its ingest pipeline.
type Metrics struct {
	// Detection metrics.
	DetectionsTotal   *prometheus.CounterVec   // labels: path={live,cached}
	DetectionDuration *prometheus.HistogramVec // labels: path={live,cached}
	OutliersFlagged   prometheus.Counter
	Exclusions        prometheus.Counter

	// Cache and refresh metrics.
	CacheLookups    *prometheus.CounterVec // labels: result={hit,miss,error}
	CacheEntries    prometheus.Gauge
	RefreshesTotal  *prometheus.CounterVec // labels: outcome={success,conflict,error}
	RefreshDuration prometheus.Histogram

	// Ingest metrics.
	ReadingsConsumed prometheus.Counter
	ReadingsRejected prometheus.Counter
	IngestBatchSize  prometheus.Histogram
	IngestRunning    prometheus.Gauge

	// Suggestion publishing.
	SuggestionsPublished prometheus.Counter
}

// NewMetrics creates and registers all engine metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.DetectionsTotal,
		m.DetectionDuration,
		m.OutliersFlagged,
		m.Exclusions,
		m.CacheLookups,
		m.CacheEntries,
		m.RefreshesTotal,
		m.RefreshDuration,
		m.ReadingsConsumed,
		m.ReadingsRejected,
		m.IngestBatchSize,
		m.IngestRunning,
		m.SuggestionsPublished,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		DetectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sealevel_rules",
			Name:      "detections_total",
			Help:      "Detection queries served, by execution path.",
		}, []string{"path"}),
		DetectionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sealevel_rules",
			Name:      "detection_duration_seconds",
			Help:      "Duration of a detection query, by execution path.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"path"}),
		OutliersFlagged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sealevel_rules",
			Name:      "outliers_flagged_total",
			Help:      "Measurements classified as outliers.",
		}),
		Exclusions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sealevel_rules",
			Name:      "validation_exclusions_total",
			Help:      "Measurements excluded because the baseline quorum failed.",
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sealevel_rules",
			Name:      "cache_lookups_total",
			Help:      "Outlier cache lookups by result.",
		}, []string{"result"}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sealevel_rules",
			Name:      "cache_entries",
			Help:      "Snapshot entries currently held by the outlier cache.",
		}),
		RefreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sealevel_rules",
			Name:      "cache_refreshes_total",
			Help:      "Cache refresh attempts by outcome.",
		}, []string{"outcome"}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sealevel_rules",
			Name:      "cache_refresh_duration_seconds",
			Help:      "Duration of a full cache refresh.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
		ReadingsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sealevel_rules",
			Name:      "readings_consumed_total",
			Help:      "Gauge readings read from the source topic.",
		}),
		ReadingsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sealevel_rules",
			Name:      "readings_rejected_total",
			Help:      "Readings dropped during parsing or station validation.",
		}),
		IngestBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sealevel_rules",
			Name:      "ingest_batch_size",
			Help:      "Readings per batch consumed from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 50, 100, 200, 500},
		}),
		IngestRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sealevel_rules",
			Name:      "ingest_running",
			Help:      "1 when the ingest pipeline is active, 0 when shut down.",
		}),
		SuggestionsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sealevel_rules",
			Name:      "suggestions_published_total",
			Help:      "Correction suggestions published to the sink topic.",
		}),
	}
}
