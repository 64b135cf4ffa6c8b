package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// exchange pipeline.
type Metrics struct {
	DocumentsConsumed  prometheus.Counter
	DocumentsPublished prometheus.Counter
	ReconcileErrors    prometheus.Counter
	PipelineRunning    prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Remote jurisdiction fetch metrics.
	FetchRequests *prometheus.CounterVec // labels: outcome={success,error}
	FetchCache    *prometheus.CounterVec // labels: result={hit,miss}
	FetchDuration prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		DocumentsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "open511",
			Name:      "documents_consumed_total",
			Help:      "Total event documents read from the source topic.",
		}),
		DocumentsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "open511",
			Name:      "documents_published_total",
			Help:      "Total rendered documents written to the sink topic.",
		}),
		ReconcileErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "open511",
			Name:      "reconcile_errors_total",
			Help:      "Total event documents that failed to reconcile.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "open511",
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "open511",
			Name:      "batch_size",
			Help:      "Number of documents per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "open511",
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-reconcile-publish cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "open511",
			Name:      "fetch_requests_total",
			Help:      "Remote jurisdiction document fetches by outcome.",
		}, []string{"outcome"}),
		FetchCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "open511",
			Name:      "fetch_cache_total",
			Help:      "Jurisdiction fetch cache lookups by result.",
		}, []string{"result"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "open511",
			Name:      "fetch_duration_seconds",
			Help:      "Remote jurisdiction fetch duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}

	prometheus.MustRegister(
		m.DocumentsConsumed,
		m.DocumentsPublished,
		m.ReconcileErrors,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.FetchRequests,
		m.FetchCache,
		m.FetchDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics with unregistered collectors to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		DocumentsConsumed:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "open511", Name: "documents_consumed_total"}),
		DocumentsPublished:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "open511", Name: "documents_published_total"}),
		ReconcileErrors:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: "open511", Name: "reconcile_errors_total"}),
		PipelineRunning:         prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "open511", Name: "pipeline_running"}),
		BatchSize:               prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "open511", Name: "batch_size"}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "open511", Name: "batch_processing_duration_seconds"}),
		FetchRequests:           prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "open511", Name: "fetch_requests_total"}, []string{"outcome"}),
		FetchCache:              prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "open511", Name: "fetch_cache_total"}, []string{"result"}),
		FetchDuration:           prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "open511", Name: "fetch_duration_seconds"}),
	}
}
