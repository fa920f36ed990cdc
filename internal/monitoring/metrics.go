package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the metrics surface used by the analysis pipeline
type Recorder interface {
	// Analysis metrics
	RecordAnalysis(status string, cached bool, duration time.Duration)
	RecordComputation(status string, duration time.Duration)

	// Cache metrics
	RecordCacheOperation(tier, result string)
	IncrementCacheStoreFailures(operation string)

	// Price provider metrics
	RecordPriceFetch(provider, status string, duration time.Duration)
	IncrementPriceFetchRetries(provider string)
}

type prometheusMetrics struct {
	analysisRequestsTotal *prometheus.CounterVec
	analysisDuration      *prometheus.HistogramVec

	computationsTotal   *prometheus.CounterVec
	computationDuration prometheus.Histogram

	cacheOperationsTotal    *prometheus.CounterVec
	cacheStoreFailuresTotal *prometheus.CounterVec

	priceFetchTotal        *prometheus.CounterVec
	priceFetchDuration     *prometheus.HistogramVec
	priceFetchRetriesTotal *prometheus.CounterVec
}

// NewPrometheusMetrics registers the collectors on reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewPrometheusMetrics(reg prometheus.Registerer) Recorder {
	factory := promauto.With(reg)

	return &prometheusMetrics{
		analysisRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_analytics_analysis_requests_total",
				Help: "Total number of analysis requests",
			},
			[]string{"status", "cached"},
		),
		analysisDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portfolio_analytics_analysis_duration_seconds",
				Help:    "End to end analysis duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"cached"},
		),
		computationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_analytics_computations_total",
				Help: "Total number of pipeline computations (cache misses)",
			},
			[]string{"status"},
		),
		computationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "portfolio_analytics_computation_duration_seconds",
				Help:    "Pipeline computation duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		cacheOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_analytics_cache_operations_total",
				Help: "Result cache lookups by tier and result",
			},
			[]string{"tier", "result"},
		),
		cacheStoreFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_analytics_cache_store_failures_total",
				Help: "Cache store operations that failed and were bypassed",
			},
			[]string{"operation"},
		),
		priceFetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_analytics_price_fetch_total",
				Help: "Price series fetches by provider and outcome",
			},
			[]string{"provider", "status"},
		),
		priceFetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portfolio_analytics_price_fetch_duration_seconds",
				Help:    "Price series fetch duration in seconds, retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		priceFetchRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portfolio_analytics_price_fetch_retries_total",
				Help: "Retried price fetch attempts",
			},
			[]string{"provider"},
		),
	}
}

func (m *prometheusMetrics) RecordAnalysis(status string, cached bool, duration time.Duration) {
	label := boolLabel(cached)
	m.analysisRequestsTotal.WithLabelValues(status, label).Inc()
	m.analysisDuration.WithLabelValues(label).Observe(duration.Seconds())
}

func (m *prometheusMetrics) RecordComputation(status string, duration time.Duration) {
	m.computationsTotal.WithLabelValues(status).Inc()
	m.computationDuration.Observe(duration.Seconds())
}

func (m *prometheusMetrics) RecordCacheOperation(tier, result string) {
	m.cacheOperationsTotal.WithLabelValues(tier, result).Inc()
}

func (m *prometheusMetrics) IncrementCacheStoreFailures(operation string) {
	m.cacheStoreFailuresTotal.WithLabelValues(operation).Inc()
}

func (m *prometheusMetrics) RecordPriceFetch(provider, status string, duration time.Duration) {
	m.priceFetchTotal.WithLabelValues(provider, status).Inc()
	m.priceFetchDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func (m *prometheusMetrics) IncrementPriceFetchRetries(provider string) {
	m.priceFetchRetriesTotal.WithLabelValues(provider).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// NopRecorder discards all metrics
type NopRecorder struct{}

func (NopRecorder) RecordAnalysis(string, bool, time.Duration)     {}
func (NopRecorder) RecordComputation(string, time.Duration)        {}
func (NopRecorder) RecordCacheOperation(string, string)            {}
func (NopRecorder) IncrementCacheStoreFailures(string)             {}
func (NopRecorder) RecordPriceFetch(string, string, time.Duration) {}
func (NopRecorder) IncrementPriceFetchRetries(string)              {}
