// Package metrics defines the Prometheus collectors for the matcher and
// exposes an HTTP handler for scraping. Each Metrics owns its registry so
// several instances can coexist in one process.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Match outcomes recorded by MatchQueriesTotal.
const (
	ResultMatched = "matched"
	ResultEmpty   = "empty"
	ResultCount   = "count"
	ResultError   = "error"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	MatchQueriesTotal    *prometheus.CounterVec
	MatchStageDuration   *prometheus.HistogramVec
	MatchCandidates      prometheus.Histogram
	MatchResultsCount    prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	BatchLinesTotal      *prometheus.CounterVec
	CorpusRecords        prometheus.Gauge
	CorpusTerms          prometheus.Gauge
	CorpusPostings       prometheus.Gauge
	CircuitState         *prometheus.GaugeVec
}

// New creates and registers all collectors on a fresh registry, along with
// the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		MatchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "match_queries_total",
				Help: "Total match queries by outcome (matched, empty, count, error).",
			},
			[]string{"result"},
		),
		MatchStageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "match_stage_duration_seconds",
				Help:    "Time spent in each matching stage.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
			},
			[]string{"stage"},
		),
		MatchCandidates: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "match_candidates",
				Help:    "Number of candidates retrieved per match query.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
		),
		MatchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "match_results_count",
				Help:    "Number of results returned per match query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of match cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of match cache misses.",
			},
		),
		BatchLinesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batch_lines_total",
				Help: "Batch lines processed by outcome (hit, miss, error).",
			},
			[]string{"outcome"},
		),
		CorpusRecords: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "corpus_records",
				Help: "Number of records in the loaded corpus.",
			},
		),
		CorpusTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "corpus_terms",
				Help: "Number of distinct terms in the inverted index.",
			},
		),
		CorpusPostings: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "corpus_postings",
				Help: "Total number of postings in the inverted index.",
			},
		),
		CircuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "backend_circuit_state",
				Help: "Circuit breaker state per backend (0 closed, 1 open, 2 half-open).",
			},
			[]string{"backend"},
		),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.MatchQueriesTotal,
		m.MatchStageDuration,
		m.MatchCandidates,
		m.MatchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.BatchLinesTotal,
		m.CorpusRecords,
		m.CorpusTerms,
		m.CorpusPostings,
		m.CircuitState,
	)

	return m
}

// ObserveStage records the duration of one matching stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.MatchStageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// SetCorpus publishes corpus size gauges.
func (m *Metrics) SetCorpus(records, terms, postings int) {
	m.CorpusRecords.Set(float64(records))
	m.CorpusTerms.Set(float64(terms))
	m.CorpusPostings.Set(float64(postings))
}

// Handler returns the Prometheus scrape HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
