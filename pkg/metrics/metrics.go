// Package metrics defines the Prometheus collectors used by the ingestion and
// query paths and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	IngestOutcomesTotal  *prometheus.CounterVec
	IngestDuration       *prometheus.HistogramVec
	IngestInFlight       prometheus.Gauge
	PagesStoredTotal     *prometheus.CounterVec
	OCRImagesTotal       *prometheus.CounterVec
	DeskewAngle          prometheus.Histogram
	QueriesTotal         *prometheus.CounterVec
	QueryLatency         *prometheus.HistogramVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	EventsPublishedTotal *prometheus.CounterVec
}

// New creates all collectors and registers them on reg. Passing nil uses the
// default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
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
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 30},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		IngestOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_outcomes_total",
				Help: "Files processed by the ingestion coordinator by category and outcome.",
			},
			[]string{"category", "outcome"},
		),
		IngestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_file_duration_seconds",
				Help:    "Wall time spent on one file, by extraction path.",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"path"},
		),
		IngestInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_files_in_flight",
				Help: "Files currently being ingested.",
			},
		),
		PagesStoredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pages_stored_total",
				Help: "Page rows written to the document store by provenance.",
			},
			[]string{"source"},
		),
		OCRImagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ocr_images_total",
				Help: "Embedded images sent to recognition by status (ok, failed, skipped).",
			},
			[]string{"status"},
		),
		DeskewAngle: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "deskew_correction_degrees",
				Help:    "Absolute rotation applied to embedded images before recognition.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 45},
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queries_total",
				Help: "Keyword queries by result type (match, empty, error).",
			},
			[]string{"result_type"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "query_latency_seconds",
				Help:    "Keyword query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
			},
			[]string{"cache_status"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "query_cache_hits_total",
				Help: "Total number of query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "query_cache_misses_total",
				Help: "Total number of query cache misses.",
			},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_events_published_total",
				Help: "Document-ingested events by publication status.",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.IngestOutcomesTotal,
		m.IngestDuration,
		m.IngestInFlight,
		m.PagesStoredTotal,
		m.OCRImagesTotal,
		m.DeskewAngle,
		m.QueriesTotal,
		m.QueryLatency,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.EventsPublishedTotal,
	)

	return m
}

// NewUnregistered returns collectors attached to a private registry. Tests
// and tools that do not expose /metrics use it.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
