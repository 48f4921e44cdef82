package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP surface
// and the scoring pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	extractionDuration *prometheus.HistogramVec
	extractionFailures prometheus.Counter
	ocrFallbacks       prometheus.Counter
	scoringDuration    prometheus.Histogram
	scoringFailures    prometheus.Counter
	activeRuns         prometheus.Gauge
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	extractionDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "extraction_duration_seconds",
		Help:    "Duration of document text extraction",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"method"})

	extractionFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "extraction_failures_total",
		Help: "Total document extractions that produced no text",
	})

	ocrFallbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ocr_fallbacks_total",
		Help: "Total PDF extractions that escalated to vision OCR",
	})

	scoringDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scoring_duration_seconds",
		Help:    "Duration of officer scoring runs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
	})

	scoringFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scoring_failures_total",
		Help: "Total scoring runs that ended in error",
	})

	activeRuns := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scoring_runs_active",
		Help: "Scoring runs currently in flight",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheHits, cacheMisses,
		extractionDuration, extractionFailures, ocrFallbacks, scoringDuration, scoringFailures,
		activeRuns, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:           registry,
		handler:            handler,
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		extractionDuration: extractionDuration,
		extractionFailures: extractionFailures,
		ocrFallbacks:       ocrFallbacks,
		scoringDuration:    scoringDuration,
		scoringFailures:    scoringFailures,
		activeRuns:         activeRuns,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveExtraction records one per-file extraction.
func (m *MetricsService) ObserveExtraction(method string, duration time.Duration) {
	if m == nil {
		return
	}
	m.extractionDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordExtractionFailure counts a file that yielded no text.
func (m *MetricsService) RecordExtractionFailure() {
	if m == nil {
		return
	}
	m.extractionFailures.Inc()
}

// RecordOCRFallback counts a PDF that escalated to vision OCR.
func (m *MetricsService) RecordOCRFallback() {
	if m == nil {
		return
	}
	m.ocrFallbacks.Inc()
}

// ObserveScoring records the outcome of one scoring run.
func (m *MetricsService) ObserveScoring(duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.scoringDuration.Observe(duration.Seconds())
	if failed {
		m.scoringFailures.Inc()
	}
}

// RunStarted marks a scoring run in flight.
func (m *MetricsService) RunStarted() {
	if m == nil {
		return
	}
	m.activeRuns.Inc()
}

// RunFinished marks a scoring run complete.
func (m *MetricsService) RunFinished() {
	if m == nil {
		return
	}
	m.activeRuns.Dec()
}
