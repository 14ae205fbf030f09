// Package metrics exposes Prometheus instrumentation for the query pipeline
// and the HTTP surface. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "analyst"

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	queries       *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	searchHits    prometheus.Histogram
	threats       *prometheus.CounterVec
	anomalies     prometheus.Counter
	riskScore     prometheus.Histogram
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry, plus the Go runtime and
// process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		queries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "queries_total",
				Help:      "Processed queries by intent and outcome",
			},
			[]string{"intent", "outcome"},
		),

		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Time spent in each pipeline stage",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),

		searchHits: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_hits",
				Help:      "Total hits reported by the search backend",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
		),

		threats: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "threats_detected_total",
				Help:      "Threat findings by type",
			},
			[]string{"threat_type"},
		),

		anomalies: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "anomalies_detected_total",
				Help:      "Anomalous events flagged by the anomaly model",
			},
		),

		riskScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "risk_score",
				Help:      "Risk score of analyzed batches",
				Buckets:   prometheus.LinearBuckets(0, 10, 11),
			},
		),

		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),

		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordQuery counts one processed query.
func (m *Metrics) RecordQuery(intent, outcome string) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(intent, outcome).Inc()
}

// ObserveStage records the time since start against a pipeline stage.
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// ObserveSearch records the hit count of one search.
func (m *Metrics) ObserveSearch(totalHits int) {
	if m == nil {
		return
	}
	m.searchHits.Observe(float64(totalHits))
}

// RecordAnalysis records the outcome of one detection run.
func (m *Metrics) RecordAnalysis(threatTypes []string, anomalies, riskScore int) {
	if m == nil {
		return
	}
	for _, t := range threatTypes {
		m.threats.WithLabelValues(t).Inc()
	}
	m.anomalies.Add(float64(anomalies))
	m.riskScore.Observe(float64(riskScore))
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route, method, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, status).Inc()
	m.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
