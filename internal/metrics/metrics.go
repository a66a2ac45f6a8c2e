// Package metrics exposes Prometheus collectors for the pipeline. Collectors
// are registered at package init so every Observe helper is safe to call
// from any command path.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openfda_requests_total",
			Help: "Total openFDA API requests, labeled by product type and status code.",
		},
		[]string{"product_type", "code"},
	)

	apiRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openfda_request_duration_seconds",
			Help:    "Histogram of openFDA request latencies, labeled by product type.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"product_type"},
	)

	rateLimitDelaySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "openfda_rate_limit_delay_seconds",
			Help:    "Histogram of waits imposed by the client-side rate limiter.",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	stageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Wall time per pipeline stage execution.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	stageRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_runs_total",
			Help: "Total pipeline stage executions, labeled by stage and result.",
		},
		[]string{"stage", "result"},
	)

	chartsRenderedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "charts_rendered_total",
			Help: "Total chart files rendered.",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests served, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of served HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"method", "route"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAPIRequest increments the openFDA request metrics.
func ObserveAPIRequest(productType string, code int, duration time.Duration) {
	apiRequestsTotal.WithLabelValues(productType, strconv.Itoa(code)).Inc()
	apiRequestDurationSeconds.WithLabelValues(productType).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	rateLimitDelaySeconds.Observe(duration.Seconds())
}

// ObserveStage records one pipeline stage execution.
func ObserveStage(stage, result string, duration time.Duration) {
	stageRunsTotal.WithLabelValues(stage, result).Inc()
	stageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveChartRendered increments the rendered chart counter.
func ObserveChartRendered() {
	chartsRenderedTotal.Inc()
}

// ObserveHTTPRequest increments the served HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
