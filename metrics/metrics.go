// Package metrics provides Prometheus metrics for the analyzer.
//
// HTTP traffic:
//   - http_request_total: Counter with method, path, and status labels
//   - http_request_duration_seconds: Histogram with method and path labels
//   - http_request_in_flight: Gauge for concurrent requests
//
// Pipeline:
//   - ocr_attempts_total: Counter with provider, variant, and outcome labels
//   - generic_resolutions_total: Counter with source label
//   - external_call_duration_seconds: Histogram per upstream service
//   - generics_cache_entries: Gauge of entries in the alternatives cache
//
// All metrics are registered with the Prometheus default registry during
// package initialization.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// OCR attempt outcomes
const (
	OutcomeAccepted = "accepted"
	OutcomeShort    = "short"
	OutcomeError    = "error"
	OutcomeSkipped  = "skipped"
)

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "HTTP request latency",
			// Prescription uploads go through several remote models
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Total number of rate limiter buckets (IPs seen in last ~5 minutes)",
		},
	)

	OCRAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ocr_attempts_total",
			Help: "OCR attempts by provider, image variant and outcome",
		},
		[]string{"provider", "variant", "outcome"},
	)

	GenericResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generic_resolutions_total",
			Help: "Generic alternative resolutions by source",
		},
		[]string{"source"},
	)

	ExternalCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "external_call_duration_seconds",
			Help:    "Latency of calls to upstream services",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"service", "outcome"},
	)

	GenericsCacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "generics_cache_entries",
			Help: "Entries held in the generic alternatives cache",
		},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestTotals)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestInFlight)
	prometheus.MustRegister(RateLimiterBucketsTotal)
	prometheus.MustRegister(OCRAttemptsTotal)
	prometheus.MustRegister(GenericResolutionsTotal)
	prometheus.MustRegister(ExternalCallDuration)
	prometheus.MustRegister(GenericsCacheEntries)
}

// ObserveExternalCall records one upstream call
func ObserveExternalCall(service string, seconds float64, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ExternalCallDuration.WithLabelValues(service, outcome).Observe(seconds)
}
