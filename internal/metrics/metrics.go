// Package metrics exposes Prometheus collectors for the crawler.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	apiRequestsTotal           *prometheus.CounterVec
	apiRequestDurationSeconds  *prometheus.HistogramVec
	credentialRefreshesTotal   *prometheus.CounterVec
	acquisitionDurationSeconds prometheus.Histogram
	listingsIngestedTotal      prometheus.Counter
	detailsMissingTotal        prometheus.Counter
	pagesCommittedTotal        prometheus.Counter
	runsTotal                  *prometheus.CounterVec
	opsRequestsTotal           *prometheus.CounterVec
	opsRequestDurationSeconds  *prometheus.HistogramVec
	apiRateLimitDelaysSeconds  prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		apiRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eures_api_requests_total",
				Help: "Total number of upstream API requests, labeled by endpoint and status code.",
			},
			[]string{"endpoint", "code"},
		)

		apiRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eures_api_request_duration_seconds",
				Help:    "Histogram of upstream API latencies, labeled by endpoint.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"endpoint"},
		)

		credentialRefreshesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eures_credential_refreshes_total",
				Help: "Total number of session credential acquisitions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		acquisitionDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "eures_session_acquisition_duration_seconds",
				Help:    "Histogram of browser session acquisition durations.",
				Buckets: []float64{1, 2, 5, 7, 10, 15, 30, 60},
			},
		)

		listingsIngestedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "eures_listings_ingested_total",
				Help: "Total number of listings upserted into the repository.",
			},
		)

		detailsMissingTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "eures_details_missing_total",
				Help: "Total number of listings stored without a detail document.",
			},
		)

		pagesCommittedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "eures_pages_committed_total",
				Help: "Total number of search pages committed to the repository.",
			},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eures_runs_total",
				Help: "Total number of ingestion runs, labeled by status.",
			},
			[]string{"status"},
		)

		opsRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eures_ops_http_requests_total",
				Help: "Total number of ops server requests, labeled by method, route and code.",
			},
			[]string{"method", "route", "code"},
		)

		opsRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eures_ops_http_request_duration_seconds",
				Help:    "Histogram of ops server latencies, labeled by route.",
				Buckets: []float64{0.005, 0.025, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"route"},
		)

		apiRateLimitDelaysSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "eures_api_rate_limit_delays_seconds",
				Help:    "Histogram of request pacing wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAPIRequest records one upstream call. A zero code means the request never got a response.
func ObserveAPIRequest(endpoint string, code int, duration time.Duration) {
	Init()
	apiRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	apiRequestDurationSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveCredentialRefresh records the outcome of a session acquisition.
func ObserveCredentialRefresh(outcome string, duration time.Duration) {
	Init()
	credentialRefreshesTotal.WithLabelValues(outcome).Inc()
	acquisitionDurationSeconds.Observe(duration.Seconds())
}

// ObservePage records a committed page and the listings it carried.
func ObservePage(ingested, missingDetails int) {
	Init()
	pagesCommittedTotal.Inc()
	listingsIngestedTotal.Add(float64(ingested))
	detailsMissingTotal.Add(float64(missingDetails))
}

// ObserveRun increments the run counter for the given status.
func ObserveRun(status string) {
	Init()
	runsTotal.WithLabelValues(status).Inc()
}

// ObserveOpsRequest records one request served by the ops server.
func ObserveOpsRequest(method, route string, code int, duration time.Duration) {
	Init()
	opsRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	opsRequestDurationSeconds.WithLabelValues(route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a pacing wait.
func ObserveRateLimitDelay(duration time.Duration) {
	Init()
	apiRateLimitDelaysSeconds.Observe(duration.Seconds())
}
