// Package metrics registers the service's Prometheus collectors.
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
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duet_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	SpotifyRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duet_spotify_requests_total",
			Help: "Spotify API requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	SpotifyRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "duet_spotify_retries_total",
			Help: "Spotify API requests retried after a transient failure",
		},
	)

	SpotifyEstimatedFeatures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "duet_spotify_estimated_features_total",
			Help: "Tracks whose audio features had to be estimated",
		},
	)

	// CircuitBreakerState is 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "duet_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duet_circuit_breaker_requests_total",
			Help: "Requests through a circuit breaker by result",
		},
		[]string{"name", "result"},
	)

	MatchScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "duet_match_score",
			Help:    "Distribution of computed compatibility scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	ProfileCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duet_profile_cache_lookups_total",
			Help: "Taste profile cache lookups by result",
		},
		[]string{"result"},
	)

	WorkerJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duet_worker_jobs_total",
			Help: "Background jobs by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	WorkerQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "duet_worker_queue_depth",
			Help: "Jobs waiting in the worker queue",
		},
	)
)

// ObserveHTTP records a finished request.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
