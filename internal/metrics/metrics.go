// Package metrics exposes the coordinator's Prometheus series: HTTP
// request counts/latency (same call sites as the teacher's hand-rolled
// metrics package) plus crawl-specific counters for job and worker-loop
// outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siftcrawl_http_requests_total",
		Help: "Total HTTP requests handled by the dispatcher, by method, path and status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "siftcrawl_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds, by method and path.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	jobsClaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "siftcrawl_jobs_claimed_total",
		Help: "Total jobs successfully claimed via GetJob.",
	})

	jobsExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "siftcrawl_jobs_claim_exhausted_total",
		Help: "Total GetJob calls that found nothing claimable.",
	})

	jobsOutcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siftcrawl_jobs_outcome_total",
		Help: "Total ReturnJob calls, by outcome (ok, err).",
	}, []string{"outcome"})

	workerBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "siftcrawl_worker_backoff_seconds",
		Help:    "Backoff duration a worker slept for after an exhausted GetJob call.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	})
)

// RecordRequest records one completed HTTP request, same shape as the
// teacher's middleware call site.
func RecordRequest(method, path string, status int, latencySeconds float64) {
	statusLabel := statusLabel(status)
	requestsTotal.WithLabelValues(method, path, statusLabel).Inc()
	requestDuration.WithLabelValues(method, path).Observe(latencySeconds)
}

// RecordJobClaimed records a successful GetJob claim.
func RecordJobClaimed() {
	jobsClaimedTotal.Inc()
}

// RecordJobClaimExhausted records a GetJob call with nothing to claim.
func RecordJobClaimExhausted() {
	jobsExhaustedTotal.Inc()
}

// RecordJobOutcome records a ReturnJob call's outcome ("ok" or "err").
func RecordJobOutcome(outcome string) {
	jobsOutcomeTotal.WithLabelValues(outcome).Inc()
}

// RecordWorkerBackoff records how long a worker slept before retrying
// GetJob after an exhausted claim.
func RecordWorkerBackoff(seconds float64) {
	workerBackoffSeconds.Observe(seconds)
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}
