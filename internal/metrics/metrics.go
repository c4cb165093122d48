// Package metrics exposes Prometheus collectors for the harvester.
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
	linksDiscoveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_links_discovered_total",
			Help: "Total candidate links discovered, labeled by discovery method.",
		},
		[]string{"method"},
	)

	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_fetches_total",
			Help: "Total fetch attempts resolved, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	fetchDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvester_fetch_duration_seconds",
			Help:    "Histogram of end-to-end fetch latencies including retries.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	duplicatesSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_duplicates_skipped_total",
			Help: "Total downloads discarded because the content hash was already registered.",
		},
	)

	extractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_extractions_total",
			Help: "Total records produced, labeled by extraction method.",
		},
		[]string{"method"},
	)

	recordsWrittenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_records_written_total",
			Help: "Total records appended to the output stream.",
		},
	)

	probeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_probe_requests_total",
			Help: "Total content-type probes issued, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvester_rate_limit_delays_seconds",
			Help:    "Histogram of rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "harvester_active_workers",
			Help: "Number of workers currently processing a candidate.",
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// IncLinkDiscovered counts one discovered candidate.
func IncLinkDiscovered(method string) {
	linksDiscoveredTotal.WithLabelValues(method).Inc()
}

// IncFetch counts one resolved fetch by outcome.
func IncFetch(outcome string) {
	fetchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetchDuration records one fetch latency.
func ObserveFetchDuration(d time.Duration) {
	fetchDurationSeconds.Observe(d.Seconds())
}

// IncDuplicateSkipped counts a download discarded by the dedup store.
func IncDuplicateSkipped() {
	duplicatesSkippedTotal.Inc()
}

// IncExtraction counts one produced record by extraction method.
func IncExtraction(method string) {
	extractionsTotal.WithLabelValues(method).Inc()
}

// IncRecordWritten counts one record appended to the output.
func IncRecordWritten() {
	recordsWrittenTotal.Inc()
}

// IncProbe counts one content-type probe by outcome.
func IncProbe(outcome string) {
	probeRequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
