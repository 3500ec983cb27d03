// Package metrics exposes Prometheus collectors for the ingestion and
// transform stages.
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
	fetchAttemptsTotal         *prometheus.CounterVec
	rawObjectsTotal            *prometheus.CounterVec
	rawBytesTotal              *prometheus.CounterVec
	recordsRejectedTotal       *prometheus.CounterVec
	curatedRowsTotal           *prometheus.CounterVec
	partitionsWrittenTotal     *prometheus.CounterVec
	sourceOutcomesTotal        *prometheus.CounterVec
	runDurationSeconds         *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lakeingest_fetch_attempts_total",
				Help: "API fetch attempts, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		rawObjectsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lakeingest_raw_objects_total",
				Help: "Raw objects staged, labeled by source.",
			},
			[]string{"source"},
		)

		rawBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lakeingest_raw_bytes_total",
				Help: "Bytes of raw JSON staged, labeled by source.",
			},
			[]string{"source"},
		)

		recordsRejectedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lakeingest_records_rejected_total",
				Help: "Raw records dropped during read or normalization, labeled by source and reason.",
			},
			[]string{"source", "reason"},
		)

		curatedRowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lakeingest_curated_rows_total",
				Help: "Rows written to curated partitions, labeled by source.",
			},
			[]string{"source"},
		)

		partitionsWrittenTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lakeingest_partitions_written_total",
				Help: "Curated partitions written, labeled by source.",
			},
			[]string{"source"},
		)

		sourceOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lakeingest_source_outcomes_total",
				Help: "Per-source run outcomes, labeled by stage, source and status.",
			},
			[]string{"stage", "source", "status"},
		)

		runDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lakeingest_run_duration_seconds",
				Help:    "Histogram of run durations, labeled by stage.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"stage"},
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

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lakeingest_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-host request limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"host"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetchAttempt counts one fetch attempt outcome.
func ObserveFetchAttempt(source, outcome string) {
	Init()
	fetchAttemptsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveRawObject counts a staged raw object and its size.
func ObserveRawObject(source string, bytes int) {
	Init()
	rawObjectsTotal.WithLabelValues(source).Inc()
	if bytes > 0 {
		rawBytesTotal.WithLabelValues(source).Add(float64(bytes))
	}
}

// ObserveRecordsRejected counts records dropped for the given reason.
func ObserveRecordsRejected(source, reason string, n int) {
	if n <= 0 {
		return
	}
	Init()
	recordsRejectedTotal.WithLabelValues(source, reason).Add(float64(n))
}

// ObservePartition counts a written curated partition and its rows.
func ObservePartition(source string, rows int) {
	Init()
	partitionsWrittenTotal.WithLabelValues(source).Inc()
	curatedRowsTotal.WithLabelValues(source).Add(float64(rows))
}

// ObserveSourceOutcome counts the final status of a source within a run.
func ObserveSourceOutcome(stage, source, status string) {
	Init()
	sourceOutcomesTotal.WithLabelValues(stage, source, status).Inc()
}

// ObserveRun records the wall time of a complete run.
func ObserveRun(stage string, duration time.Duration) {
	Init()
	runDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records time spent waiting for a request token.
func ObserveRateLimitDelay(host string, delay time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(delay.Seconds())
}
