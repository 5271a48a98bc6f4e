// Package metrics exposes Prometheus collectors for the rank tracker.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rank_crawler_pages_total",
			Help: "Total number of listing pages fetched, labeled by region and outcome.",
		},
		[]string{"region", "outcome"},
	)

	crawlerItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rank_crawler_items_total",
			Help: "Total number of ranked items captured in snapshots, labeled by region.",
		},
		[]string{"region"},
	)

	regionAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rank_crawler_region_attempts_total",
			Help: "Region crawl attempts, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	regionResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rank_crawler_region_results_total",
			Help: "Final region results per run, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	historyPointsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rank_tracker_history_points_total",
			Help: "History points written, labeled by region and change kind.",
		},
		[]string{"region", "kind"},
	)

	matchCollisionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rank_tracker_match_collisions_total",
			Help: "Identifiers matched by more than one tracked pattern.",
		},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rank_crawler_runs_total",
			Help: "Completed orchestration runs, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	runDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rank_crawler_run_duration_seconds",
			Help:    "Wall time of orchestration runs.",
			Buckets: []float64{60, 300, 600, 1200, 1800, 3600, 7200},
		},
	)

	rateLimitDelaySeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rank_crawler_rate_limit_delay_seconds",
			Help:    "Histogram of politeness delay waits.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
	)

	breakerStateChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rank_crawler_breaker_state_changes_total",
			Help: "Fetch circuit breaker transitions, labeled by target state.",
		},
		[]string{"state"},
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

// ObservePage records one page fetch.
func ObservePage(region, outcome string) {
	crawlerPagesTotal.WithLabelValues(region, outcome).Inc()
}

// ObserveItems records the size of a stored snapshot.
func ObserveItems(region string, n int) {
	if n > 0 {
		crawlerItemsTotal.WithLabelValues(region).Add(float64(n))
	}
}

// ObserveRegionAttempt records one region crawl attempt.
func ObserveRegionAttempt(outcome string) {
	regionAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRegionResult records the final status of a region within a run.
func ObserveRegionResult(outcome string) {
	regionResultsTotal.WithLabelValues(outcome).Inc()
}

// ObserveHistoryPoint records one written history point.
func ObserveHistoryPoint(region, kind string) {
	historyPointsTotal.WithLabelValues(region, kind).Inc()
}

// ObserveCollision records an identifier matched by several patterns.
func ObserveCollision() {
	matchCollisionsTotal.Inc()
}

// ObserveRun records a finished orchestration run.
func ObserveRun(outcome string, duration time.Duration) {
	runsTotal.WithLabelValues(outcome).Inc()
	runDurationSeconds.Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(duration time.Duration) {
	rateLimitDelaySeconds.Observe(duration.Seconds())
}

// ObserveBreakerState records a circuit breaker transition.
func ObserveBreakerState(state string) {
	breakerStateChangesTotal.WithLabelValues(state).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		ObserveHTTPRequest(r.Method, route, rec.statusCode, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}
