// Package metrics exposes Prometheus collectors for the KGR services.
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
	kgrJobsTotal               *prometheus.CounterVec
	kgrBatchesTotal            *prometheus.CounterVec
	kgrScrapeQueriesTotal      *prometheus.CounterVec
	kgrTrackerPollsTotal       *prometheus.CounterVec
	kgrStoreThrottleSeconds    *prometheus.HistogramVec
	kgrFetchPromotionsTotal    *prometheus.CounterVec
	kgrActiveWorkers           prometheus.Gauge
	kgrEventSubscribers        prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		kgrJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kgr_jobs_total",
				Help: "Total number of jobs by lifecycle status (submitted, complete, partial_failure).",
			},
			[]string{"status"},
		)

		kgrBatchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kgr_batches_total",
				Help: "Total number of batch transitions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		kgrScrapeQueriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kgr_scrape_queries_total",
				Help: "Total number of search queries issued by workers, labeled by result.",
			},
			[]string{"result"},
		)

		kgrTrackerPollsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kgr_tracker_polls_total",
				Help: "Result store lookups performed by the tracker, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		kgrStoreThrottleSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kgr_store_throttle_seconds",
				Help:    "Histogram of result store throttle waits.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"store"},
		)

		kgrFetchPromotionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kgr_fetch_promotions_total",
				Help: "Plain fetches escalated to the headless renderer, labeled by reason.",
			},
			[]string{"reason"},
		)

		kgrActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kgr_active_workers",
				Help: "Number of workers currently processing a batch.",
			},
		)

		kgrEventSubscribers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kgr_event_subscribers",
				Help: "Number of open progress event subscriptions.",
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
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the job counter for the given status.
func ObserveJob(status string) {
	Init()
	kgrJobsTotal.WithLabelValues(status).Inc()
}

// ObserveBatch increments the batch counter for the given outcome.
func ObserveBatch(outcome string) {
	Init()
	kgrBatchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveScrape records per-batch query counts.
func ObserveScrape(queries, recovered, zeroed int) {
	Init()
	ok := queries - recovered - zeroed
	if ok < 0 {
		ok = 0
	}
	kgrScrapeQueriesTotal.WithLabelValues("ok").Add(float64(ok))
	kgrScrapeQueriesTotal.WithLabelValues("recovered").Add(float64(recovered))
	kgrScrapeQueriesTotal.WithLabelValues("zeroed").Add(float64(zeroed))
}

// ObserveTrackerPoll increments the tracker lookup counter.
func ObserveTrackerPoll(outcome string) {
	Init()
	kgrTrackerPollsTotal.WithLabelValues(outcome).Inc()
}

// ObserveStoreThrottle records the duration of a store throttle wait.
func ObserveStoreThrottle(store string, duration time.Duration) {
	Init()
	kgrStoreThrottleSeconds.WithLabelValues(store).Observe(duration.Seconds())
}

// ObserveFetchPromotion counts a plain fetch that was retried headless.
func ObserveFetchPromotion(reason string) {
	Init()
	kgrFetchPromotionsTotal.WithLabelValues(reason).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	kgrActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	kgrActiveWorkers.Dec()
}

// AddEventSubscribers moves the subscription gauge by delta.
func AddEventSubscribers(delta int) {
	Init()
	kgrEventSubscribers.Add(float64(delta))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
