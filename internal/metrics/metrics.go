// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	booksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_books_total",
			Help: "Catalog entries processed, labeled by outcome (saved, skip, error, dropped).",
		},
		[]string{"outcome"},
	)

	fetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_fetch_attempts_total",
			Help: "HTTP attempts issued, labeled by site and classified result.",
		},
		[]string{"site", "result"},
	)

	fetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_fetch_bytes_total",
			Help: "Bytes downloaded on successful attempts, labeled by site.",
		},
		[]string{"site"},
	)

	backoffSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvester_backoff_seconds",
			Help:    "Backoff durations slept between retries.",
			Buckets: []float64{0.1, 0.5, 1, 2, 4, 8, 16, 32},
		},
	)

	inFlightFetches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "harvester_inflight_fetches",
			Help: "Network fetches currently holding a concurrency slot.",
		},
	)

	pagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_catalog_pages_total",
			Help: "Catalog pages fetched and decoded.",
		},
	)

	rateLimitDelay = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvester_rate_limit_delay_seconds",
			Help:    "Time spent waiting on the per-host request rate cap.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"site"},
	)

	robotsDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_robots_denied_total",
			Help: "Fetches skipped because robots.txt disallowed them.",
		},
		[]string{"site"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_http_requests_total",
			Help: "Status server requests, labeled by method, route and status code.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvester_http_request_duration_seconds",
			Help:    "Status server request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	collectedBooks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "harvester_collected_books",
			Help: "Books currently recorded in the checkpoint.",
		},
	)
)

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveBook counts one terminal entry outcome.
func ObserveBook(outcome string) {
	booksTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetchAttempt counts one transport attempt and its payload size.
func ObserveFetchAttempt(rawURL, result string, bytesFetched int) {
	site := SanitizeSite(rawURL)
	fetchAttemptsTotal.WithLabelValues(site, result).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveBackoff records a retry sleep.
func ObserveBackoff(d time.Duration) {
	backoffSeconds.Observe(d.Seconds())
}

// IncInFlight increments the in-flight fetch gauge.
func IncInFlight() {
	inFlightFetches.Inc()
}

// DecInFlight decrements the in-flight fetch gauge.
func DecInFlight() {
	inFlightFetches.Dec()
}

// ObservePage counts a decoded catalog page.
func ObservePage() {
	pagesTotal.Inc()
}

// ObserveRateLimitDelay records how long a fetch waited for a rate token.
func ObserveRateLimitDelay(site string, d time.Duration) {
	rateLimitDelay.WithLabelValues(site).Observe(d.Seconds())
}

// ObserveRobotsDenied counts a robots.txt refusal.
func ObserveRobotsDenied(rawURL string) {
	robotsDenied.WithLabelValues(SanitizeSite(rawURL)).Inc()
}

// SetCollected publishes the checkpoint size.
func SetCollected(n int) {
	collectedBooks.Set(float64(n))
}
