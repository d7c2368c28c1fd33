// Package metrics exposes Prometheus collectors for the catalog crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal             *prometheus.CounterVec
	crawlerFetchDurationSeconds   *prometheus.HistogramVec
	crawlerProductsTotal          *prometheus.CounterVec
	crawlerCategoriesTotal        *prometheus.CounterVec
	crawlerActiveCategories       prometheus.Gauge
	storeUpsertDurationSeconds    *prometheus.HistogramVec
	storeRecordsWrittenTotal      *prometheus.CounterVec
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec
	crawlerRateLimitDelaysSeconds *prometheus.HistogramVec
	crawlerRobotsFallbackTotal    *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_crawler_pages_total",
				Help: "Total number of pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		crawlerFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_crawler_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by site.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
			},
			[]string{"site"},
		)

		crawlerProductsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_crawler_products_total",
				Help: "Total number of product records extracted, labeled by price status.",
			},
			[]string{"price_status"},
		)

		crawlerCategoriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_crawler_categories_total",
				Help: "Total number of categories crawled, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlerActiveCategories = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_crawler_active_categories",
				Help: "Number of category crawls currently holding an admission slot.",
			},
		)

		storeUpsertDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_store_upsert_duration_seconds",
				Help:    "Histogram of batch upsert latencies, labeled by store and result.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"store", "result"},
		)

		storeRecordsWrittenTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_store_records_written_total",
				Help: "Total number of product records confirmed written, labeled by store.",
			},
			[]string{"store"},
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

		crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_crawler_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		crawlerRobotsFallbackTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_crawler_robots_fallback_total",
				Help: "Number of robots.txt probes that fell back to allow-all, labeled by reason.",
			},
			[]string{"reason"},
		)
	})
}

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
	Init()
	return promhttp.Handler()
}

// ObserveFetch records one page fetch. status is an HTTP code or a failure label.
func ObserveFetch(site string, status string, duration time.Duration) {
	Init()
	sanitizedSite := SanitizeSite(site)
	crawlerPagesTotal.WithLabelValues(sanitizedSite, status).Inc()
	crawlerFetchDurationSeconds.WithLabelValues(sanitizedSite).Observe(duration.Seconds())
}

// ObserveProduct counts one extracted product by its price status.
func ObserveProduct(priceStatus string) {
	Init()
	crawlerProductsTotal.WithLabelValues(priceStatus).Inc()
}

// ObserveCategory counts one finished category crawl.
func ObserveCategory(outcome string) {
	Init()
	crawlerCategoriesTotal.WithLabelValues(outcome).Inc()
}

// SetActiveCategories reports the number of admitted category crawls.
func SetActiveCategories(n int64) {
	Init()
	crawlerActiveCategories.Set(float64(n))
}

// ObserveUpsert records a batch upsert attempt.
func ObserveUpsert(store string, written int, err error, duration time.Duration) {
	Init()
	result := "ok"
	if err != nil {
		result = "error"
	}
	storeUpsertDurationSeconds.WithLabelValues(store, result).Observe(duration.Seconds())
	if err == nil && written > 0 {
		storeRecordsWrittenTotal.WithLabelValues(store).Add(float64(written))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	crawlerRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveRobotsFallback counts a robots.txt probe that was treated as allow-all.
func ObserveRobotsFallback(reason string) {
	Init()
	crawlerRobotsFallbackTotal.WithLabelValues(reason).Inc()
}
