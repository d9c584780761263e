// Package metrics exposes Prometheus collectors for the product crawler.
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
	crawlerFetchesTotal         *prometheus.CounterVec
	crawlerBytesTotal           *prometheus.CounterVec
	crawlerFetchDuration        *prometheus.HistogramVec
	crawlerClassificationsTotal *prometheus.CounterVec
	crawlerRecordsTotal         *prometheus.CounterVec
	crawlerMirrorFailuresTotal  *prometheus.CounterVec
	crawlerActiveTraversals     prometheus.Gauge
	httpRequestsTotal           *prometheus.CounterVec
	httpRequestDurationSeconds  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_fetches_total",
				Help: "Total number of page fetches, labeled by site, strategy and outcome (status class or unavailable).",
			},
			[]string{"site", "strategy", "outcome"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_bytes_total",
				Help: "Total number of HTML bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerFetchDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_fetch_duration_seconds",
				Help:    "Histogram of successful fetch latencies, labeled by strategy.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"strategy"},
		)

		crawlerClassificationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_classifications_total",
				Help: "Total number of classified pages, labeled by domain and deciding rule.",
			},
			[]string{"domain", "rule"},
		)

		crawlerRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_records_total",
				Help: "Total number of newly persisted pages, labeled by domain and product flag.",
			},
			[]string{"domain", "product"},
		)

		crawlerMirrorFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_mirror_failures_total",
				Help: "Total number of best-effort writes that failed, labeled by target.",
			},
			[]string{"target"},
		)

		crawlerActiveTraversals = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_traversals",
				Help: "Number of domain traversals currently running.",
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

// StatusClass groups an HTTP status code as "2xx", "3xx", "4xx", "5xx" or "other".
func StatusClass(code int) string {
	if code < 200 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}

// ObserveFetch counts one fetch attempt for the site of rawURL. A zero
// duration skips the latency histogram.
func ObserveFetch(rawURL, strategy, outcome string, bytesFetched int, duration time.Duration) {
	Init()
	site := SanitizeSite(rawURL)
	crawlerFetchesTotal.WithLabelValues(site, strategy, outcome).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
	if duration > 0 {
		crawlerFetchDuration.WithLabelValues(strategy).Observe(duration.Seconds())
	}
}

// ObserveClassification counts the rule that decided a page.
func ObserveClassification(domain, rule string) {
	Init()
	crawlerClassificationsTotal.WithLabelValues(domain, rule).Inc()
}

// ObserveRecord counts a newly persisted page.
func ObserveRecord(domain string, product bool) {
	Init()
	crawlerRecordsTotal.WithLabelValues(domain, strconv.FormatBool(product)).Inc()
}

// ObserveMirrorFailure counts a failed best-effort write ("store", "publish", "export").
func ObserveMirrorFailure(target string) {
	Init()
	crawlerMirrorFailuresTotal.WithLabelValues(target).Inc()
}

// IncActiveTraversals increments the active traversals gauge.
func IncActiveTraversals() {
	Init()
	crawlerActiveTraversals.Inc()
}

// DecActiveTraversals decrements the active traversals gauge.
func DecActiveTraversals() {
	Init()
	crawlerActiveTraversals.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
