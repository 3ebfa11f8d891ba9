// Package metrics exposes Prometheus collectors for the analysis service.
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
	analysesTotal                  *prometheus.CounterVec
	providerRequestsTotal          *prometheus.CounterVec
	providerRequestDurationSeconds *prometheus.HistogramVec
	httpRequestsTotal              *prometheus.CounterVec
	httpRequestDurationSeconds     *prometheus.HistogramVec
	rateLimitRejectionsTotal       *prometheus.CounterVec
	analysesInFlight               prometheus.Gauge
	crawlResultsTruncatedTotal     prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		analysesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_analyses_total",
				Help: "Total number of analyses that reached a terminal status, labeled by status.",
			},
			[]string{"status"},
		)

		providerRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_provider_requests_total",
				Help: "Total number of outbound provider calls, labeled by provider and outcome.",
			},
			[]string{"provider", "outcome"},
		)

		providerRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "radar_provider_request_duration_seconds",
				Help:    "Histogram of outbound provider call latencies, labeled by provider.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"provider"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)

		rateLimitRejectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "radar_rate_limit_rejections_total",
				Help: "Total number of requests rejected by the per-owner rate limiter, labeled by route.",
			},
			[]string{"route"},
		)

		analysesInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "radar_analyses_in_flight",
				Help: "Number of analyses currently running through the pipeline.",
			},
		)

		crawlResultsTruncatedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "radar_crawl_results_truncated_total",
				Help: "Total number of crawl results dropped by the payload cap before summarization.",
			},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from a URL.
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

// ObserveAnalysis increments the terminal analysis counter for the given status.
func ObserveAnalysis(status string) {
	Init()
	analysesTotal.WithLabelValues(status).Inc()
}

// ObserveProviderCall records one outbound provider call.
func ObserveProviderCall(provider, outcome string, duration time.Duration) {
	Init()
	providerRequestsTotal.WithLabelValues(provider, outcome).Inc()
	providerRequestDurationSeconds.WithLabelValues(provider).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitRejection counts a request refused by the rate limiter.
func ObserveRateLimitRejection(route string) {
	Init()
	rateLimitRejectionsTotal.WithLabelValues(route).Inc()
}

// ObserveTruncation counts crawl results discarded by the payload cap.
func ObserveTruncation(dropped int) {
	if dropped <= 0 {
		return
	}
	Init()
	crawlResultsTruncatedTotal.Add(float64(dropped))
}

// IncInFlight increments the in-flight analyses gauge.
func IncInFlight() {
	Init()
	analysesInFlight.Inc()
}

// DecInFlight decrements the in-flight analyses gauge.
func DecInFlight() {
	Init()
	analysesInFlight.Dec()
}
