package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// External REST calls by source (weather, soil, geocode, iplocate) and status.
	// Watch for: error vs success ratio per provider.
	ExternalAPICallsTotal *prometheus.CounterVec

	// External REST latency per call. Watch for: p95 > 2s (upstream degradation).
	ExternalAPIDuration *prometheus.HistogramVec

	// Cache hits by data kind (geocode, iplocate, weather, soil).
	// Hit rate per kind = hits / (hits + externalApiCallsTotal for that source).
	CacheHitsTotal *prometheus.CounterVec

	// Cache backend errors by operation. Watch for: backend outages.
	CacheErrorsTotal *prometheus.CounterVec

	// Location resolutions by path (text, ip) and outcome (resolved, unresolved).
	LocationResolutionsTotal *prometheus.CounterVec

	// Model invocations by prompt kind (price, combined, recommend) and status.
	// Watch for: undetermined ratio = error / total per kind.
	ModelInvocationsTotal *prometheus.CounterVec

	// Model invocation latency. The local model is single-request; sustained
	// p50 growth means prompts queue behind each other.
	ModelInvocationDuration *prometheus.HistogramVec

	// Analyze calls that piggybacked on an identical in-flight aggregation.
	AnalyzeCoalescedTotal prometheus.Counter

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	ExternalAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "externalApiCallsTotal",
			Help: "Total number of external REST API calls by source",
		},
		[]string{"source", "status"},
	)
	ExternalAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "externalApiDurationSeconds",
			Help:    "External REST API latency in seconds (per call)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"source", "status"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits by data kind",
		},
		[]string{"kind"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Total number of cache backend errors by operation",
		},
		[]string{"operation"},
	)
	LocationResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "locationResolutionsTotal",
			Help: "Location resolutions by path (text, ip) and outcome",
		},
		[]string{"path", "outcome"},
	)
	ModelInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelInvocationsTotal",
			Help: "Language model invocations by prompt kind and status",
		},
		[]string{"kind", "status"},
	)
	ModelInvocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelInvocationDurationSeconds",
			Help:    "Language model invocation latency in seconds",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)
	AnalyzeCoalescedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "analyzeCoalescedTotal",
			Help: "Analyze calls served by an identical in-flight aggregation",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		ExternalAPICallsTotal, ExternalAPIDuration,
		CacheHitsTotal, CacheErrorsTotal,
		LocationResolutionsTotal,
		ModelInvocationsTotal, ModelInvocationDuration,
		AnalyzeCoalescedTotal,
		RateLimitDeniedTotal,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
