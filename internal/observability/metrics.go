package observability

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// Gateway request rate. Watch for: sudden drops (gateway down) or spikes (dashboard refresh storms).
	HTTPRequestsTotal *prometheus.CounterVec

	// Gateway latency per request. Cache hits should sit well under the upstream latency.
	HTTPRequestDuration *prometheus.HistogramVec

	HTTPRequestsInFlight prometheus.Gauge

	// Forecast service call rate by endpoint (forecast, regions, health) and status class.
	ForecastAPICallsTotal *prometheus.CounterVec

	// Forecast service latency. Watch for: p99 approaching the 10s forecast timeout.
	ForecastAPIDuration *prometheus.HistogramVec

	// Normalized client errors by endpoint and kind (timeout, network, http, unknown).
	ForecastAPIErrorsTotal *prometheus.CounterVec

	// Client cache hits and misses per cacheType (forecast, regions). Hit rate = hits/(hits+misses).
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Cache backend failures per operation (get, set, clear). Non-fatal; requests fall through to upstream.
	CacheErrorsTotal *prometheus.CounterVec

	// Callers that joined an in-flight request instead of issuing their own.
	RequestCoalescingHitsTotal prometheus.Counter

	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// 1 when the last upstream health poll reported healthy, 0 otherwise.
	UpstreamHealthy prometheus.Gauge

	// Health polls by resulting status (healthy, unhealthy).
	HealthPollsTotal *prometheus.CounterVec

	ForecastQueriesTotal prometheus.Counter

	// Per-region query count (allow-list; others go to "other").
	ForecastQueriesByRegionTotal *prometheus.CounterVec

	RateLimitDeniedTotal prometheus.Counter

	trackedRegionsMu sync.RWMutex
	trackedRegions   map[string]struct{}
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
			Help: "Total number of gateway HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "Gateway HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of gateway HTTP requests currently being served",
		},
	)
	ForecastAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastApiCallsTotal",
			Help: "Total number of forecasting service calls",
		},
		[]string{"endpoint", "status"},
	)
	ForecastAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forecastApiDurationSeconds",
			Help:    "Forecasting service latency in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	ForecastAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastApiErrorsTotal",
			Help: "Forecasting service errors by normalized kind",
		},
		[]string{"endpoint", "kind"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of client cache hits",
		},
		[]string{"cacheType"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Total number of client cache misses (absent or expired)",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend errors by operation",
		},
		[]string{"operation"},
	)
	RequestCoalescingHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "requestCoalescingHitsTotal",
			Help: "Callers served by joining an in-flight forecasting service request",
		},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Total number of cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs with at least one failed region",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Duration of cache warming runs in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30},
		},
	)
	UpstreamHealthy = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "upstreamHealthy",
			Help: "1 when the last forecasting service health poll was healthy, 0 otherwise",
		},
	)
	HealthPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthPollsTotal",
			Help: "Forecasting service health polls by resulting status",
		},
		[]string{"status"},
	)
	ForecastQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "forecastQueriesTotal",
			Help: "Total number of forecast lookups served by the gateway",
		},
	)
	ForecastQueriesByRegionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecastQueriesByRegionTotal",
			Help: "Forecast queries by region (allow-list; others use region=other)",
		},
		[]string{"region"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of gateway requests denied by the rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		ForecastAPICallsTotal, ForecastAPIDuration, ForecastAPIErrorsTotal,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal, RequestCoalescingHitsTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		UpstreamHealthy, HealthPollsTotal,
		ForecastQueriesTotal, ForecastQueriesByRegionTotal,
		RateLimitDeniedTotal,
	)
}

// SetTrackedRegions sets the allow-list for region metrics. Non-tracked regions increment "other".
func SetTrackedRegions(regions []string) {
	trackedRegionsMu.Lock()
	defer trackedRegionsMu.Unlock()
	trackedRegions = make(map[string]struct{}, len(regions))
	for _, r := range regions {
		trackedRegions[MetricRegionLabel(r)] = struct{}{}
	}
}

// RecordForecastQuery records a forecast query for the given region.
func RecordForecastQuery(region string) {
	ForecastQueriesTotal.Inc()
	label := MetricRegionLabel(region)
	trackedRegionsMu.RLock()
	_, ok := trackedRegions[label]
	trackedRegionsMu.RUnlock()
	if ok {
		ForecastQueriesByRegionTotal.WithLabelValues(label).Inc()
	} else {
		ForecastQueriesByRegionTotal.WithLabelValues("other").Inc()
	}
}

// MetricRegionLabel normalizes a region name for use as a label value.
func MetricRegionLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
