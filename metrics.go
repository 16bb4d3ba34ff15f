package resilix

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request pipeline
// and its gates. It is safe for concurrent use; a nil collector is a
// no-op.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal      *prometheus.CounterVec
	throttledTotal    *prometheus.CounterVec
	offlineTotal      *prometheus.CounterVec
	deduplicationHits *prometheus.CounterVec

	rateLimitRemaining  *prometheus.GaugeVec
	circuitBreakerState *prometheus.GaugeVec
	connectivityState   prometheus.Gauge

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "resilix_requests_total",
				Help: "Total number of HTTP requests made",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "resilix_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "resilix_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
			[]string{"method", "endpoint"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "resilix_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "endpoint", "attempt"},
		),
		throttledTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "resilix_throttled_total",
				Help: "Total number of requests rejected by the local rate limiter",
			},
			[]string{"endpoint"},
		),
		offlineTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "resilix_offline_rejections_total",
				Help: "Total number of requests failed fast while offline",
			},
			[]string{"method", "endpoint"},
		),
		deduplicationHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "resilix_deduplication_hits_total",
				Help: "Total number of requests coalesced onto an in-flight call",
			},
			[]string{"method", "endpoint"},
		),
		rateLimitRemaining: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "resilix_rate_limit_remaining",
				Help: "Remaining slots in the current rate limit window",
			},
			[]string{"endpoint"},
		),
		circuitBreakerState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "resilix_circuit_breaker_state",
				Help: "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		connectivityState: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "resilix_connectivity_state",
				Help: "Last known connectivity (1=online, 0=offline)",
			},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "resilix_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"method", "endpoint"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "resilix_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"method", "endpoint"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "resilix_errors_total",
				Help: "Total number of errors by classified kind",
			},
			[]string{"kind", "method", "endpoint"},
		),
	}
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}
	code := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, code, endpoint).Inc()
	mc.requestDuration.WithLabelValues(method, code, endpoint).Observe(duration.Seconds())
}

// RecordRequestStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRequestEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordRetry increments the retry counter for an attempt number.
func (mc *MetricsCollector) RecordRetry(method, endpoint string, attempt int) {
	if mc == nil {
		return
	}
	mc.retriesTotal.WithLabelValues(method, endpoint, strconv.Itoa(attempt)).Inc()
}

// RecordThrottled counts a local rate limit rejection.
func (mc *MetricsCollector) RecordThrottled(endpoint string) {
	if mc == nil {
		return
	}
	mc.throttledTotal.WithLabelValues(endpoint).Inc()
}

// RecordOfflineRejection counts an offline fast-fail.
func (mc *MetricsCollector) RecordOfflineRejection(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.offlineTotal.WithLabelValues(method, endpoint).Inc()
}

// RecordDeduplicationHit counts a request coalesced onto an in-flight call.
func (mc *MetricsCollector) RecordDeduplicationHit(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.deduplicationHits.WithLabelValues(method, endpoint).Inc()
}

// RecordRateLimitRemaining sets the remaining window slot gauge.
func (mc *MetricsCollector) RecordRateLimitRemaining(endpoint string, remaining int) {
	if mc == nil {
		return
	}
	mc.rateLimitRemaining.WithLabelValues(endpoint).Set(float64(remaining))
}

// RecordCircuitBreakerState sets the breaker state gauge.
func (mc *MetricsCollector) RecordCircuitBreakerState(name string, state CircuitState) {
	if mc == nil {
		return
	}
	mc.circuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordConnectivity sets the connectivity gauge.
func (mc *MetricsCollector) RecordConnectivity(online bool) {
	if mc == nil {
		return
	}
	if online {
		mc.connectivityState.Set(1)
	} else {
		mc.connectivityState.Set(0)
	}
}

// RecordCacheHit increments the cache hit counter.
func (mc *MetricsCollector) RecordCacheHit(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.cacheHits.WithLabelValues(method, endpoint).Inc()
}

// RecordCacheMiss increments the cache miss counter.
func (mc *MetricsCollector) RecordCacheMiss(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.cacheMisses.WithLabelValues(method, endpoint).Inc()
}

// RecordError increments the error counter for a classified kind.
func (mc *MetricsCollector) RecordError(kind ErrorKind, method, endpoint string) {
	if mc == nil {
		return
	}
	mc.errorsTotal.WithLabelValues(kind.String(), method, endpoint).Inc()
}
