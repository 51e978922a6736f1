package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream", "status"},
	)

	osddResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "osdd_resolutions_total",
			Help: "OSDD template resolutions by outcome.",
		},
		[]string{"outcome"},
	)

	searchOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opensearch_searches_total",
			Help: "Granule searches by outcome.",
		},
		[]string{"outcome"},
	)

	rateLimitRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ratelimit_rejections_total",
			Help: "Requests rejected by the inbound rate limiter.",
		},
	)

	rateLimitClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ratelimit_tracked_clients",
			Help: "Clients currently holding a token bucket.",
		},
	)

	sideEffectErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_side_effect_errors_total",
			Help: "Best-effort stats/event recording failures.",
		},
		[]string{"sink"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal,
		httpRequestDurationSeconds,
		upstreamLatencySeconds,
		osddResolutions,
		searchOutcomes,
		rateLimitRejections,
		rateLimitClients,
		sideEffectErrors,
	}
}

func init() {
	_ = Register(prometheus.DefaultRegisterer)
}

// Register adds the service collectors to reg. Collectors already present are skipped.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		return nil
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

// ObserveUpstreamLatency records one upstream round trip; status 0 means transport failure.
func ObserveUpstreamLatency(upstream string, status int, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(upstream, strconv.Itoa(status)).Observe(durationSeconds)
}

func IncResolution(outcome string) {
	osddResolutions.WithLabelValues(outcome).Inc()
}

func IncSearchOutcome(outcome string) {
	searchOutcomes.WithLabelValues(outcome).Inc()
}

func IncRateLimited() {
	rateLimitRejections.Inc()
}

func SetRateLimitClients(n int) {
	rateLimitClients.Set(float64(n))
}

func IncSideEffectError(sink string) {
	sideEffectErrors.WithLabelValues(sink).Inc()
}
