package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "suggest",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "suggest",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"method", "path"})

	SourceRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "suggest",
		Name:      "source_requests_total",
		Help:      "Total requests to suggestion sources by source name and result status.",
	}, []string{"source", "status"})

	SourceRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "suggest",
		Name:      "source_request_duration_seconds",
		Help:      "Suggestion source request duration in seconds.",
		Buckets:   []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"source"})

	SourceAvailable = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "suggest",
		Name:      "source_available",
		Help:      "Whether a source is available (1) or blocked by circuit breaker (0).",
	}, []string{"source"})

	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "suggest",
		Name:      "cache_hits_total",
		Help:      "Total number of suggestion cache hits.",
	})

	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "suggest",
		Name:      "cache_misses_total",
		Help:      "Total number of suggestion cache misses.",
	})

	FallbackTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "suggest",
		Name:      "fallback_candidates_total",
		Help:      "Fetch cycles that ended with only the raw-text fallback candidate.",
	})

	DebounceCyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "suggest",
		Name:      "debounce_cycles_total",
		Help:      "Session fetch cycles by outcome (started, applied, discarded, failed).",
	}, []string{"outcome"})

	SessionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "suggest",
		Name:      "session_duration_seconds",
		Help:      "Lifetime of WebSocket suggestion sessions in seconds.",
		Buckets:   []float64{1, 5, 15, 30, 60, 180, 600, 1800},
	})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "suggest",
		Name:      "active_sessions",
		Help:      "Live WebSocket suggestion sessions.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SourceRequestsTotal,
		SourceRequestDuration,
		SourceAvailable,
		CacheHitsTotal,
		CacheMissesTotal,
		FallbackTotal,
		DebounceCyclesTotal,
		SessionDuration,
		ActiveSessions,
	)
}
