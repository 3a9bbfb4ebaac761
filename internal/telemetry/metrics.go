package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency, labeled by method, route
// pattern, and status code.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "storeplane",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// GateRejectionsTotal counts create requests rejected by the quota/rate gate,
// labeled by the reason (global_cap, tenant_cap, rate_limit).
var GateRejectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "storeplane",
		Subsystem: "gate",
		Name:      "rejections_total",
		Help:      "Total number of create requests rejected by the quota/rate gate.",
	},
	[]string{"reason"},
)

// IdempotentReplaysTotal counts create requests short-circuited by an
// idempotency key replay.
var IdempotentReplaysTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "storeplane",
		Subsystem: "gate",
		Name:      "idempotent_replays_total",
		Help:      "Total number of create requests resolved via idempotency replay.",
	},
)

// ReadinessChecksTotal counts readiness-loop attempts, labeled by outcome.
var ReadinessChecksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "storeplane",
		Subsystem: "lifecycle",
		Name:      "readiness_checks_total",
		Help:      "Total number of readiness-loop attempts by outcome.",
	},
	[]string{"outcome"},
)

// StoreTransitionsTotal counts store status transitions, labeled by the
// resulting status.
var StoreTransitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "storeplane",
		Subsystem: "lifecycle",
		Name:      "store_transitions_total",
		Help:      "Total number of store status transitions by resulting status.",
	},
	[]string{"status"},
)

// All returns the storeplane-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		GateRejectionsTotal,
		IdempotentReplaysTotal,
		ReadinessChecksTotal,
		StoreTransitionsTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process
// collectors, the shared HTTP duration histogram, and any additional
// service-specific collectors.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
