// Package metrics provides Prometheus metrics for the governance backend.
// Scrapeable at /metrics; dashboards and alerts rely on these names.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "streamgov"

var (
	// HTTPRequestTotal counts requests by method, path, status (RED: rate).
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, path, and status.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDurationSeconds is request latency histogram (RED: duration).
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10), // 1ms to ~9.3s
		},
		[]string{"method", "path"},
	)

	// PlanBuildDurationSeconds is dry-run plan computation latency.
	PlanBuildDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "plan_build_duration_seconds",
			Help:      "Dry-run plan computation duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 8), // 50ms to ~6.4s
		},
		[]string{"kind"},
	)

	// ApplyItemsTotal counts apply outcomes per item by action and result.
	ApplyItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apply_items_total",
			Help:      "Total applied plan items by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	// PolicyViolationsTotal counts violations surfaced by dry-run, by severity.
	PolicyViolationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_violations_total",
			Help:      "Total policy violations found during planning, by severity.",
		},
		[]string{"severity"},
	)

	// SnapshotCacheRequestsTotal counts metrics snapshot lookups by tier and result.
	SnapshotCacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_cache_requests_total",
			Help:      "Metrics snapshot cache lookups by tier (memory, redis, db) and result (hit, miss).",
		},
		[]string{"tier", "result"},
	)

	// KafkaAdminRequestsTotal counts admin calls against backing clusters.
	KafkaAdminRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_admin_requests_total",
			Help:      "Total Kafka admin API calls by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	// DBQueryDurationSeconds is database query latency by logical query name.
	DBQueryDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds by query name.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2.5, 10),
		},
		[]string{"query"},
	)

	// ConnectionCacheSize is the current number of cached backend clients.
	ConnectionCacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_cache_size",
			Help:      "Number of cached backend clients by endpoint kind.",
		},
		[]string{"kind"},
	)

	// CircuitBreakerState is the current breaker state per cluster
	// (0=closed, 1=open, 2=half-open).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per cluster (0=closed, 1=open, 2=half-open).",
		},
		[]string{"cluster_id"},
	)

	// CircuitBreakerTransitionsTotal counts breaker state transitions.
	CircuitBreakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Circuit breaker state transitions by cluster, from, and to state.",
		},
		[]string{"cluster_id", "from", "to"},
	)

	// CircuitBreakerFailuresTotal counts failures recorded by the breaker.
	CircuitBreakerFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_failures_total",
			Help:      "Retryable failures recorded by the circuit breaker per cluster.",
		},
		[]string{"cluster_id"},
	)
)
