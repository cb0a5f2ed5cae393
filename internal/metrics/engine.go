package metrics

import "github.com/prometheus/client_golang/prometheus"

// Cache, instrumentation, queue and matching metrics.
var (
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by tier and result",
		},
		[]string{"tier", "result"},
	)

	CacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cache_evictions_total",
			Help:      "Local cache entries evicted for any reason",
		},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of instrumented operations",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation", "status"},
	)

	SlowOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "slow_operations_total",
			Help:      "Instrumented operations that exceeded their warn threshold",
		},
		[]string{"operation"},
	)

	TaskQueueTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "task_queue_tasks_total",
			Help:      "Background tasks by outcome",
		},
		[]string{"task", "outcome"}, // submitted / completed / failed / rejected
	)

	TaskQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "task_queue_depth",
			Help:      "Tasks waiting for a worker",
		},
	)

	MatchCandidates = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "match_candidates",
			Help:      "Candidates considered and eligible per computed search",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
		},
		[]string{"kind"}, // considered / eligible
	)
)
