// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "grantmatch"

var registerOnce sync.Once

// Register registers all collectors with the default registry. Must be called once from main.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestDuration,
			httpRequestsTotal,
			EmbeddingRequestsTotal,
			EmbeddingRequestDuration,
			EmbeddingTokensTotal,
			EmbeddingErrorsTotal,
			EmbeddingCacheTotal,
			ConversationRequestsTotal,
			CacheLookupsTotal,
			CacheEvictionsTotal,
			OperationDuration,
			SlowOperationsTotal,
			TaskQueueTasksTotal,
			TaskQueueDepth,
			MatchCandidates,
		)
	})
}
