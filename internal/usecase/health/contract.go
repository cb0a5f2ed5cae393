package health

import (
	"context"

	"github.com/kailas-cloud/grantmatch/internal/taskqueue"
)

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// QueueStats exposes background queue state.
type QueueStats interface {
	Stats() taskqueue.Stats
}
