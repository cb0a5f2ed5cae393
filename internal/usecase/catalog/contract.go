package catalog

import (
	"context"
	"time"

	"github.com/kailas-cloud/grantmatch/internal/domain"
	"github.com/kailas-cloud/grantmatch/internal/domain/grant"
	"github.com/kailas-cloud/grantmatch/internal/taskqueue"
)

// Documents persists grant documents.
type Documents interface {
	SaveGrant(ctx context.Context, g grant.Opportunity) (bool, error)
	GetGrant(ctx context.Context, sponsor, id string) (grant.Opportunity, error)
	DeleteGrant(ctx context.Context, sponsor, id string) error
	ListGrants(ctx context.Context, sponsor string) ([]grant.Opportunity, error)
}

// Embedder vectorizes grant narratives with the document instruction.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Index stores grant entities and their vectors for semantic search.
type Index interface {
	EntityID(sponsor, grantID string) string
	StoreEntity(ctx context.Context, attrs map[string]string, narrative string) (string, error)
	UploadVector(ctx context.Context, id string, vector []float32) error
	Expire(ctx context.Context, id string, ttl time.Duration) error
	DeleteEntity(ctx context.Context, id string) error
	Entity(ctx context.Context, id string) (map[string]string, error)
}

// Invalidator drops cached entries by glob pattern.
type Invalidator interface {
	RemoveByPattern(ctx context.Context, pattern string) int
}

// Enqueuer schedules background work.
type Enqueuer interface {
	Enqueue(name string, fn taskqueue.Task) error
}
