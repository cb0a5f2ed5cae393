package matching

import (
	"context"

	"github.com/kailas-cloud/grantmatch/internal/domain/applicant"
	"github.com/kailas-cloud/grantmatch/internal/domain/grant"
	"github.com/kailas-cloud/grantmatch/internal/domain/match"
	"github.com/kailas-cloud/grantmatch/internal/domain/predicate"
	"github.com/kailas-cloud/grantmatch/internal/taskqueue"
)

// VectorSearch retrieves candidate grants for a query under a pre-filter.
type VectorSearch interface {
	Search(
		ctx context.Context, query string, p predicate.Predicate, minSimilarity float64, limit int,
	) ([]match.Candidate, error)
}

// ProfileReader resolves stored applicant profiles.
type ProfileReader interface {
	Get(ctx context.Context, ownerID, id string) (applicant.Profile, error)
}

// GrantReader resolves catalog grants by reference.
type GrantReader interface {
	Get(ctx context.Context, sponsor, id string) (grant.Opportunity, error)
}

// Enqueuer schedules background work.
type Enqueuer interface {
	Enqueue(name string, fn taskqueue.Task) error
}
