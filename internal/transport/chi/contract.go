package chi

import (
	"context"

	"github.com/kailas-cloud/grantmatch/internal/cache"
	"github.com/kailas-cloud/grantmatch/internal/domain/applicant"
	"github.com/kailas-cloud/grantmatch/internal/domain/grant"
	"github.com/kailas-cloud/grantmatch/internal/domain/match"
	"github.com/kailas-cloud/grantmatch/internal/domain/search/request"
	"github.com/kailas-cloud/grantmatch/internal/perf"
	"github.com/kailas-cloud/grantmatch/internal/taskqueue"
	healthuc "github.com/kailas-cloud/grantmatch/internal/usecase/health"
	matchinguc "github.com/kailas-cloud/grantmatch/internal/usecase/matching"
	profileuc "github.com/kailas-cloud/grantmatch/internal/usecase/profile"
)

// Matcher runs searches and eligibility checks.
type Matcher interface {
	FindGrants(ctx context.Context, req request.Request) (*match.Response, error)
	CheckEligibility(ctx context.Context, req matchinguc.EligibilityRequest) (matchinguc.EligibilityResult, error)
	Warm(ctx context.Context, req request.Request) error
}

// Catalog manages grant opportunities.
type Catalog interface {
	Upsert(ctx context.Context, g grant.Opportunity) (grant.Opportunity, bool, error)
	Get(ctx context.Context, sponsor, id string) (grant.Opportunity, error)
	Delete(ctx context.Context, sponsor, id string) error
	List(ctx context.Context, sponsor string) ([]grant.Opportunity, error)
}

// Profiles manages stored applicant profiles.
type Profiles interface {
	Save(ctx context.Context, p applicant.Profile) (applicant.Profile, bool, error)
	Get(ctx context.Context, ownerID, id string) (applicant.Profile, error)
	Delete(ctx context.Context, ownerID, id string) error
	Enrich(ctx context.Context, ownerID, id, message string) (profileuc.EnrichResult, error)
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// CacheAdmin exposes the shared result cache.
type CacheAdmin interface {
	Stats() cache.Stats
	RemoveByPattern(ctx context.Context, pattern string) int
}

// PerfStats exposes operation timings.
type PerfStats interface {
	Stats() perf.Snapshot
}

// QueueStats exposes the background queue.
type QueueStats interface {
	Stats() taskqueue.Stats
}
