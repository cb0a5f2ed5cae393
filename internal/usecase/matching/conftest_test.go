package matching

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kailas-cloud/grantmatch/internal/cache"
	"github.com/kailas-cloud/grantmatch/internal/domain"
	"github.com/kailas-cloud/grantmatch/internal/domain/applicant"
	"github.com/kailas-cloud/grantmatch/internal/domain/grant"
	"github.com/kailas-cloud/grantmatch/internal/domain/match"
	"github.com/kailas-cloud/grantmatch/internal/domain/predicate"
	"github.com/kailas-cloud/grantmatch/internal/domain/search/request"
	"github.com/kailas-cloud/grantmatch/internal/eligibility"
	"github.com/kailas-cloud/grantmatch/internal/perf"
	"github.com/kailas-cloud/grantmatch/internal/scoring"
	"github.com/kailas-cloud/grantmatch/internal/taskqueue"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type mockSearch struct {
	mu       sync.Mutex
	calls    atomic.Int32
	delay    time.Duration
	lastPred predicate.Predicate
	lastK    int
	searchFn func(ctx context.Context, query string, p predicate.Predicate, minSim float64, limit int) ([]match.Candidate, error)
}

func (m *mockSearch) Search(
	ctx context.Context, query string, p predicate.Predicate, minSim float64, limit int,
) ([]match.Candidate, error) {
	m.calls.Add(1)
	m.mu.Lock()
	m.lastPred = p
	m.lastK = limit
	m.mu.Unlock()
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.searchFn != nil {
		return m.searchFn(ctx, query, p, minSim, limit)
	}
	return nil, nil
}

type mockProfiles struct {
	getFn func(ctx context.Context, ownerID, id string) (applicant.Profile, error)
}

func (m *mockProfiles) Get(ctx context.Context, ownerID, id string) (applicant.Profile, error) {
	if m.getFn != nil {
		return m.getFn(ctx, ownerID, id)
	}
	return applicant.Profile{}, domain.ErrProfileNotFound
}

type mockGrants struct {
	getFn func(ctx context.Context, sponsor, id string) (grant.Opportunity, error)
}

func (m *mockGrants) Get(ctx context.Context, sponsor, id string) (grant.Opportunity, error) {
	if m.getFn != nil {
		return m.getFn(ctx, sponsor, id)
	}
	return grant.Opportunity{}, domain.ErrGrantNotFound
}

// syncQueue runs tasks inline.
type syncQueue struct {
	names []string
	err   error
}

func (q *syncQueue) Enqueue(name string, fn taskqueue.Task) error {
	q.names = append(q.names, name)
	if q.err != nil {
		return q.err
	}
	return fn(context.Background())
}

type fixture struct {
	svc      *Service
	search   *mockSearch
	profiles *mockProfiles
	grants   *mockGrants
	queue    *syncQueue
	cache    *cache.Store
	tracker  *perf.Tracker
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	store, err := cache.New(cache.Config{Capacity: 100, Now: func() time.Time { return testNow }})
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		search:   &mockSearch{},
		profiles: &mockProfiles{},
		grants:   &mockGrants{},
		queue:    &syncQueue{},
		cache:    store,
		tracker:  perf.New(perf.Config{}),
	}
	cfg := Config{
		Scoring:            scoring.DefaultConfig(),
		Eligibility:        eligibility.DefaultPolicy(),
		Prefilter:          true,
		CandidateFactor:    3,
		MinCandidates:      50,
		MaxCandidates:      300,
		ScoringParallelism: 4,
		CacheOptions:       cache.Options{Absolute: 10 * time.Minute},
		Now:                func() time.Time { return testNow },
	}
	for _, m := range mutate {
		m(&cfg)
	}
	f.svc, err = New(cfg, Deps{
		Search:   f.search,
		Cache:    store,
		Tracker:  f.tracker,
		Profiles: f.profiles,
		Grants:   f.grants,
		Queue:    f.queue,
	})
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func testApplicant() *applicant.Profile {
	return &applicant.Profile{
		Categories:        []string{"nonprofit"},
		Location:          "CA",
		FundingCategories: []string{"education"},
		TypicalBudget:     20000,
		AnnualBudget:      200000,
		Summary:           "After-school literacy programs for rural youth",
	}
}

func mustRequest(t *testing.T, p request.Params) request.Request {
	t.Helper()
	if p.Applicant == nil && p.OwnerID == "" {
		p.Applicant = testApplicant()
	}
	r, err := request.New(p)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return r
}

// candidate builds a KNN hit from a typed grant.
func candidate(g grant.Opportunity, similarity float64) match.Candidate {
	return match.Candidate{ID: "e-" + g.ID, Attributes: g.Attributes(), Similarity: similarity}
}

func openGrant(id string, maxAward float64) grant.Opportunity {
	return grant.Opportunity{
		ID:      id,
		Sponsor: "acme",
		Summary: "Grant " + id,
		Constraints: grant.Constraints{
			FundingCategories: []string{"education"},
			MaxAward:          maxAward,
			Deadline:          testNow.AddDate(0, 3, 0),
		},
	}
}

func manyCandidates(n int) []match.Candidate {
	out := make([]match.Candidate, n)
	for i := range out {
		out[i] = candidate(openGrant("g"+strconv.Itoa(100+i), 10000), 0.9-float64(i)*0.001)
	}
	return out
}
