package chi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chirouter "github.com/go-chi/chi/v5"

	"github.com/kailas-cloud/grantmatch/internal/cache"
	"github.com/kailas-cloud/grantmatch/internal/domain"
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

// --- Mocks ---

type mockMatcher struct {
	findFn  func(ctx context.Context, req request.Request) (*match.Response, error)
	checkFn func(ctx context.Context, req matchinguc.EligibilityRequest) (matchinguc.EligibilityResult, error)
	warmFn  func(ctx context.Context, req request.Request) error
}

func (m *mockMatcher) FindGrants(ctx context.Context, req request.Request) (*match.Response, error) {
	if m.findFn != nil {
		return m.findFn(ctx, req)
	}
	return &match.Response{}, nil
}

func (m *mockMatcher) CheckEligibility(
	ctx context.Context, req matchinguc.EligibilityRequest,
) (matchinguc.EligibilityResult, error) {
	if m.checkFn != nil {
		return m.checkFn(ctx, req)
	}
	return matchinguc.EligibilityResult{Eligible: true, Unmet: []string{}}, nil
}

func (m *mockMatcher) Warm(ctx context.Context, req request.Request) error {
	if m.warmFn != nil {
		return m.warmFn(ctx, req)
	}
	return nil
}

type mockCatalog struct {
	upsertFn func(ctx context.Context, g grant.Opportunity) (grant.Opportunity, bool, error)
	getFn    func(ctx context.Context, sponsor, id string) (grant.Opportunity, error)
	deleteFn func(ctx context.Context, sponsor, id string) error
	listFn   func(ctx context.Context, sponsor string) ([]grant.Opportunity, error)
}

func (m *mockCatalog) Upsert(ctx context.Context, g grant.Opportunity) (grant.Opportunity, bool, error) {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, g)
	}
	return g, true, nil
}

func (m *mockCatalog) Get(ctx context.Context, sponsor, id string) (grant.Opportunity, error) {
	if m.getFn != nil {
		return m.getFn(ctx, sponsor, id)
	}
	return grant.Opportunity{}, domain.ErrGrantNotFound
}

func (m *mockCatalog) Delete(ctx context.Context, sponsor, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, sponsor, id)
	}
	return nil
}

func (m *mockCatalog) List(ctx context.Context, sponsor string) ([]grant.Opportunity, error) {
	if m.listFn != nil {
		return m.listFn(ctx, sponsor)
	}
	return nil, nil
}

type mockProfiles struct {
	saveFn   func(ctx context.Context, p applicant.Profile) (applicant.Profile, bool, error)
	getFn    func(ctx context.Context, ownerID, id string) (applicant.Profile, error)
	deleteFn func(ctx context.Context, ownerID, id string) error
	enrichFn func(ctx context.Context, ownerID, id, message string) (profileuc.EnrichResult, error)
}

func (m *mockProfiles) Save(ctx context.Context, p applicant.Profile) (applicant.Profile, bool, error) {
	if m.saveFn != nil {
		return m.saveFn(ctx, p)
	}
	return p, true, nil
}

func (m *mockProfiles) Get(ctx context.Context, ownerID, id string) (applicant.Profile, error) {
	if m.getFn != nil {
		return m.getFn(ctx, ownerID, id)
	}
	return applicant.Profile{}, domain.ErrProfileNotFound
}

func (m *mockProfiles) Delete(ctx context.Context, ownerID, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, ownerID, id)
	}
	return nil
}

func (m *mockProfiles) Enrich(ctx context.Context, ownerID, id, message string) (profileuc.EnrichResult, error) {
	if m.enrichFn != nil {
		return m.enrichFn(ctx, ownerID, id, message)
	}
	return profileuc.EnrichResult{}, domain.ErrFeatureDisabled
}

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

type mockCache struct {
	stats    cache.Stats
	patterns []string
}

func (m *mockCache) Stats() cache.Stats { return m.stats }

func (m *mockCache) RemoveByPattern(_ context.Context, pattern string) int {
	m.patterns = append(m.patterns, pattern)
	return 3
}

type mockPerf struct {
	snap perf.Snapshot
}

func (m *mockPerf) Stats() perf.Snapshot { return m.snap }

type mockQueue struct {
	stats taskqueue.Stats
}

func (m *mockQueue) Stats() taskqueue.Stats { return m.stats }

// --- Fixture ---

type fixture struct {
	matcher  *mockMatcher
	catalog  *mockCatalog
	profiles *mockProfiles
	health   *mockHealth
	cache    *mockCache
	perf     *mockPerf
	queue    *mockQueue
	router   http.Handler
}

func newFixture(t *testing.T, adminKeys ...string) *fixture {
	t.Helper()
	f := &fixture{
		matcher:  &mockMatcher{},
		catalog:  &mockCatalog{},
		profiles: &mockProfiles{},
		health:   &mockHealth{report: healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{}}},
		cache:    &mockCache{},
		perf:     &mockPerf{},
		queue:    &mockQueue{},
	}
	srv := NewServer(Deps{
		Matcher:   f.matcher,
		Catalog:   f.catalog,
		Profiles:  f.profiles,
		Health:    f.health,
		Cache:     f.cache,
		Perf:      f.perf,
		Queue:     f.queue,
		AdminKeys: adminKeys,
	})
	r := chirouter.NewRouter()
	srv.Routes(r)
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader = http.NoBody
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func newRouter(srv *Server) http.Handler {
	r := chirouter.NewRouter()
	srv.Routes(r)
	return r
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, http.NoBody))
	return rr
}
