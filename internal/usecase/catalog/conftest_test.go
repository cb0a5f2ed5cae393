package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/grantmatch/internal/domain"
	"github.com/kailas-cloud/grantmatch/internal/domain/grant"
	"github.com/kailas-cloud/grantmatch/internal/perf"
	"github.com/kailas-cloud/grantmatch/internal/taskqueue"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type mockDocs struct {
	mu     sync.Mutex
	saved  []grant.Opportunity
	saveFn func(ctx context.Context, g grant.Opportunity) (bool, error)
	getFn  func(ctx context.Context, sponsor, id string) (grant.Opportunity, error)
	delFn  func(ctx context.Context, sponsor, id string) error
	listFn func(ctx context.Context, sponsor string) ([]grant.Opportunity, error)
}

func (m *mockDocs) SaveGrant(ctx context.Context, g grant.Opportunity) (bool, error) {
	m.mu.Lock()
	m.saved = append(m.saved, g)
	m.mu.Unlock()
	if m.saveFn != nil {
		return m.saveFn(ctx, g)
	}
	return true, nil
}

func (m *mockDocs) GetGrant(ctx context.Context, sponsor, id string) (grant.Opportunity, error) {
	if m.getFn != nil {
		return m.getFn(ctx, sponsor, id)
	}
	return grant.Opportunity{}, domain.ErrGrantNotFound
}

func (m *mockDocs) DeleteGrant(ctx context.Context, sponsor, id string) error {
	if m.delFn != nil {
		return m.delFn(ctx, sponsor, id)
	}
	return nil
}

func (m *mockDocs) ListGrants(ctx context.Context, sponsor string) ([]grant.Opportunity, error) {
	if m.listFn != nil {
		return m.listFn(ctx, sponsor)
	}
	return nil, nil
}

type mockIndex struct {
	mu        sync.Mutex
	stored    map[string]string
	narrative string
	vectors   map[string][]float32
	ttls      map[string]time.Duration
	deleted   []string

	storeFn  func(ctx context.Context, attrs map[string]string, narrative string) (string, error)
	uploadFn func(ctx context.Context, id string, vector []float32) error
	deleteFn func(ctx context.Context, id string) error
	entityFn func(ctx context.Context, id string) (map[string]string, error)
}

func (m *mockIndex) EntityID(sponsor, grantID string) string {
	return "ent-" + sponsor + "-" + grantID
}

func (m *mockIndex) StoreEntity(ctx context.Context, attrs map[string]string, narrative string) (string, error) {
	if m.storeFn != nil {
		return m.storeFn(ctx, attrs, narrative)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored = attrs
	m.narrative = narrative
	return m.EntityID(attrs[grant.AttrSponsor], attrs[grant.AttrID]), nil
}

func (m *mockIndex) UploadVector(ctx context.Context, id string, vector []float32) error {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, id, vector)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vectors == nil {
		m.vectors = make(map[string][]float32)
	}
	m.vectors[id] = vector
	return nil
}

func (m *mockIndex) Expire(_ context.Context, id string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ttls == nil {
		m.ttls = make(map[string]time.Duration)
	}
	m.ttls[id] = ttl
	return nil
}

func (m *mockIndex) DeleteEntity(ctx context.Context, id string) error {
	m.mu.Lock()
	m.deleted = append(m.deleted, id)
	m.mu.Unlock()
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockIndex) Entity(ctx context.Context, id string) (map[string]string, error) {
	if m.entityFn != nil {
		return m.entityFn(ctx, id)
	}
	return nil, domain.ErrGrantNotFound
}

type mockEmbedder struct {
	texts   []string
	embedFn func(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	m.texts = append(m.texts, text)
	if m.embedFn != nil {
		return m.embedFn(ctx, text)
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3, 0.4}, TotalTokens: 3}, nil
}

type mockInvalidator struct {
	mu       sync.Mutex
	patterns []string
}

func (m *mockInvalidator) RemoveByPattern(_ context.Context, pattern string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = append(m.patterns, pattern)
	return 1
}

func (m *mockInvalidator) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.patterns...)
}

// inlineQueue runs tasks synchronously, or rejects them when err is set.
type inlineQueue struct {
	names []string
	err   error
}

func (q *inlineQueue) Enqueue(name string, fn taskqueue.Task) error {
	if q.err != nil {
		return q.err
	}
	q.names = append(q.names, name)
	return fn(context.Background())
}

type fixture struct {
	svc      *Service
	docs     *mockDocs
	index    *mockIndex
	embedder *mockEmbedder
	cache    *mockInvalidator
	queue    *inlineQueue
	tracker  *perf.Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		docs:     &mockDocs{},
		index:    &mockIndex{},
		embedder: &mockEmbedder{},
		cache:    &mockInvalidator{},
		queue:    &inlineQueue{},
		tracker:  perf.New(perf.Config{}),
	}
	f.svc = New(Deps{
		Documents: f.docs,
		Index:     f.index,
		Embedder:  f.embedder,
		Cache:     f.cache,
		Queue:     f.queue,
		Tracker:   f.tracker,
		Now:       func() time.Time { return testNow },
	}, 0)
	return f
}

func testGrant() grant.Opportunity {
	return grant.Opportunity{
		ID:      "g-1",
		Sponsor: " acme-foundation ",
		Title:   "Rural STEM Scholarship",
		Summary: "Scholarship for rural students pursuing STEM degrees.",
		Constraints: grant.Constraints{
			ApplicantCategories: []string{"Undergraduate", "undergraduate"},
			States:              []string{"ca"},
			MaxAward:            5000,
		},
	}
}
