package document

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/grantmatch/internal/db"
	"github.com/kailas-cloud/grantmatch/internal/domain/applicant"
	"github.com/kailas-cloud/grantmatch/internal/domain/grant"
)

// mockStore implements the consumer interface for tests. Unset hooks fall
// back to an in-memory map.
type mockStore struct {
	mu   sync.Mutex
	docs map[string][]byte

	jsonSetFn func(ctx context.Context, key, path string, data []byte) error
	jsonGetFn func(ctx context.Context, key string, paths ...string) ([]byte, error)
	delFn     func(ctx context.Context, key string) error
	existsFn  func(ctx context.Context, key string) (bool, error)
	scanFn    func(ctx context.Context, pattern string) ([]string, error)
}

func (m *mockStore) JSONSet(ctx context.Context, key, path string, data []byte) error {
	if m.jsonSetFn != nil {
		return m.jsonSetFn(ctx, key, path, data)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key] = append([]byte(nil), data...)
	return nil
}

func (m *mockStore) JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error) {
	if m.jsonGetFn != nil {
		return m.jsonGetFn(ctx, key, paths...)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.docs[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *mockStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, key)
	return nil
}

func (m *mockStore) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.docs[key]
	return ok, nil
}

func (m *mockStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range m.docs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{docs: make(map[string][]byte)}
	return New(ms), ms
}

func testProfile() applicant.Profile {
	return applicant.Profile{
		ID:                "p1",
		OwnerID:           "owner-1",
		Name:              "River Trust",
		Categories:        []string{"nonprofit"},
		Location:          "CA",
		FundingCategories: []string{"environment"},
		TypicalBudget:     25000,
		Summary:           "Watershed restoration",
		UpdatedAt:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func testGrant(id string) grant.Opportunity {
	return grant.Opportunity{
		ID:      id,
		Sponsor: "acme",
		Title:   "Clean Water Fund",
		Summary: "Funding for river restoration",
		Constraints: grant.Constraints{
			States:   []string{"CA", "OR"},
			MinAward: 5000,
			MaxAward: 50000,
			Deadline: time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		},
	}
}
