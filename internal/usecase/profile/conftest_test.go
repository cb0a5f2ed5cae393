package profile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kailas-cloud/grantmatch/internal/cache"
	"github.com/kailas-cloud/grantmatch/internal/domain"
	"github.com/kailas-cloud/grantmatch/internal/domain/applicant"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// mockStore keeps profiles in memory; fn fields override behavior.
type mockStore struct {
	mu       sync.Mutex
	profiles map[string]applicant.Profile
	gets     int

	saveFn func(ctx context.Context, p applicant.Profile) (bool, error)
	getFn  func(ctx context.Context, ownerID, id string) (applicant.Profile, error)
}

func newMockStore() *mockStore {
	return &mockStore{profiles: make(map[string]applicant.Profile)}
}

func (m *mockStore) SaveProfile(ctx context.Context, p applicant.Profile) (bool, error) {
	if m.saveFn != nil {
		return m.saveFn(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.profiles[p.OwnerID+"/"+p.ID]
	m.profiles[p.OwnerID+"/"+p.ID] = p
	return !exists, nil
}

func (m *mockStore) GetProfile(ctx context.Context, ownerID, id string) (applicant.Profile, error) {
	m.mu.Lock()
	m.gets++
	m.mu.Unlock()
	if m.getFn != nil {
		return m.getFn(ctx, ownerID, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[ownerID+"/"+id]
	if !ok {
		return applicant.Profile{}, domain.ErrProfileNotFound
	}
	return p, nil
}

func (m *mockStore) DeleteProfile(_ context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[ownerID+"/"+id]; !ok {
		return domain.ErrProfileNotFound
	}
	delete(m.profiles, ownerID+"/"+id)
	return nil
}

func (m *mockStore) getCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}

type mockConversation struct {
	texts      []string
	converseFn func(ctx context.Context, text string) (domain.ConversationReply, error)
}

func (m *mockConversation) Converse(ctx context.Context, text string) (domain.ConversationReply, error) {
	m.texts = append(m.texts, text)
	if m.converseFn != nil {
		return m.converseFn(ctx, text)
	}
	return domain.ConversationReply{}, nil
}

func newTestService(t *testing.T, store *mockStore, conv domain.Conversation) (*Service, *cache.Store) {
	t.Helper()
	c, err := cache.New(cache.Config{Capacity: 16, Now: func() time.Time { return testNow }})
	if err != nil {
		t.Fatal(err)
	}
	svc := New(Deps{
		Store:        store,
		Cache:        c,
		Conversation: conv,
		Now:          func() time.Time { return testNow },
	})
	return svc, c
}

func testProfile() applicant.Profile {
	return applicant.Profile{
		ID:                "p-1",
		OwnerID:           "owner-1",
		Name:              "Riverbend Arts Collective",
		Categories:        []string{"Nonprofit"},
		Location:          "ca",
		FundingCategories: []string{"Arts", "youth"},
		TypicalBudget:     25000,
		Summary:           "Community arts programs for rural youth.",
	}
}

func ptr(v float64) *float64 { return &v }
