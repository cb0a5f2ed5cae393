package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/grantmatch/internal/domain"
	"github.com/kailas-cloud/grantmatch/internal/domain/applicant"
)

func TestSave(t *testing.T) {
	store := newMockStore()
	svc, _ := newTestService(t, store, nil)

	got, created, err := svc.Save(context.Background(), testProfile())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "CA", got.Location)
	assert.Equal(t, []string{"nonprofit"}, got.Categories)
	assert.Equal(t, []string{"arts", "youth"}, got.FundingCategories)
	assert.Equal(t, testNow, got.UpdatedAt)

	_, created, err = svc.Save(context.Background(), testProfile())
	require.NoError(t, err)
	assert.False(t, created)
}

func TestSave_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *applicant.Profile)
		field  string
	}{
		{"missing owner", func(p *applicant.Profile) { p.OwnerID = "" }, "owner_id"},
		{"missing id", func(p *applicant.Profile) { p.ID = "" }, "id"},
		{"id with separator", func(p *applicant.Profile) { p.ID = "a:b" }, "id"},
		{"unknown location", func(p *applicant.Profile) { p.Location = "ZZ" }, "location"},
		{"unknown category", func(p *applicant.Profile) { p.Categories = []string{"pirates"} }, "categories"},
		{"negative budget", func(p *applicant.Profile) { p.TypicalBudget = -1 }, "typical_budget"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			svc, _ := newTestService(t, store, nil)
			p := testProfile()
			tt.mutate(&p)

			_, _, err := svc.Save(context.Background(), p)
			require.ErrorIs(t, err, domain.ErrValidation)
			var fe *domain.FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
			assert.Empty(t, store.profiles)
		})
	}
}

func TestGet_CachesSnapshot(t *testing.T) {
	store := newMockStore()
	svc, _ := newTestService(t, store, nil)
	_, _, err := svc.Save(context.Background(), testProfile())
	require.NoError(t, err)

	for range 3 {
		p, err := svc.Get(context.Background(), "owner-1", "p-1")
		require.NoError(t, err)
		assert.Equal(t, "Riverbend Arts Collective", p.Name)
	}
	assert.Equal(t, 1, store.getCount())
}

func TestSave_InvalidatesSnapshot(t *testing.T) {
	store := newMockStore()
	svc, _ := newTestService(t, store, nil)
	ctx := context.Background()
	_, _, err := svc.Save(ctx, testProfile())
	require.NoError(t, err)
	_, err = svc.Get(ctx, "owner-1", "p-1")
	require.NoError(t, err)

	p := testProfile()
	p.Name = "Renamed"
	_, _, err = svc.Save(ctx, p)
	require.NoError(t, err)

	got, err := svc.Get(ctx, "owner-1", "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, 2, store.getCount())
}

func TestGet_NotFoundIsNotCached(t *testing.T) {
	store := newMockStore()
	svc, _ := newTestService(t, store, nil)

	_, err := svc.Get(context.Background(), "owner-1", "p-1")
	require.ErrorIs(t, err, domain.ErrProfileNotFound)
	_, err = svc.Get(context.Background(), "owner-1", "p-1")
	require.ErrorIs(t, err, domain.ErrProfileNotFound)
	assert.Equal(t, 2, store.getCount())
}

func TestGet_WithoutCache(t *testing.T) {
	store := newMockStore()
	svc := New(Deps{Store: store})
	_, _, err := svc.Save(context.Background(), testProfile())
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), "owner-1", "p-1")
	require.NoError(t, err)
	_, err = svc.Get(context.Background(), "owner-1", "p-1")
	require.NoError(t, err)
	assert.Equal(t, 2, store.getCount())
}

func TestDelete(t *testing.T) {
	store := newMockStore()
	svc, _ := newTestService(t, store, nil)
	ctx := context.Background()
	_, _, err := svc.Save(ctx, testProfile())
	require.NoError(t, err)
	_, err = svc.Get(ctx, "owner-1", "p-1")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "owner-1", "p-1"))
	_, err = svc.Get(ctx, "owner-1", "p-1")
	require.ErrorIs(t, err, domain.ErrProfileNotFound)

	err = svc.Delete(ctx, "owner-1", "p-1")
	require.ErrorIs(t, err, domain.ErrProfileNotFound)
}

func TestEnrich_Disabled(t *testing.T) {
	svc, _ := newTestService(t, newMockStore(), nil)
	assert.False(t, svc.EnrichEnabled())

	_, err := svc.Enrich(context.Background(), "owner-1", "p-1", "we run after-school programs")
	require.ErrorIs(t, err, domain.ErrFeatureDisabled)
}

func TestEnrich_MergesKnownAttributes(t *testing.T) {
	store := newMockStore()
	conv := &mockConversation{
		converseFn: func(context.Context, string) (domain.ConversationReply, error) {
			return domain.ConversationReply{
				Reply: "Noted.",
				Extracted: domain.ExtractedAttributes{
					Categories:        []string{"501(c)(3)", "space pirates"},
					FundingCategories: []string{"Education"},
					Location:          "or",
					AnnualBudget:      ptr(400000),
				},
			}, nil
		},
	}
	svc, _ := newTestService(t, store, conv)
	ctx := context.Background()
	_, _, err := svc.Save(ctx, testProfile())
	require.NoError(t, err)

	res, err := svc.Enrich(ctx, "owner-1", "p-1", "  we moved to Oregon and run tutoring  ")
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, "Noted.", res.Reply)
	assert.Equal(t, []string{"space pirates"}, res.Ignored)
	assert.Equal(t, []string{"nonprofit", "501(c)(3)"}, res.Profile.Categories)
	assert.Equal(t, []string{"arts", "youth", "education"}, res.Profile.FundingCategories)
	assert.Equal(t, "OR", res.Profile.Location)
	assert.InDelta(t, 400000, res.Profile.AnnualBudget, 0.001)
	assert.InDelta(t, 25000, res.Profile.TypicalBudget, 0.001)
	assert.Equal(t, []string{"we moved to Oregon and run tutoring"}, conv.texts)

	stored, err := svc.Get(ctx, "owner-1", "p-1")
	require.NoError(t, err)
	assert.Equal(t, "OR", stored.Location)
}

func TestEnrich_NothingExtracted(t *testing.T) {
	store := newMockStore()
	conv := &mockConversation{
		converseFn: func(context.Context, string) (domain.ConversationReply, error) {
			return domain.ConversationReply{
				Reply:     "Tell me more.",
				Extracted: domain.ExtractedAttributes{Location: "Atlantis"},
			}, nil
		},
	}
	svc, _ := newTestService(t, store, conv)
	ctx := context.Background()
	saved, _, err := svc.Save(ctx, testProfile())
	require.NoError(t, err)

	res, err := svc.Enrich(ctx, "owner-1", "p-1", "hello")
	require.NoError(t, err)
	assert.False(t, res.Updated)
	assert.Equal(t, saved, res.Profile)
	assert.Equal(t, []string{"ATLANTIS"}, res.Ignored)
}

func TestEnrich_Errors(t *testing.T) {
	convErr := errors.New("boom")
	tests := []struct {
		name    string
		message string
		stored  bool
		convErr error
		want    error
	}{
		{"empty message", "   ", true, nil, domain.ErrValidation},
		{"missing profile", "hi", false, nil, domain.ErrProfileNotFound},
		{"provider down", "hi", true, domain.ErrConversationUnavailable, domain.ErrConversationUnavailable},
		{"provider error kept", "hi", true, convErr, convErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			conv := &mockConversation{
				converseFn: func(context.Context, string) (domain.ConversationReply, error) {
					return domain.ConversationReply{}, tt.convErr
				},
			}
			svc, _ := newTestService(t, store, conv)
			if tt.stored {
				_, _, err := svc.Save(context.Background(), testProfile())
				require.NoError(t, err)
			}

			_, err := svc.Enrich(context.Background(), "owner-1", "p-1", tt.message)
			require.ErrorIs(t, err, tt.want)
		})
	}
}
