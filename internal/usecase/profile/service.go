// Package profile manages stored applicant profiles.
package profile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/grantmatch/internal/cache"
	"github.com/kailas-cloud/grantmatch/internal/domain"
	"github.com/kailas-cloud/grantmatch/internal/domain/applicant"
	"github.com/kailas-cloud/grantmatch/internal/logger"
)

// DefaultCacheOptions keep a profile snapshot while it is being read.
var DefaultCacheOptions = cache.Options{Sliding: 15 * time.Minute, Absolute: time.Hour}

// Deps are the collaborators of the profile service.
type Deps struct {
	Store store
	// Cache is optional; nil disables snapshot caching.
	Cache *cache.Store
	// Conversation is optional; nil disables Enrich.
	Conversation domain.Conversation
	Vocabulary   applicant.Vocabulary
	CacheOptions cache.Options
	Logger       *zap.Logger
	Now          func() time.Time
}

// Service is the profile usecase.
type Service struct {
	store        store
	cache        *cache.Store
	conversation domain.Conversation
	vocab        applicant.Vocabulary
	cacheOpts    cache.Options
	logger       *zap.Logger
	now          func() time.Time
}

// New creates a profile service.
func New(deps Deps) *Service {
	s := &Service{
		store:        deps.Store,
		cache:        deps.Cache,
		conversation: deps.Conversation,
		vocab:        deps.Vocabulary,
		cacheOpts:    deps.CacheOptions,
		logger:       deps.Logger,
		now:          deps.Now,
	}
	if s.vocab.States == nil {
		s.vocab = applicant.DefaultVocabulary()
	}
	if s.cacheOpts == (cache.Options{}) {
		s.cacheOpts = DefaultCacheOptions
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// CacheKey is the snapshot key of a stored profile.
func CacheKey(ownerID, id string) string {
	return "profile:" + ownerID + ":" + id
}

// EnrichEnabled reports whether a conversation provider is configured.
func (s *Service) EnrichEnabled() bool {
	return s.conversation != nil
}

// Save validates and stores a profile. Returns the stored profile and
// whether it was created.
func (s *Service) Save(ctx context.Context, p applicant.Profile) (applicant.Profile, bool, error) {
	p = p.Normalize()
	if err := p.ValidateIdentity(); err != nil {
		return applicant.Profile{}, false, err
	}
	if strings.ContainsAny(p.OwnerID+p.ID, ":*?") {
		return applicant.Profile{}, false, domain.NewFieldError("id", "must not contain ':', '*' or '?'")
	}
	if err := p.Validate(s.vocab); err != nil {
		return applicant.Profile{}, false, err
	}
	p.UpdatedAt = s.now().UTC().Truncate(time.Second)

	created, err := s.store.SaveProfile(ctx, p)
	if err != nil {
		return applicant.Profile{}, false, fmt.Errorf("save profile: %w", err)
	}
	s.forget(ctx, p.OwnerID, p.ID)

	logger.FromContextOr(ctx, s.logger).Info("profile saved",
		zap.String("owner_id", p.OwnerID),
		zap.String("profile_id", p.ID),
		zap.Bool("created", created),
	)
	return p, created, nil
}

// Get returns a stored profile, served from the snapshot cache when possible.
func (s *Service) Get(ctx context.Context, ownerID, id string) (applicant.Profile, error) {
	if s.cache == nil {
		return s.load(ctx, ownerID, id)
	}
	p, _, err := cache.GetOrCreateJSON(ctx, s.cache, CacheKey(ownerID, id), s.cacheOpts,
		func(ctx context.Context) (applicant.Profile, error) {
			return s.load(ctx, ownerID, id)
		})
	if err != nil {
		return applicant.Profile{}, err
	}
	return p, nil
}

// Delete removes a stored profile.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if err := s.store.DeleteProfile(ctx, ownerID, id); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	s.forget(ctx, ownerID, id)
	return nil
}

// EnrichResult is the outcome of Enrich.
type EnrichResult struct {
	Profile applicant.Profile `json:"profile"`
	Reply   string            `json:"reply,omitempty"`
	// Updated is false when nothing usable was extracted.
	Updated bool `json:"updated"`
	// Ignored lists extracted values outside the vocabulary.
	Ignored []string `json:"ignored,omitempty"`
}

// Enrich extracts applicant attributes from free text and merges them into
// the stored profile. Extracted values outside the vocabulary are dropped.
func (s *Service) Enrich(ctx context.Context, ownerID, id, message string) (EnrichResult, error) {
	if s.conversation == nil {
		return EnrichResult{}, fmt.Errorf("profile enrichment: %w", domain.ErrFeatureDisabled)
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return EnrichResult{}, domain.NewFieldError("message", "is required")
	}

	current, err := s.load(ctx, ownerID, id)
	if err != nil {
		return EnrichResult{}, err
	}

	reply, err := s.conversation.Converse(ctx, message)
	if err != nil {
		return EnrichResult{}, fmt.Errorf("converse: %w", err)
	}

	extracted, ignored := s.filter(reply.Extracted)
	res := EnrichResult{Profile: current, Reply: reply.Reply, Ignored: ignored}
	if extracted.Empty() {
		return res, nil
	}

	saved, _, err := s.Save(ctx, current.ApplyExtracted(extracted))
	if err != nil {
		return EnrichResult{}, err
	}
	res.Profile = saved
	res.Updated = true

	logger.FromContextOr(ctx, s.logger).Debug("profile enriched",
		zap.String("owner_id", ownerID),
		zap.String("profile_id", id),
		zap.Strings("ignored", ignored),
	)
	return res, nil
}

func (s *Service) load(ctx context.Context, ownerID, id string) (applicant.Profile, error) {
	p, err := s.store.GetProfile(ctx, ownerID, id)
	if err != nil {
		return applicant.Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// filter keeps the extracted values known to the vocabulary.
func (s *Service) filter(a domain.ExtractedAttributes) (domain.ExtractedAttributes, []string) {
	var ignored []string
	keep := func(tags []string, known map[string]bool) []string {
		var out []string
		for _, t := range applicant.NormalizeTags(tags) {
			if known[t] {
				out = append(out, t)
				continue
			}
			ignored = append(ignored, t)
		}
		return out
	}
	a.Categories = keep(a.Categories, s.vocab.Categories)
	a.FundingCategories = keep(a.FundingCategories, s.vocab.FundingCategories)
	if loc := applicant.NormalizeLocation(a.Location); loc != "" && !s.vocab.States[loc] {
		ignored = append(ignored, loc)
		a.Location = ""
	}
	if a.TypicalBudget != nil && *a.TypicalBudget < 0 {
		a.TypicalBudget = nil
	}
	if a.AnnualBudget != nil && *a.AnnualBudget < 0 {
		a.AnnualBudget = nil
	}
	if len(a.Summary) > applicant.MaxSummaryLength {
		a.Summary = a.Summary[:applicant.MaxSummaryLength]
	}
	return a, ignored
}

func (s *Service) forget(ctx context.Context, ownerID, id string) {
	if s.cache != nil {
		s.cache.Remove(ctx, CacheKey(ownerID, id))
	}
}
