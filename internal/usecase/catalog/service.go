// Package catalog ingests and removes grant opportunities.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/grantmatch/internal/domain"
	"github.com/kailas-cloud/grantmatch/internal/domain/grant"
	"github.com/kailas-cloud/grantmatch/internal/logger"
	"github.com/kailas-cloud/grantmatch/internal/perf"
)

// SearchCachePattern matches every cached search response.
const SearchCachePattern = "search:*"

// DefaultRetention is how long an ingested grant stays searchable.
const DefaultRetention = 90 * 24 * time.Hour

// Deps are the collaborators of the catalog.
type Deps struct {
	Documents Documents
	Index     Index
	Embedder  Embedder
	Cache     Invalidator
	Queue     Enqueuer
	Tracker   *perf.Tracker
	Logger    *zap.Logger
	Now       func() time.Time
}

// Service keeps the document store, the vector index and the search cache
// consistent for grant writes.
type Service struct {
	docs      Documents
	index     Index
	embedder  Embedder
	cache     Invalidator
	queue     Enqueuer
	tracker   *perf.Tracker
	logger    *zap.Logger
	now       func() time.Time
	retention time.Duration
}

// New creates a catalog service. A non-positive retention uses DefaultRetention.
func New(deps Deps, retention time.Duration) *Service {
	if retention <= 0 {
		retention = DefaultRetention
	}
	s := &Service{
		docs:      deps.Documents,
		index:     deps.Index,
		embedder:  deps.Embedder,
		cache:     deps.Cache,
		queue:     deps.Queue,
		tracker:   deps.Tracker,
		logger:    deps.Logger,
		now:       deps.Now,
		retention: retention,
	}
	if s.tracker == nil {
		s.tracker = perf.New(perf.Config{})
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Upsert validates and stores a grant, indexes its narrative and drops cached
// searches. Returns the stored grant and whether it was created.
func (s *Service) Upsert(ctx context.Context, g grant.Opportunity) (grant.Opportunity, bool, error) {
	g = g.Normalize()
	if err := g.Validate(); err != nil {
		return grant.Opportunity{}, false, err
	}

	var created bool
	err := s.tracker.Track(ctx, "catalog.upsert", 0, func(ctx context.Context) error {
		emb, err := s.embedder.Embed(ctx, g.NarrativeText())
		if err != nil {
			return fmt.Errorf("embed narrative: %w", err)
		}

		now := s.now().UTC().Truncate(time.Second)
		g.IngestedAt = now
		g.ExpiresAt = now.Add(s.retention)
		g.VectorID = s.index.EntityID(g.Sponsor, g.ID)

		created, err = s.docs.SaveGrant(ctx, g)
		if err != nil {
			return fmt.Errorf("save grant: %w", err)
		}
		id, err := s.index.StoreEntity(ctx, g.Attributes(), g.NarrativeText())
		if err != nil {
			return fmt.Errorf("store entity: %w", err)
		}
		if err := s.index.UploadVector(ctx, id, emb.Embedding); err != nil {
			return fmt.Errorf("upload vector: %w", err)
		}
		if err := s.index.Expire(ctx, id, s.retention); err != nil {
			return fmt.Errorf("apply retention: %w", err)
		}
		return nil
	})
	if err != nil {
		return grant.Opportunity{}, false, err
	}

	s.invalidate(ctx, "upsert")
	logger.FromContextOr(ctx, s.logger).Info("grant upserted",
		zap.String("sponsor", g.Sponsor),
		zap.String("grant_id", g.ID),
		zap.String("vector_id", g.VectorID),
		zap.Bool("created", created),
	)
	return g, created, nil
}

// Delete removes a grant from the document store and the index. A stale
// index entity is removed even when the document is already gone, in which
// case ErrGrantNotFound is still returned.
func (s *Service) Delete(ctx context.Context, sponsor, id string) error {
	docErr := s.docs.DeleteGrant(ctx, sponsor, id)
	if docErr != nil && !errors.Is(docErr, domain.ErrGrantNotFound) {
		return fmt.Errorf("delete grant: %w", docErr)
	}
	if err := s.index.DeleteEntity(ctx, s.index.EntityID(sponsor, id)); err != nil {
		return fmt.Errorf("delete entity: %w", err)
	}
	s.invalidate(ctx, "delete")
	return docErr
}

// Get returns a grant. When the document is missing or the document store
// is down, the indexed attribute bag is used instead.
func (s *Service) Get(ctx context.Context, sponsor, id string) (grant.Opportunity, error) {
	g, err := s.docs.GetGrant(ctx, sponsor, id)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, domain.ErrGrantNotFound) && !errors.Is(err, domain.ErrDocumentStoreUnavailable) {
		return grant.Opportunity{}, fmt.Errorf("get grant: %w", err)
	}

	entityID := s.index.EntityID(sponsor, id)
	attrs, ierr := s.index.Entity(ctx, entityID)
	if ierr != nil {
		return grant.Opportunity{}, fmt.Errorf("get grant: %w", err)
	}
	return grant.FromAttributes(entityID, attrs), nil
}

// List returns every grant of a sponsor.
func (s *Service) List(ctx context.Context, sponsor string) ([]grant.Opportunity, error) {
	grants, err := s.docs.ListGrants(ctx, sponsor)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	return grants, nil
}

// invalidate drops cached searches in the background, or inline when the
// queue rejects the task.
func (s *Service) invalidate(ctx context.Context, reason string) {
	if s.cache == nil {
		return
	}
	log := logger.FromContextOr(ctx, s.logger)
	if s.queue != nil {
		err := s.queue.Enqueue("catalog.invalidate", func(taskCtx context.Context) error {
			n := s.cache.RemoveByPattern(taskCtx, SearchCachePattern)
			log.Debug("search cache invalidated", zap.String("reason", reason), zap.Int("removed", n))
			return nil
		})
		if err == nil {
			return
		}
		log.Warn("invalidation not queued, running inline", zap.String("reason", reason), zap.Error(err))
	}
	n := s.cache.RemoveByPattern(context.WithoutCancel(ctx), SearchCachePattern)
	log.Debug("search cache invalidated", zap.String("reason", reason), zap.Int("removed", n))
}
