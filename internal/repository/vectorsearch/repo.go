// Package vectorsearch stores grant entities in a hash-backed FT index and
// answers filtered KNN queries over their narrative embeddings.
package vectorsearch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/grantmatch/internal/db"
	"github.com/kailas-cloud/grantmatch/internal/domain"
	"github.com/kailas-cloud/grantmatch/internal/domain/grant"
	"github.com/kailas-cloud/grantmatch/internal/domain/match"
	"github.com/kailas-cloud/grantmatch/internal/domain/predicate"
)

const (
	vectorField    = "vector"
	narrativeField = "narrative"
)

// entityNamespace derives stable entity ids from sponsor and grant id.
var entityNamespace = uuid.MustParse("6f1c2b1e-6d55-4c63-9a57-3f0f1f2a9c41")

// returnFields is everything but the raw vector.
var returnFields = []string{
	grant.AttrID, grant.AttrSponsor, grant.AttrTitle, grant.AttrSummary,
	grant.AttrApplicantCategories, grant.AttrStates, grant.AttrFundingCategories,
	grant.AttrMinAward, grant.AttrMaxAward, grant.AttrAwardCeiling, grant.AttrDeadline,
	grant.AttrEssayRequired, grant.AttrIngestedAt, grant.AttrExpiresAt,
}

// store is the consumer interface for the vector index (ISP).
type store interface {
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Config describes the index layout.
type Config struct {
	IndexName       string
	KeyPrefix       string
	Dimensions      int
	HNSWM           int
	HNSWEFConstruct int
}

// Repo is the vector search service.
type Repo struct {
	store    store
	embedder domain.Embedder
	cfg      Config
}

// New creates a vector search repository. embedder vectorizes query text.
func New(s store, embedder domain.Embedder, cfg Config) *Repo {
	return &Repo{store: s, embedder: embedder, cfg: cfg}
}

// IndexDefinition returns the FT schema of the grant index.
func (r *Repo) IndexDefinition() (*db.IndexDefinition, error) {
	return db.NewIndex(r.cfg.IndexName).
		Prefix(r.cfg.KeyPrefix).
		Tag(grant.AttrSponsor).
		TagSeparated(grant.AttrApplicantCategories, grant.TagSeparator).
		TagSeparated(grant.AttrStates, grant.TagSeparator).
		TagSeparated(grant.AttrFundingCategories, grant.TagSeparator).
		Tag(grant.AttrEssayRequired).
		Numeric(grant.AttrMinAward, grant.AttrMaxAward, grant.AttrAwardCeiling, grant.AttrDeadline, grant.AttrExpiresAt).
		VectorHNSW(vectorField, r.cfg.Dimensions, db.DistanceCosine, r.cfg.HNSWM, r.cfg.HNSWEFConstruct).
		Build()
}

// EnsureIndex creates the grant index if it does not exist yet.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	def, err := r.IndexDefinition()
	if err != nil {
		return fmt.Errorf("grant index definition: %w", err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return r.unavailable("create index", err)
	}
	return nil
}

// Search embeds query and returns the nearest entities that satisfy p with
// similarity at or above minSimilarity, nearest first.
func (r *Repo) Search(
	ctx context.Context, query string, p predicate.Predicate, minSimilarity float64, limit int,
) ([]match.Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}
	emb, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.cfg.IndexName,
		VectorField:  vectorField,
		Filter:       p,
		Vector:       emb.Embedding,
		K:            limit,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, r.unavailable("search", err)
	}

	out := make([]match.Candidate, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		if e.Score < minSimilarity {
			continue
		}
		out = append(out, match.Candidate{
			ID:         strings.TrimPrefix(e.Key, r.cfg.KeyPrefix),
			Attributes: e.Fields,
			Similarity: e.Score,
		})
	}
	return out, nil
}

// StoreEntity writes the attribute bag and narrative text and returns the
// entity id. Ids are stable per sponsor and grant id, so re-storing a grant
// overwrites its previous entity.
func (r *Repo) StoreEntity(ctx context.Context, attrs map[string]string, narrative string) (string, error) {
	id := EntityID(attrs[grant.AttrSponsor], attrs[grant.AttrID])

	fields := make(map[string]string, len(attrs)+1)
	maps.Copy(fields, attrs)
	fields[narrativeField] = narrative

	if err := r.store.HSet(ctx, r.key(id), fields); err != nil {
		return "", r.unavailable("store entity", err)
	}
	return id, nil
}

// UploadVector attaches the embedding to an entity.
func (r *Repo) UploadVector(ctx context.Context, id string, vector []float32) error {
	if len(vector) != r.cfg.Dimensions {
		return fmt.Errorf("vector has %d dimensions, index expects %d", len(vector), r.cfg.Dimensions)
	}
	if err := r.store.HSet(ctx, r.key(id), map[string]string{vectorField: db.EncodeVector(vector)}); err != nil {
		return r.unavailable("upload vector", err)
	}
	return nil
}

// Expire schedules removal of an entity after ttl.
func (r *Repo) Expire(ctx context.Context, id string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.store.Expire(ctx, r.key(id), ttl, false); err != nil {
		return r.unavailable("expire entity", err)
	}
	return nil
}

// DeleteEntity removes an entity. Missing entities are not an error.
func (r *Repo) DeleteEntity(ctx context.Context, id string) error {
	if err := r.store.Del(ctx, r.key(id)); err != nil {
		return r.unavailable("delete entity", err)
	}
	return nil
}

// Entity returns the stored attribute bag of an entity.
func (r *Repo) Entity(ctx context.Context, id string) (map[string]string, error) {
	attrs, err := r.store.HGetAll(ctx, r.key(id))
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, domain.ErrGrantNotFound
	}
	if err != nil {
		return nil, r.unavailable("get entity", err)
	}
	delete(attrs, vectorField)
	return attrs, nil
}

// Count returns the number of indexed entities.
func (r *Repo) Count(ctx context.Context) (int, error) {
	n, err := r.store.SearchCount(ctx, r.cfg.IndexName, "*")
	if err != nil {
		return 0, r.unavailable("count", err)
	}
	return n, nil
}

// EntityID is the entity id StoreEntity assigns to a sponsor's grant.
func (r *Repo) EntityID(sponsor, grantID string) string {
	return EntityID(sponsor, grantID)
}

// EntityID returns the stable entity id of a sponsor's grant.
func EntityID(sponsor, grantID string) string {
	if sponsor == "" && grantID == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(entityNamespace, []byte(sponsor+"\x00"+grantID)).String()
}

func (r *Repo) key(id string) string {
	return r.cfg.KeyPrefix + id
}

// unavailable maps store failures to ErrVectorSearchUnavailable; context
// errors pass through unchanged.
func (r *Repo) unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrVectorSearchUnavailable, op, err)
}
