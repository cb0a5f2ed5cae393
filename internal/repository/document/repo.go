package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/grantmatch/internal/db"
	"github.com/kailas-cloud/grantmatch/internal/domain"
	"github.com/kailas-cloud/grantmatch/internal/domain/applicant"
	"github.com/kailas-cloud/grantmatch/internal/domain/grant"
)

// KeyPrefix is the namespace of every document key.
const KeyPrefix = "grantmatch:doc:"

// store is the consumer interface for documents (ISP).
type store interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo persists profiles and opportunities as JSON documents.
type Repo struct {
	store store
}

// New creates a document repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// SaveProfile creates or replaces a profile. Returns true if created.
func (r *Repo) SaveProfile(ctx context.Context, p applicant.Profile) (bool, error) {
	return r.save(ctx, profileKey(p.OwnerID, p.ID), profileDoc{Version: schemaVersion, Profile: p})
}

// GetProfile returns a stored profile.
func (r *Repo) GetProfile(ctx context.Context, ownerID, id string) (applicant.Profile, error) {
	var doc profileDoc
	if err := r.load(ctx, profileKey(ownerID, id), &doc, domain.ErrProfileNotFound); err != nil {
		return applicant.Profile{}, err
	}
	return doc.Profile, nil
}

// DeleteProfile removes a stored profile.
func (r *Repo) DeleteProfile(ctx context.Context, ownerID, id string) error {
	return r.delete(ctx, profileKey(ownerID, id), domain.ErrProfileNotFound)
}

// SaveGrant creates or replaces an opportunity. Returns true if created.
func (r *Repo) SaveGrant(ctx context.Context, g grant.Opportunity) (bool, error) {
	return r.save(ctx, grantKey(g.Sponsor, g.ID), grantDoc{Version: schemaVersion, Grant: g})
}

// GetGrant returns a stored opportunity.
func (r *Repo) GetGrant(ctx context.Context, sponsor, id string) (grant.Opportunity, error) {
	var doc grantDoc
	if err := r.load(ctx, grantKey(sponsor, id), &doc, domain.ErrGrantNotFound); err != nil {
		return grant.Opportunity{}, err
	}
	return doc.Grant, nil
}

// DeleteGrant removes a stored opportunity.
func (r *Repo) DeleteGrant(ctx context.Context, sponsor, id string) error {
	return r.delete(ctx, grantKey(sponsor, id), domain.ErrGrantNotFound)
}

// ListGrants returns every opportunity of a sponsor ordered by ID.
// Documents that vanish or fail to decode between scan and read are skipped.
func (r *Repo) ListGrants(ctx context.Context, sponsor string) ([]grant.Opportunity, error) {
	prefix := grantKey(sponsor, "")
	keys, err := r.store.Scan(ctx, prefix+"*")
	if err != nil {
		return nil, unavailable("scan "+prefix, err)
	}
	sort.Strings(keys)

	out := make([]grant.Opportunity, 0, len(keys))
	for _, key := range keys {
		if strings.Contains(strings.TrimPrefix(key, prefix), ":") {
			continue
		}
		var doc grantDoc
		err := r.load(ctx, key, &doc, domain.ErrGrantNotFound)
		switch {
		case err == nil:
			out = append(out, doc.Grant)
		case errors.Is(err, domain.ErrGrantNotFound):
		case errors.Is(err, domain.ErrUnavailable), ctxErr(err):
			return nil, err
		}
	}
	return out, nil
}

func (r *Repo) save(ctx context.Context, key string, doc any) (bool, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("marshal document: %w", err)
	}

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return false, unavailable("exists "+key, err)
	}
	if err := r.store.JSONSet(ctx, key, "$", data); err != nil {
		return false, unavailable("json.set "+key, err)
	}
	return !exists, nil
}

func (r *Repo) load(ctx context.Context, key string, out any, notFound error) error {
	raw, err := r.store.JSONGet(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return notFound
		}
		return unavailable("json.get "+key, err)
	}
	if err := decode(raw, out); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func (r *Repo) delete(ctx context.Context, key string, notFound error) error {
	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return unavailable("exists "+key, err)
	}
	if !exists {
		return notFound
	}
	if err := r.store.Del(ctx, key); err != nil {
		return unavailable("del "+key, err)
	}
	return nil
}

func profileKey(ownerID, id string) string {
	return KeyPrefix + "profile:" + ownerID + ":" + id
}

func grantKey(sponsor, id string) string {
	return KeyPrefix + "grant:" + sponsor + ":" + id
}

func ctxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func unavailable(op string, err error) error {
	if ctxErr(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrDocumentStoreUnavailable, op, err)
}
