package request

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kailas-cloud/grantmatch/internal/domain"
	"github.com/kailas-cloud/grantmatch/internal/domain/applicant"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed query length.
	MaxQueryLength = 4096
	DefaultLimit   = 20
	MaxLimit       = 100
	MaxOffset      = 1000
)

// Filters are caller-supplied hard bounds on the catalog.
// Nil pointers and zero times mean "not set".
type Filters struct {
	MinAward       *float64  `json:"min_award,omitempty"`
	MaxAward       *float64  `json:"max_award,omitempty"`
	DeadlineAfter  time.Time `json:"deadline_after,omitzero"`
	DeadlineBefore time.Time `json:"deadline_before,omitzero"`
	EssayRequired  *bool     `json:"essay_required,omitempty"`
}

// Params are the raw request fields before validation.
type Params struct {
	Applicant     *applicant.Profile
	OwnerID       string
	ProfileID     string
	Query         string
	Offset        int
	Limit         int
	MinSimilarity float64
	Filters       Filters
	EligibleOnly  bool
}

// Request is a validated FindGrants query.
type Request struct {
	applicant     *applicant.Profile
	ownerID       string
	profileID     string
	query         string
	offset        int
	limit         int
	minSimilarity float64
	filters       Filters
	eligibleOnly  bool
}

// New validates and normalizes search parameters. Exactly one of an inline
// applicant or an owner/profile reference is required. Limit defaults to 20.
func New(p Params) (Request, error) {
	if p.Applicant == nil && (p.OwnerID == "" || p.ProfileID == "") {
		return Request{}, domain.NewFieldError("applicant", "inline applicant or owner_id and profile_id are required")
	}
	if p.Applicant != nil && (p.OwnerID != "" || p.ProfileID != "") {
		return Request{}, domain.NewFieldError("applicant", "inline applicant and profile reference are mutually exclusive")
	}
	query := strings.TrimSpace(p.Query)
	if len(query) > MaxQueryLength {
		return Request{}, domain.NewFieldError("query", fmt.Sprintf("too long (max %d chars)", MaxQueryLength))
	}
	if p.Offset < 0 {
		return Request{}, domain.NewFieldError("offset", "must not be negative")
	}
	if p.Offset > MaxOffset {
		return Request{}, domain.NewFieldError("offset", fmt.Sprintf("must not exceed %d", MaxOffset))
	}
	if p.Limit < 0 {
		return Request{}, domain.NewFieldError("limit", "must not be negative")
	}
	limit := p.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if math.IsNaN(p.MinSimilarity) || p.MinSimilarity < 0 || p.MinSimilarity > 1 {
		return Request{}, domain.NewFieldError("min_similarity", "must be between 0 and 1")
	}
	if err := p.Filters.validate(); err != nil {
		return Request{}, err
	}

	var profile *applicant.Profile
	if p.Applicant != nil {
		n := p.Applicant.Normalize()
		profile = &n
		if query == "" && profile.Summary == "" {
			return Request{}, domain.NewFieldError("query", "query is required when the applicant has no summary")
		}
	}

	return Request{
		applicant:     profile,
		ownerID:       p.OwnerID,
		profileID:     p.ProfileID,
		query:         query,
		offset:        p.Offset,
		limit:         limit,
		minSimilarity: p.MinSimilarity,
		filters:       p.Filters,
		eligibleOnly:  p.EligibleOnly,
	}, nil
}

func (f Filters) validate() error {
	if f.MinAward != nil && (*f.MinAward < 0 || math.IsNaN(*f.MinAward)) {
		return domain.NewFieldError("filters.min_award", "must not be negative")
	}
	if f.MaxAward != nil && (*f.MaxAward < 0 || math.IsNaN(*f.MaxAward)) {
		return domain.NewFieldError("filters.max_award", "must not be negative")
	}
	if f.MinAward != nil && f.MaxAward != nil && *f.MinAward > *f.MaxAward {
		return domain.NewFieldError("filters.max_award", "must not be less than min_award")
	}
	if !f.DeadlineAfter.IsZero() && !f.DeadlineBefore.IsZero() && f.DeadlineBefore.Before(f.DeadlineAfter) {
		return domain.NewFieldError("filters.deadline_before", "must not precede deadline_after")
	}
	return nil
}

// Applicant returns the inline applicant, or nil when the request references a stored profile.
func (r *Request) Applicant() *applicant.Profile { return r.applicant }

// ProfileRef returns the stored profile reference.
func (r *Request) ProfileRef() (ownerID, profileID string) { return r.ownerID, r.profileID }

// Query returns the explicit query text, possibly empty.
func (r *Request) Query() string { return r.query }

// Offset returns the pagination offset.
func (r *Request) Offset() int { return r.offset }

// Limit returns the page size.
func (r *Request) Limit() int { return r.limit }

// Window is the number of ranked results needed to serve the page.
func (r *Request) Window() int { return r.offset + r.limit }

// MinSimilarity returns the semantic similarity threshold.
func (r *Request) MinSimilarity() float64 { return r.minSimilarity }

// Filters returns the hard bounds.
func (r *Request) Filters() Filters { return r.filters }

// EligibleOnly reports whether ineligible results are dropped.
func (r *Request) EligibleOnly() bool { return r.eligibleOnly }

// WithApplicant returns a copy bound to a resolved profile.
func (r Request) WithApplicant(p applicant.Profile) Request {
	n := p.Normalize()
	r.applicant = &n
	return r
}

// QueryText is the text sent to semantic search: the explicit query, or the
// applicant's narrative summary.
func (r *Request) QueryText() string {
	if r.query != "" {
		return r.query
	}
	if r.applicant != nil {
		return r.applicant.Summary
	}
	return ""
}

// NormalizeQuery canonicalizes query text for fingerprinting.
func NormalizeQuery(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
