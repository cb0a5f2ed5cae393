package grant

import (
	"strings"
	"time"

	"github.com/kailas-cloud/grantmatch/internal/domain"
	"github.com/kailas-cloud/grantmatch/internal/domain/applicant"
)

// Opportunity is a fundable program. The matching engine treats it as read-only.
type Opportunity struct {
	ID          string      `json:"id"`
	Sponsor     string      `json:"sponsor"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	Summary     string      `json:"summary,omitempty"`
	Constraints Constraints `json:"constraints"`
	VectorID    string      `json:"vector_id,omitempty"`
	IngestedAt  time.Time   `json:"ingested_at,omitzero"`
	ExpiresAt   time.Time   `json:"expires_at,omitzero"`
}

// Constraints are the eligibility rules of an opportunity.
// Empty allow-lists and zero values mean "unconstrained".
type Constraints struct {
	ApplicantCategories []string  `json:"applicant_categories,omitempty"`
	States              []string  `json:"states,omitempty"`
	FundingCategories   []string  `json:"funding_categories,omitempty"`
	MinAward            float64   `json:"min_award,omitempty"`
	MaxAward            float64   `json:"max_award,omitempty"`
	Deadline            time.Time `json:"deadline,omitzero"`
	EssayRequired       bool      `json:"essay_required,omitempty"`
}

// AwardCeiling is the largest award the opportunity offers.
func (o Opportunity) AwardCeiling() float64 {
	if o.Constraints.MaxAward > 0 {
		return o.Constraints.MaxAward
	}
	return o.Constraints.MinAward
}

// Expired reports whether the opportunity is past its retention window.
func (o Opportunity) Expired(now time.Time) bool {
	return !o.ExpiresAt.IsZero() && !now.Before(o.ExpiresAt)
}

// NarrativeText is the text embedded for semantic search.
func (o Opportunity) NarrativeText() string {
	if s := strings.TrimSpace(o.Summary); s != "" {
		return s
	}
	parts := make([]string, 0, 2)
	if o.Title != "" {
		parts = append(parts, o.Title)
	}
	if o.Description != "" {
		parts = append(parts, o.Description)
	}
	return strings.Join(parts, ". ")
}

// Normalize returns a copy with canonical constraint tags.
func (o Opportunity) Normalize() Opportunity {
	o.Sponsor = strings.TrimSpace(o.Sponsor)
	o.Constraints.ApplicantCategories = applicant.NormalizeTags(o.Constraints.ApplicantCategories)
	o.Constraints.FundingCategories = applicant.NormalizeTags(o.Constraints.FundingCategories)
	states := make([]string, 0, len(o.Constraints.States))
	seen := make(map[string]bool, len(o.Constraints.States))
	for _, s := range o.Constraints.States {
		n := applicant.NormalizeLocation(s)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		states = append(states, n)
	}
	o.Constraints.States = nil
	if len(states) > 0 {
		o.Constraints.States = states
	}
	return o
}

// Validate checks an opportunity before ingestion.
func (o Opportunity) Validate() error {
	if o.ID == "" {
		return domain.NewFieldError("id", "is required")
	}
	if o.Sponsor == "" {
		return domain.NewFieldError("sponsor", "is required")
	}
	if strings.ContainsAny(o.ID, ":*? ") {
		return domain.NewFieldError("id", "must not contain ':', '*', '?' or spaces")
	}
	if strings.ContainsAny(o.Sponsor, ":*?") {
		return domain.NewFieldError("sponsor", "must not contain ':', '*' or '?'")
	}
	c := o.Constraints
	if c.MinAward < 0 {
		return domain.NewFieldError("constraints.min_award", "must not be negative")
	}
	if c.MaxAward < 0 {
		return domain.NewFieldError("constraints.max_award", "must not be negative")
	}
	if c.MaxAward > 0 && c.MinAward > c.MaxAward {
		return domain.NewFieldError("constraints.max_award", "must not be less than min_award")
	}
	if o.NarrativeText() == "" {
		return domain.NewFieldError("summary", "summary, title or description is required")
	}
	return nil
}
