package applicant

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/grantmatch/internal/domain"
)

// MaxSummaryLength bounds the narrative summary used as the fallback query.
const MaxSummaryLength = 8192

// Profile is the entity seeking funding. The matching engine never mutates it.
type Profile struct {
	ID                string    `json:"id"`
	OwnerID           string    `json:"owner_id"`
	Name              string    `json:"name,omitempty"`
	Categories        []string  `json:"categories,omitempty"`
	Location          string    `json:"location,omitempty"`
	FundingCategories []string  `json:"funding_categories,omitempty"`
	TypicalBudget     float64   `json:"typical_budget,omitempty"`
	AnnualBudget      float64   `json:"annual_budget,omitempty"`
	Summary           string    `json:"summary,omitempty"`
	UpdatedAt         time.Time `json:"updated_at,omitzero"`
}

// Normalize returns a copy with canonical tags and location.
func (p Profile) Normalize() Profile {
	p.Categories = NormalizeTags(p.Categories)
	p.FundingCategories = NormalizeTags(p.FundingCategories)
	p.Location = NormalizeLocation(p.Location)
	p.Summary = strings.TrimSpace(p.Summary)
	return p
}

// Validate checks the profile against the vocabulary. Call on a normalized profile.
// Empty tags and location are valid and mean "no constraint".
func (p Profile) Validate(v Vocabulary) error {
	if p.Location != "" && !v.States[p.Location] {
		return domain.NewFieldError("location", fmt.Sprintf("unknown location %q", p.Location))
	}
	for _, c := range p.Categories {
		if !v.Categories[c] {
			return domain.NewFieldError("categories", fmt.Sprintf("unknown category %q", c))
		}
	}
	for _, c := range p.FundingCategories {
		if !v.FundingCategories[c] {
			return domain.NewFieldError("funding_categories", fmt.Sprintf("unknown funding category %q", c))
		}
	}
	if p.TypicalBudget < 0 {
		return domain.NewFieldError("typical_budget", "must not be negative")
	}
	if p.AnnualBudget < 0 {
		return domain.NewFieldError("annual_budget", "must not be negative")
	}
	if len(p.Summary) > MaxSummaryLength {
		return domain.NewFieldError("summary", fmt.Sprintf("too long (max %d chars)", MaxSummaryLength))
	}
	return nil
}

// ValidateIdentity checks the keys a stored profile needs.
func (p Profile) ValidateIdentity() error {
	if p.OwnerID == "" {
		return domain.NewFieldError("owner_id", "is required")
	}
	if p.ID == "" {
		return domain.NewFieldError("id", "is required")
	}
	return nil
}

// Fingerprint returns the matching-relevant attributes as canonical strings.
// Identity and display name are excluded: two applicants with identical
// attributes receive identical results.
func (p Profile) Fingerprint() map[string]string {
	cats := append([]string(nil), p.Categories...)
	sort.Strings(cats)
	funding := append([]string(nil), p.FundingCategories...)
	sort.Strings(funding)
	return map[string]string{
		"applicant.categories":         strings.Join(cats, "\x1f"),
		"applicant.location":           p.Location,
		"applicant.funding_categories": strings.Join(funding, "\x1f"),
		"applicant.typical_budget":     strconv.FormatFloat(p.TypicalBudget, 'f', -1, 64),
		"applicant.annual_budget":      strconv.FormatFloat(p.AnnualBudget, 'f', -1, 64),
	}
}

// ApplyExtracted merges attributes recognized by a conversation provider.
// Tag lists are unioned; scalar attributes overwrite only when present.
func (p Profile) ApplyExtracted(a domain.ExtractedAttributes) Profile {
	p.Categories = NormalizeTags(append(append([]string(nil), p.Categories...), a.Categories...))
	p.FundingCategories = NormalizeTags(append(append([]string(nil), p.FundingCategories...), a.FundingCategories...))
	if a.Location != "" {
		p.Location = NormalizeLocation(a.Location)
	}
	if a.TypicalBudget != nil {
		p.TypicalBudget = *a.TypicalBudget
	}
	if a.AnnualBudget != nil {
		p.AnnualBudget = *a.AnnualBudget
	}
	if s := strings.TrimSpace(a.Summary); s != "" {
		p.Summary = s
	}
	return p
}
