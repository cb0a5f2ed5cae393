package applicant

import "strings"

// Vocabulary holds the known tag sets an applicant profile may draw from.
type Vocabulary struct {
	States            map[string]bool
	Categories        map[string]bool
	FundingCategories map[string]bool
}

var usStates = []string{
	"AL", "AK", "AZ", "AR", "CA", "CO", "CT", "DE", "DC", "FL", "GA", "HI", "ID", "IL", "IN",
	"IA", "KS", "KY", "LA", "ME", "MD", "MA", "MI", "MN", "MS", "MO", "MT", "NE", "NV", "NH",
	"NJ", "NM", "NY", "NC", "ND", "OH", "OK", "OR", "PA", "RI", "SC", "SD", "TN", "TX", "UT",
	"VT", "VA", "WA", "WV", "WI", "WY", "PR",
}

var defaultCategories = []string{
	"nonprofit", "501(c)(3)", "small business", "individual", "university",
	"school district", "local government", "tribal government", "state government",
	"faith-based", "cooperative", "for-profit",
}

var defaultFundingCategories = []string{
	"education", "health", "arts", "environment", "housing", "agriculture", "research",
	"technology", "community development", "workforce", "youth", "public safety",
	"energy", "transportation", "humanities", "science", "disaster relief",
}

// DefaultVocabulary returns the built-in vocabulary.
func DefaultVocabulary() Vocabulary {
	return NewVocabulary(usStates, defaultCategories, defaultFundingCategories)
}

// NewVocabulary builds a vocabulary; states are upper-cased, tags lower-cased.
func NewVocabulary(states, categories, funding []string) Vocabulary {
	v := Vocabulary{
		States:            make(map[string]bool, len(states)),
		Categories:        make(map[string]bool, len(categories)),
		FundingCategories: make(map[string]bool, len(funding)),
	}
	for _, s := range states {
		v.States[NormalizeLocation(s)] = true
	}
	for _, c := range categories {
		v.Categories[NormalizeTag(c)] = true
	}
	for _, f := range funding {
		v.FundingCategories[NormalizeTag(f)] = true
	}
	return v
}

// NormalizeTag canonicalizes a category tag for case-insensitive comparison.
func NormalizeTag(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// NormalizeLocation canonicalizes a geographic code.
func NormalizeLocation(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeTags lower-cases, trims and dedups tags, dropping empty ones. Order is preserved.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		n := NormalizeTag(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
