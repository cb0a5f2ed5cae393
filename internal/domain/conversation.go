package domain

import "context"

// Conversation turns free text into a reply plus structured applicant attributes.
// It is optional: callers receive a nil Conversation when no provider is configured.
type Conversation interface {
	Converse(ctx context.Context, text string) (ConversationReply, error)
}

// ConversationReply is the provider output. Only Extracted is consumed by the engine.
type ConversationReply struct {
	Reply     string
	Extracted ExtractedAttributes
}

// ExtractedAttributes are applicant attributes recognized in free text.
// Nil budget pointers mean "not mentioned".
type ExtractedAttributes struct {
	Categories        []string `json:"categories,omitempty"`
	Location          string   `json:"location,omitempty"`
	FundingCategories []string `json:"funding_categories,omitempty"`
	TypicalBudget     *float64 `json:"typical_budget,omitempty"`
	AnnualBudget      *float64 `json:"annual_budget,omitempty"`
	Summary           string   `json:"summary,omitempty"`
}

// Empty reports whether nothing was extracted.
func (a ExtractedAttributes) Empty() bool {
	return len(a.Categories) == 0 && a.Location == "" && len(a.FundingCategories) == 0 &&
		a.TypicalBudget == nil && a.AnnualBudget == nil && a.Summary == ""
}
