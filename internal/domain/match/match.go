package match

import (
	"time"

	"github.com/kailas-cloud/grantmatch/internal/domain/grant"
)

// Candidate is one vector search hit before scoring. Attributes is the flat
// attribute bag stored with the entity.
type Candidate struct {
	ID         string
	Attributes map[string]string
	Similarity float64
}

// Breakdown names the weighted components of a composite score.
// Each component is in [0,1] before weighting.
type Breakdown struct {
	Semantic float64 `json:"semantic"`
	Mission  float64 `json:"mission"`
	Award    float64 `json:"award"`
	Deadline float64 `json:"deadline"`
}

// Result is one scored opportunity for one query. It is never persisted on its own.
type Result struct {
	GrantID    string            `json:"grant_id"`
	Grant      grant.Opportunity `json:"grant"`
	Similarity float64           `json:"similarity"`
	Score      float64           `json:"score"`
	Breakdown  Breakdown         `json:"breakdown"`
	Eligible   bool              `json:"eligible"`
	Unmet      []string          `json:"unmet,omitempty"`
}

// Metadata describes how a response was produced.
type Metadata struct {
	ProcessingTime       time.Duration `json:"processing_time"`
	FromCache            bool          `json:"from_cache"`
	CandidatesConsidered int           `json:"candidates_considered"`
	EligibleCount        int           `json:"eligible_count"`
	Offset               int           `json:"offset"`
	Limit                int           `json:"limit"`
}

// Response is the cacheable search output.
type Response struct {
	Results  []Result `json:"results"`
	Total    int      `json:"total"`
	Metadata Metadata `json:"metadata"`
}

// Page returns a copy of r holding results [offset, offset+limit).
func (r Response) Page(offset, limit int) Response {
	out := r
	out.Metadata.Offset = offset
	out.Metadata.Limit = limit
	if offset >= len(r.Results) {
		out.Results = []Result{}
		return out
	}
	end := len(r.Results)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out.Results = append([]Result(nil), r.Results[offset:end]...)
	return out
}
