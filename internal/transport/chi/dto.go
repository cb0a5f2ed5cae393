package chi

import (
	"time"

	"github.com/kailas-cloud/grantmatch/internal/domain/applicant"
	"github.com/kailas-cloud/grantmatch/internal/domain/grant"
	"github.com/kailas-cloud/grantmatch/internal/domain/match"
	"github.com/kailas-cloud/grantmatch/internal/domain/search/request"
	matchinguc "github.com/kailas-cloud/grantmatch/internal/usecase/matching"
)

// SearchRequest is the body of POST /v1/matches/search and POST /v1/cache/warm.
type SearchRequest struct {
	Applicant     *applicant.Profile `json:"applicant,omitempty"`
	OwnerID       string             `json:"owner_id,omitempty"`
	ProfileID     string             `json:"profile_id,omitempty"`
	Query         string             `json:"query,omitempty"`
	Offset        int                `json:"offset,omitempty"`
	Limit         int                `json:"limit,omitempty"`
	MinSimilarity float64            `json:"min_similarity,omitempty"`
	Filters       request.Filters    `json:"filters"`
	EligibleOnly  bool               `json:"eligible_only,omitempty"`
}

func (r SearchRequest) toDomain() (request.Request, error) {
	return request.New(request.Params{
		Applicant:     r.Applicant,
		OwnerID:       r.OwnerID,
		ProfileID:     r.ProfileID,
		Query:         r.Query,
		Offset:        r.Offset,
		Limit:         r.Limit,
		MinSimilarity: r.MinSimilarity,
		Filters:       r.Filters,
		EligibleOnly:  r.EligibleOnly,
	})
}

// SearchMetadata mirrors match.Metadata with a millisecond processing time.
type SearchMetadata struct {
	ProcessingTimeMs     float64 `json:"processing_time_ms"`
	FromCache            bool    `json:"from_cache"`
	CandidatesConsidered int     `json:"candidates_considered"`
	EligibleCount        int     `json:"eligible_count"`
	Offset               int     `json:"offset"`
	Limit                int     `json:"limit"`
}

// SearchResponse is the body of a successful search.
type SearchResponse struct {
	Results  []match.Result `json:"results"`
	Total    int            `json:"total"`
	Metadata SearchMetadata `json:"metadata"`
}

func searchResponseFrom(r *match.Response) SearchResponse {
	results := r.Results
	if results == nil {
		results = []match.Result{}
	}
	m := r.Metadata
	return SearchResponse{
		Results: results,
		Total:   r.Total,
		Metadata: SearchMetadata{
			ProcessingTimeMs:     float64(m.ProcessingTime) / float64(time.Millisecond),
			FromCache:            m.FromCache,
			CandidatesConsidered: m.CandidatesConsidered,
			EligibleCount:        m.EligibleCount,
			Offset:               m.Offset,
			Limit:                m.Limit,
		},
	}
}

// EligibilityRequest is the body of POST /v1/eligibility.
type EligibilityRequest struct {
	Applicant *applicant.Profile `json:"applicant,omitempty"`
	OwnerID   string             `json:"owner_id,omitempty"`
	ProfileID string             `json:"profile_id,omitempty"`
	Grant     *grant.Opportunity `json:"grant,omitempty"`
	Sponsor   string             `json:"sponsor,omitempty"`
	GrantID   string             `json:"grant_id,omitempty"`
}

func (r EligibilityRequest) toDomain() matchinguc.EligibilityRequest {
	return matchinguc.EligibilityRequest(r)
}

// EnrichRequest is the body of POST /v1/profiles/{owner}/{id}/enrich.
type EnrichRequest struct {
	Message string `json:"message"`
}

// GrantListResponse is the body of GET /v1/grants/{sponsor}.
type GrantListResponse struct {
	Items []grant.Opportunity `json:"items"`
	Total int                 `json:"total"`
}

// CacheClearResponse reports how many entries a pattern removed.
type CacheClearResponse struct {
	Pattern string `json:"pattern"`
	Removed int    `json:"removed"`
}

// AcceptedResponse acknowledges background work.
type AcceptedResponse struct {
	Status string `json:"status"`
}
