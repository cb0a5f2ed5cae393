package matching

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/grantmatch/internal/domain"
	"github.com/kailas-cloud/grantmatch/internal/domain/applicant"
	"github.com/kailas-cloud/grantmatch/internal/domain/grant"
	"github.com/kailas-cloud/grantmatch/internal/eligibility"
)

// EligibilityRequest names an applicant and a grant, each inline or by reference.
type EligibilityRequest struct {
	Applicant *applicant.Profile
	OwnerID   string
	ProfileID string

	Grant   *grant.Opportunity
	Sponsor string
	GrantID string
}

// EligibilityResult is the verdict for one applicant and grant.
type EligibilityResult struct {
	GrantID  string   `json:"grant_id"`
	Sponsor  string   `json:"sponsor"`
	Eligible bool     `json:"eligible"`
	Unmet    []string `json:"unmet"`
}

// CheckEligibility evaluates the hard constraints of one grant without
// semantic search or scoring.
func (s *Service) CheckEligibility(ctx context.Context, req EligibilityRequest) (EligibilityResult, error) {
	a, err := s.eligibilityApplicant(ctx, req)
	if err != nil {
		return EligibilityResult{}, err
	}
	g, err := s.eligibilityGrant(ctx, req)
	if err != nil {
		return EligibilityResult{}, err
	}

	v := eligibility.Evaluate(s.cfg.Eligibility, a, g, s.now())
	unmet := v.Unmet
	if unmet == nil {
		unmet = []string{}
	}
	return EligibilityResult{GrantID: g.ID, Sponsor: g.Sponsor, Eligible: v.Eligible, Unmet: unmet}, nil
}

func (s *Service) eligibilityApplicant(ctx context.Context, req EligibilityRequest) (applicant.Profile, error) {
	switch {
	case req.Applicant != nil && (req.OwnerID != "" || req.ProfileID != ""):
		return applicant.Profile{}, domain.NewFieldError("applicant", "inline applicant and profile reference are mutually exclusive")
	case req.Applicant != nil:
		return req.Applicant.Normalize(), nil
	case req.OwnerID != "" && req.ProfileID != "":
		p, err := s.profile(ctx, req.OwnerID, req.ProfileID)
		if err != nil {
			return applicant.Profile{}, err
		}
		return p.Normalize(), nil
	default:
		return applicant.Profile{}, domain.NewFieldError("applicant", "inline applicant or owner_id and profile_id are required")
	}
}

func (s *Service) eligibilityGrant(ctx context.Context, req EligibilityRequest) (grant.Opportunity, error) {
	switch {
	case req.Grant != nil && (req.Sponsor != "" || req.GrantID != ""):
		return grant.Opportunity{}, domain.NewFieldError("grant", "inline grant and grant reference are mutually exclusive")
	case req.Grant != nil:
		return req.Grant.Normalize(), nil
	case req.Sponsor != "" && req.GrantID != "":
		if s.grants == nil {
			return grant.Opportunity{}, fmt.Errorf("grant lookup: %w", domain.ErrFeatureDisabled)
		}
		g, err := s.grants.Get(ctx, req.Sponsor, req.GrantID)
		if err != nil {
			return grant.Opportunity{}, fmt.Errorf("resolve grant: %w", err)
		}
		return g, nil
	default:
		return grant.Opportunity{}, domain.NewFieldError("grant", "inline grant or sponsor and grant_id are required")
	}
}
