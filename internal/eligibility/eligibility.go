// Package eligibility evaluates an applicant against a grant's hard constraints.
package eligibility

import (
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/grantmatch/internal/domain/applicant"
	"github.com/kailas-cloud/grantmatch/internal/domain/grant"
)

// Unmet item prefixes, one per constraint kind.
const (
	KindCategory        = "category"
	KindLocation        = "location"
	KindFundingCategory = "funding_category"
	KindDeadline        = "deadline"
	KindBudget          = "budget"
)

// Policy holds the advisory budget thresholds.
type Policy struct {
	// MinAwardBudgetRatio flags applicants whose typical budget is below
	// this fraction of the grant's minimum award.
	MinAwardBudgetRatio float64 `yaml:"min_award_budget_ratio"`
	// MaxAwardBudgetMultiple flags grants whose maximum award exceeds this
	// multiple of the applicant's annual budget.
	MaxAwardBudgetMultiple float64 `yaml:"max_award_budget_multiple"`
}

// DefaultPolicy returns the reference thresholds.
func DefaultPolicy() Policy {
	return Policy{MinAwardBudgetRatio: 0.5, MaxAwardBudgetMultiple: 3}
}

// Verdict is the outcome of one check. Advisory items appear in Unmet
// without clearing Eligible.
type Verdict struct {
	Eligible bool
	Unmet    []string
}

// Checker evaluates eligibility. It holds no mutable state and is safe for
// concurrent use.
type Checker struct {
	policy Policy
	now    func() time.Time
}

// NewChecker creates a Checker. A nil clock means time.Now.
func NewChecker(policy Policy, now func() time.Time) *Checker {
	if now == nil {
		now = time.Now
	}
	return &Checker{policy: policy, now: now}
}

// Check evaluates the applicant against the grant at the checker's current time.
func (c *Checker) Check(a applicant.Profile, g grant.Opportunity) Verdict {
	return Evaluate(c.policy, a, g, c.now())
}

// CheckEligibility evaluates with the reference policy.
func CheckEligibility(a applicant.Profile, g grant.Opportunity, now time.Time) (bool, []string) {
	v := Evaluate(DefaultPolicy(), a, g, now)
	return v.Eligible, v.Unmet
}

// Evaluate runs every constraint independently. Unset grant constraints always pass.
func Evaluate(p Policy, a applicant.Profile, g grant.Opportunity, now time.Time) Verdict {
	v := Verdict{Eligible: true}
	hard := func(kind, msg string) {
		v.Eligible = false
		v.Unmet = append(v.Unmet, kind+": "+msg)
	}
	c := g.Constraints

	if len(c.ApplicantCategories) > 0 && !intersects(a.Categories, c.ApplicantCategories, applicant.NormalizeTag) {
		hard(KindCategory, "applicant category not in "+strings.Join(c.ApplicantCategories, ", "))
	}
	if len(c.States) > 0 && !containsFold(c.States, a.Location) {
		loc := a.Location
		if loc == "" {
			loc = "unspecified location"
		}
		hard(KindLocation, loc+" not in "+strings.Join(c.States, ", "))
	}
	if len(c.FundingCategories) > 0 && !intersects(a.FundingCategories, c.FundingCategories, applicant.NormalizeTag) {
		hard(KindFundingCategory, "no overlap with "+strings.Join(c.FundingCategories, ", "))
	}
	if !c.Deadline.IsZero() && c.Deadline.Before(now) {
		hard(KindDeadline, "closed on "+c.Deadline.UTC().Format(time.DateOnly))
	}

	if p.MinAwardBudgetRatio > 0 && a.TypicalBudget > 0 && c.MinAward > 0 &&
		a.TypicalBudget < p.MinAwardBudgetRatio*c.MinAward {
		v.Unmet = append(v.Unmet, fmt.Sprintf("%s: typical budget %s is below %g of the minimum award %s",
			KindBudget, money(a.TypicalBudget), p.MinAwardBudgetRatio, money(c.MinAward)))
	}
	if p.MaxAwardBudgetMultiple > 0 && a.AnnualBudget > 0 && c.MaxAward > 0 &&
		c.MaxAward > p.MaxAwardBudgetMultiple*a.AnnualBudget {
		v.Unmet = append(v.Unmet, fmt.Sprintf("%s: maximum award %s exceeds %gx the annual budget %s",
			KindBudget, money(c.MaxAward), p.MaxAwardBudgetMultiple, money(a.AnnualBudget)))
	}

	return v
}

func intersects(have, allowed []string, norm func(string) string) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, s := range allowed {
		set[norm(s)] = struct{}{}
	}
	for _, s := range have {
		if _, ok := set[norm(s)]; ok {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	if s == "" {
		return false
	}
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(s)) {
			return true
		}
	}
	return false
}

func money(v float64) string {
	return fmt.Sprintf("$%.0f", v)
}
