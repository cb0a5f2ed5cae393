package matching

import (
	"strconv"
	"time"

	"github.com/kailas-cloud/grantmatch/internal/domain/applicant"
	"github.com/kailas-cloud/grantmatch/internal/domain/grant"
	"github.com/kailas-cloud/grantmatch/internal/domain/predicate"
	"github.com/kailas-cloud/grantmatch/internal/domain/search/request"
)

// BuildPredicate translates request filters and, when prefilter is set, the
// applicant-dependent eligibility rules into a conjunctive attribute predicate.
//
// Eligibility clauses only narrow the candidate set: a grant they drop is
// never eligible. Deadline bounds match dated grants only.
func BuildPredicate(a applicant.Profile, f request.Filters, prefilter bool) (predicate.Predicate, error) {
	var l clauseList

	if prefilter {
		l.add(predicate.NewContainsOrEmpty(grant.AttrApplicantCategories, a.Categories...))
		l.add(predicate.NewContainsOrEmpty(grant.AttrStates, a.Location))
		l.add(predicate.NewContainsOrEmpty(grant.AttrFundingCategories, a.FundingCategories...))
	}

	if f.MinAward != nil {
		l.add(predicate.NewRange(grant.AttrAwardCeiling, predicate.GreaterThanOrEqual, *f.MinAward))
	}
	if f.MaxAward != nil {
		l.add(predicate.NewRange(grant.AttrMinAward, predicate.LessThanOrEqual, *f.MaxAward))
	}
	if !f.DeadlineAfter.IsZero() {
		l.add(predicate.NewRange(grant.AttrDeadline, predicate.GreaterThanOrEqual, unix(f.DeadlineAfter)))
	}
	if !f.DeadlineBefore.IsZero() {
		if f.DeadlineAfter.IsZero() {
			// undated grants are stored as 0
			l.add(predicate.NewRange(grant.AttrDeadline, predicate.GreaterThanOrEqual, 1))
		}
		l.add(predicate.NewRange(grant.AttrDeadline, predicate.LessThanOrEqual, unix(f.DeadlineBefore)))
	}
	if f.EssayRequired != nil {
		l.add(predicate.NewEqual(grant.AttrEssayRequired, strconv.FormatBool(*f.EssayRequired)))
	}

	if l.err != nil {
		return predicate.Predicate{}, l.err
	}
	return predicate.New(l.clauses...)
}

// clauseList keeps the first constructor error.
type clauseList struct {
	clauses []predicate.Clause
	err     error
}

func (l *clauseList) add(c predicate.Clause, err error) {
	if l.err != nil {
		return
	}
	if err != nil {
		l.err = err
		return
	}
	l.clauses = append(l.clauses, c)
}

func unix(t time.Time) float64 {
	return float64(t.Unix())
}
