package matching

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/grantmatch/internal/domain/applicant"
	"github.com/kailas-cloud/grantmatch/internal/domain/grant"
	"github.com/kailas-cloud/grantmatch/internal/domain/predicate"
	"github.com/kailas-cloud/grantmatch/internal/domain/search/request"
)

type clauseView struct {
	field  string
	op     predicate.Operator
	values []string
	number float64
}

func view(p predicate.Predicate) []clauseView {
	out := make([]clauseView, 0, len(p.Clauses()))
	for _, c := range p.Clauses() {
		out = append(out, clauseView{field: c.Field(), op: c.Operator(), values: c.Values(), number: c.Number()})
	}
	return out
}

func TestBuildPredicate_Eligibility(t *testing.T) {
	a := applicant.Profile{Categories: []string{"nonprofit", "school"}, Location: "CA"}

	p, err := BuildPredicate(a, request.Filters{}, true)
	require.NoError(t, err)
	assert.Equal(t, []clauseView{
		{field: grant.AttrApplicantCategories, op: predicate.ContainsOrEmpty, values: []string{"nonprofit", "school"}},
		{field: grant.AttrStates, op: predicate.ContainsOrEmpty, values: []string{"CA"}},
	}, view(p))

	off, err := BuildPredicate(a, request.Filters{}, false)
	require.NoError(t, err)
	assert.True(t, off.IsEmpty())
}

func TestBuildPredicate_Filters(t *testing.T) {
	minAward, maxAward, essay := 1000.0, 9000.0, false
	after := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	before := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	p, err := BuildPredicate(applicant.Profile{}, request.Filters{
		MinAward:       &minAward,
		MaxAward:       &maxAward,
		DeadlineAfter:  after,
		DeadlineBefore: before,
		EssayRequired:  &essay,
	}, true)
	require.NoError(t, err)
	assert.Equal(t, []clauseView{
		{field: grant.AttrAwardCeiling, op: predicate.GreaterThanOrEqual, number: 1000},
		{field: grant.AttrMinAward, op: predicate.LessThanOrEqual, number: 9000},
		{field: grant.AttrDeadline, op: predicate.GreaterThanOrEqual, number: float64(after.Unix())},
		{field: grant.AttrDeadline, op: predicate.LessThanOrEqual, number: float64(before.Unix())},
		{field: grant.AttrEssayRequired, op: predicate.Equal, values: []string{"false"}},
	}, view(p))
}

func TestBuildPredicate_DeadlineBeforeExcludesUndated(t *testing.T) {
	before := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	p, err := BuildPredicate(applicant.Profile{}, request.Filters{DeadlineBefore: before}, false)
	require.NoError(t, err)
	assert.Equal(t, []clauseView{
		{field: grant.AttrDeadline, op: predicate.GreaterThanOrEqual, number: 1},
		{field: grant.AttrDeadline, op: predicate.LessThanOrEqual, number: float64(before.Unix())},
	}, view(p))
}
