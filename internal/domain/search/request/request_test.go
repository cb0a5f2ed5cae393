package request

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/grantmatch/internal/domain"
	"github.com/kailas-cloud/grantmatch/internal/domain/applicant"
)

func inline() *applicant.Profile {
	return &applicant.Profile{Location: "ca", Summary: "Youth literacy nonprofit"}
}

func TestNew_Defaults(t *testing.T) {
	r, err := New(Params{Applicant: inline()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Limit() != DefaultLimit {
		t.Errorf("Limit() = %d, want %d", r.Limit(), DefaultLimit)
	}
	if r.Offset() != 0 || r.MinSimilarity() != 0 || r.EligibleOnly() {
		t.Errorf("unexpected defaults: %+v", r)
	}
	if r.Applicant().Location != "CA" {
		t.Errorf("applicant not normalized: %q", r.Applicant().Location)
	}
	if r.QueryText() != "Youth literacy nonprofit" {
		t.Errorf("QueryText() = %q, want summary fallback", r.QueryText())
	}
}

func TestNew_ExplicitQueryWins(t *testing.T) {
	r, err := New(Params{Applicant: inline(), Query: "  STEM camps ", Offset: 20, Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.QueryText() != "STEM camps" {
		t.Errorf("QueryText() = %q", r.QueryText())
	}
	if r.Window() != 30 {
		t.Errorf("Window() = %d", r.Window())
	}
}

func TestNew_LimitClamped(t *testing.T) {
	r, err := New(Params{Applicant: inline(), Limit: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Limit() != MaxLimit {
		t.Errorf("Limit() = %d", r.Limit())
	}
}

func TestNew_ProfileRef(t *testing.T) {
	r, err := New(Params{OwnerID: "o1", ProfileID: "p1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o, p := r.ProfileRef(); o != "o1" || p != "p1" {
		t.Errorf("ProfileRef() = %s/%s", o, p)
	}
	if r.Applicant() != nil {
		t.Error("expected no inline applicant")
	}
	bound := r.WithApplicant(applicant.Profile{Summary: "x"})
	if bound.Applicant() == nil || r.Applicant() != nil {
		t.Error("WithApplicant must return a bound copy")
	}
}

func TestNew_Validation(t *testing.T) {
	neg := -1.0
	lo, hi := 500.0, 100.0
	now := time.Now()
	tests := []struct {
		name  string
		p     Params
		field string
	}{
		{"no applicant", Params{}, "applicant"},
		{"both", Params{Applicant: inline(), OwnerID: "o", ProfileID: "p"}, "applicant"},
		{"query too long", Params{Applicant: inline(), Query: strings.Repeat("a", MaxQueryLength+1)}, "query"},
		{"no query text", Params{Applicant: &applicant.Profile{}}, "query"},
		{"negative offset", Params{Applicant: inline(), Offset: -1}, "offset"},
		{"negative limit", Params{Applicant: inline(), Limit: -1}, "limit"},
		{"similarity above 1", Params{Applicant: inline(), MinSimilarity: 1.5}, "min_similarity"},
		{"negative award", Params{Applicant: inline(), Filters: Filters{MinAward: &neg}}, "filters.min_award"},
		{"inverted award", Params{Applicant: inline(), Filters: Filters{MinAward: &lo, MaxAward: &hi}}, "filters.max_award"},
		{"inverted deadline", Params{Applicant: inline(), Filters: Filters{
			DeadlineAfter: now, DeadlineBefore: now.Add(-time.Hour)}}, "filters.deadline_before"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.p)
			var fe *domain.FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FieldError, got %v", err)
			}
			if fe.Field != tc.field {
				t.Errorf("Field = %q, want %q", fe.Field, tc.field)
			}
		})
	}
}

func TestNormalizeQuery(t *testing.T) {
	if got := NormalizeQuery("  Rural   Health\tClinics "); got != "rural health clinics" {
		t.Errorf("NormalizeQuery() = %q", got)
	}
}
