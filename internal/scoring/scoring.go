// Package scoring combines semantic similarity with structured signals into
// one composite score and ranks the results.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kailas-cloud/grantmatch/internal/domain/applicant"
	"github.com/kailas-cloud/grantmatch/internal/domain/grant"
	"github.com/kailas-cloud/grantmatch/internal/domain/match"
	"github.com/kailas-cloud/grantmatch/internal/eligibility"
)

const weightTolerance = 1e-6

// Weights are the composite score coefficients. They must sum to 1.
type Weights struct {
	Semantic float64 `yaml:"semantic"`
	Mission  float64 `yaml:"mission"`
	Award    float64 `yaml:"award"`
	Deadline float64 `yaml:"deadline"`
}

// Config tunes the scoring function.
type Config struct {
	Weights            Weights       `yaml:"weights"`
	ReferenceAwardCap  float64       `yaml:"reference_award_cap"`
	NearDeadlineWindow time.Duration `yaml:"near_deadline_window"`
	NearDeadlineFactor float64       `yaml:"near_deadline_factor"`
}

// DefaultConfig returns the reference tuning.
func DefaultConfig() Config {
	return Config{
		Weights:            Weights{Semantic: 0.6, Mission: 0.1, Award: 0.2, Deadline: 0.1},
		ReferenceAwardCap:  500000,
		NearDeadlineWindow: 30 * 24 * time.Hour,
		NearDeadlineFactor: 0.5,
	}
}

// Validate checks the weight sum and component bounds.
func (c Config) Validate() error {
	w := c.Weights
	for name, v := range map[string]float64{
		"semantic": w.Semantic, "mission": w.Mission, "award": w.Award, "deadline": w.Deadline,
	} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("weight %s must not be negative", name)
		}
	}
	if sum := w.Semantic + w.Mission + w.Award + w.Deadline; math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("weights must sum to 1, got %g", sum)
	}
	if c.ReferenceAwardCap <= 0 {
		return errors.New("reference_award_cap must be positive")
	}
	if c.NearDeadlineWindow < 0 {
		return errors.New("near_deadline_window must not be negative")
	}
	if c.NearDeadlineFactor < 0 || c.NearDeadlineFactor > 1 {
		return errors.New("near_deadline_factor must be between 0 and 1")
	}
	return nil
}

// Scorer computes composite scores. It is pure and safe for concurrent use.
type Scorer struct {
	cfg Config
	now func() time.Time
}

// NewScorer validates cfg and creates a Scorer. A nil clock means time.Now.
func NewScorer(cfg Config, now func() time.Time) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scoring config: %w", err)
	}
	if now == nil {
		now = time.Now
	}
	return &Scorer{cfg: cfg, now: now}, nil
}

// Score builds a match result. The verdict is attached as-is and never alters the score.
func (s *Scorer) Score(a applicant.Profile, g grant.Opportunity, similarity float64, v eligibility.Verdict) match.Result {
	return s.ScoreAt(a, g, similarity, v, s.now())
}

// ScoreAt is Score with the deadline factor evaluated at now, so a caller can
// share one timestamp with the eligibility verdict.
func (s *Scorer) ScoreAt(
	a applicant.Profile, g grant.Opportunity, similarity float64, v eligibility.Verdict, now time.Time,
) match.Result {
	b := match.Breakdown{
		Semantic: clamp01(similarity),
		Mission:  MissionAlignment(a.FundingCategories, g.Constraints.FundingCategories),
		Award:    s.normalizedAward(g.AwardCeiling()),
		Deadline: s.deadlineFactor(g.Constraints.Deadline, now),
	}
	w := s.cfg.Weights
	score := w.Semantic*b.Semantic + w.Mission*b.Mission + w.Award*b.Award + w.Deadline*b.Deadline

	return match.Result{
		GrantID:    g.ID,
		Grant:      g,
		Similarity: b.Semantic,
		Score:      clamp01(score),
		Breakdown:  b,
		Eligible:   v.Eligible,
		Unmet:      v.Unmet,
	}
}

// MissionAlignment is |A ∩ G| / max(|A|, |G|), or 0.5 when either side is empty.
func MissionAlignment(applicantTags, grantTags []string) float64 {
	a := tagSet(applicantTags)
	g := tagSet(grantTags)
	if len(a) == 0 || len(g) == 0 {
		return 0.5
	}
	shared := 0
	for t := range a {
		if _, ok := g[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(max(len(a), len(g)))
}

func (s *Scorer) normalizedAward(ceiling float64) float64 {
	if ceiling <= 0 || math.IsNaN(ceiling) {
		return 0
	}
	return math.Min(ceiling/s.cfg.ReferenceAwardCap, 1)
}

// deadlineFactor penalizes grants closing within the near-deadline window.
// Grants without a deadline are treated as far away.
func (s *Scorer) deadlineFactor(deadline, now time.Time) float64 {
	if deadline.IsZero() {
		return 1
	}
	if deadline.Sub(now) <= s.cfg.NearDeadlineWindow {
		return s.cfg.NearDeadlineFactor
	}
	return 1
}

// Rank sorts results: composite score desc, similarity desc, deadline asc
// (grants without a deadline last), then grant id asc.
func Rank(results []match.Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return Less(results[i], results[j])
	})
}

// Less reports whether a ranks above b.
func Less(a, b match.Result) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	da, db := a.Grant.Constraints.Deadline, b.Grant.Constraints.Deadline
	if !da.Equal(db) {
		switch {
		case da.IsZero():
			return false
		case db.IsZero():
			return true
		default:
			return da.Before(db)
		}
	}
	if a.Grant.ID != b.Grant.ID {
		return a.Grant.ID < b.Grant.ID
	}
	return a.Grant.Sponsor < b.Grant.Sponsor
}

func tagSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if n := applicant.NormalizeTag(t); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
