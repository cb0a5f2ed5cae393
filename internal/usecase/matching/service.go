// Package matching orchestrates grant search: cache lookup, candidate
// retrieval, eligibility, scoring and ranking.
package matching

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/grantmatch/internal/cache"
	"github.com/kailas-cloud/grantmatch/internal/domain"
	"github.com/kailas-cloud/grantmatch/internal/domain/applicant"
	"github.com/kailas-cloud/grantmatch/internal/domain/grant"
	"github.com/kailas-cloud/grantmatch/internal/domain/match"
	"github.com/kailas-cloud/grantmatch/internal/domain/search/request"
	"github.com/kailas-cloud/grantmatch/internal/eligibility"
	"github.com/kailas-cloud/grantmatch/internal/logger"
	"github.com/kailas-cloud/grantmatch/internal/metrics"
	"github.com/kailas-cloud/grantmatch/internal/perf"
	"github.com/kailas-cloud/grantmatch/internal/scoring"
)

// CacheNamespace prefixes every cached search response.
const CacheNamespace = "search"

// Tracker operation names.
const (
	OpFindGrants = "matching.find_grants"
	OpCompute    = "matching.compute"
)

// Config tunes the orchestrator.
type Config struct {
	Scoring     scoring.Config
	Eligibility eligibility.Policy
	// Prefilter pushes the applicant-dependent eligibility rules into the
	// vector search predicate.
	Prefilter bool
	// Candidate count is window*CandidateFactor clamped to [MinCandidates, MaxCandidates],
	// and never below the window itself.
	CandidateFactor    int
	MinCandidates      int
	MaxCandidates      int
	ScoringParallelism int
	CacheOptions       cache.Options
	SlowThreshold      time.Duration
	SlowStepThreshold  time.Duration
	Now                func() time.Time
}

// Deps are the collaborators of the orchestrator.
type Deps struct {
	Search   VectorSearch
	Cache    *cache.Store
	Tracker  *perf.Tracker
	Profiles ProfileReader
	Grants   GrantReader
	Queue    Enqueuer
	Logger   *zap.Logger
}

// Service answers FindGrants and CheckEligibility. Safe for concurrent use.
type Service struct {
	cfg      Config
	search   VectorSearch
	cache    *cache.Store
	tracker  *perf.Tracker
	profiles ProfileReader
	grants   GrantReader
	queue    Enqueuer
	scorer   *scoring.Scorer
	logger   *zap.Logger
	now      func() time.Time
}

// New validates the scoring config and creates the orchestrator.
func New(cfg Config, deps Deps) (*Service, error) {
	if deps.Search == nil || deps.Cache == nil {
		return nil, fmt.Errorf("matching: vector search and cache are required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	scorer, err := scoring.NewScorer(cfg.Scoring, now)
	if err != nil {
		return nil, err
	}
	if cfg.CandidateFactor <= 0 {
		cfg.CandidateFactor = 1
	}
	if cfg.ScoringParallelism <= 0 {
		cfg.ScoringParallelism = 1
	}
	tracker := deps.Tracker
	if tracker == nil {
		tracker = perf.New(perf.Config{Logger: deps.Logger})
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		cfg:      cfg,
		search:   deps.Search,
		cache:    deps.Cache,
		tracker:  tracker,
		profiles: deps.Profiles,
		grants:   deps.Grants,
		queue:    deps.Queue,
		scorer:   scorer,
		logger:   log,
		now:      now,
	}, nil
}

// FindGrants returns one page of ranked grants for the request. A cached
// window is served without downstream calls; FromCache is set only then.
func (s *Service) FindGrants(ctx context.Context, req request.Request) (*match.Response, error) {
	start := s.now()

	req, err := s.resolveApplicant(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.QueryText() == "" {
		return nil, domain.NewFieldError("query", "query is required when the applicant has no summary")
	}

	key := Fingerprint(req)
	window, err := perf.TrackValue(ctx, s.tracker, OpFindGrants, s.cfg.SlowThreshold,
		func(ctx context.Context) (match.Response, error) {
			w, hit, err := cache.GetOrCreateJSON(ctx, s.cache, key, s.cfg.CacheOptions,
				func(ctx context.Context) (match.Response, error) {
					return s.compute(ctx, req)
				})
			if err != nil {
				return match.Response{}, err
			}
			w.Metadata.FromCache = hit
			return w, nil
		})
	if err != nil {
		return nil, fmt.Errorf("find grants: %w", err)
	}
	hit := window.Metadata.FromCache

	resp := window.Page(req.Offset(), req.Limit())
	resp.Metadata.FromCache = hit
	resp.Metadata.ProcessingTime = s.now().Sub(start)

	logger.FromContextOr(ctx, s.logger).Debug("find grants",
		zap.String("cache_key", key),
		zap.Bool("from_cache", hit),
		zap.Int("total", resp.Total),
		zap.Int("returned", len(resp.Results)),
		zap.Duration("duration", resp.Metadata.ProcessingTime),
	)
	return &resp, nil
}

// compute runs retrieval, eligibility, scoring and ranking for the request
// window. It owns its scope; the cache may run it on another goroutine.
func (s *Service) compute(ctx context.Context, req request.Request) (resp match.Response, err error) {
	scope := s.tracker.Start(ctx, OpCompute, s.cfg.SlowStepThreshold)
	defer func() { scope.End(err) }()

	a := *req.Applicant()
	p, err := BuildPredicate(a, req.Filters(), s.cfg.Prefilter)
	if err != nil {
		return match.Response{}, fmt.Errorf("build predicate: %w", err)
	}

	k := s.candidateCount(req.Window())
	cands, err := s.search.Search(ctx, req.QueryText(), p, req.MinSimilarity(), k)
	if err != nil {
		return match.Response{}, fmt.Errorf("retrieve candidates: %w", err)
	}
	scope.Step("retrieve")

	now := s.now()
	live := make([]match.Candidate, 0, len(cands))
	grants := make([]grant.Opportunity, 0, len(cands))
	for _, c := range cands {
		g := grant.FromAttributes(c.ID, c.Attributes)
		if g.Expired(now) {
			continue
		}
		live = append(live, c)
		grants = append(grants, g)
	}

	results := make([]match.Result, len(live))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.cfg.ScoringParallelism)
	for i := range live {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			v := eligibility.Evaluate(s.cfg.Eligibility, a, grants[i], now)
			results[i] = s.scorer.ScoreAt(a, grants[i], live[i].Similarity, v, now)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return match.Response{}, fmt.Errorf("score candidates: %w", err)
	}
	scope.Step("score")

	eligible := 0
	kept := results[:0]
	for _, r := range results {
		if r.Eligible {
			eligible++
		} else if req.EligibleOnly() {
			continue
		}
		kept = append(kept, r)
	}
	scoring.Rank(kept)
	scope.Step("rank")

	metrics.MatchCandidates.WithLabelValues("considered").Observe(float64(len(live)))
	metrics.MatchCandidates.WithLabelValues("eligible").Observe(float64(eligible))

	total := len(kept)
	if w := req.Window(); len(kept) > w {
		kept = kept[:w]
	}
	return match.Response{
		Results: append([]match.Result{}, kept...),
		Total:   total,
		Metadata: match.Metadata{
			CandidatesConsidered: len(live),
			EligibleCount:        eligible,
		},
	}, nil
}

func (s *Service) candidateCount(window int) int {
	k := window * s.cfg.CandidateFactor
	if s.cfg.MinCandidates > 0 && k < s.cfg.MinCandidates {
		k = s.cfg.MinCandidates
	}
	if s.cfg.MaxCandidates > 0 && k > s.cfg.MaxCandidates {
		k = s.cfg.MaxCandidates
	}
	if k < window {
		k = window
	}
	return k
}

func (s *Service) resolveApplicant(ctx context.Context, req request.Request) (request.Request, error) {
	if req.Applicant() != nil {
		return req, nil
	}
	owner, id := req.ProfileRef()
	p, err := s.profile(ctx, owner, id)
	if err != nil {
		return request.Request{}, err
	}
	return req.WithApplicant(p), nil
}

func (s *Service) profile(ctx context.Context, ownerID, id string) (applicant.Profile, error) {
	if s.profiles == nil {
		return applicant.Profile{}, fmt.Errorf("stored profiles: %w", domain.ErrFeatureDisabled)
	}
	p, err := s.profiles.Get(ctx, ownerID, id)
	if err != nil {
		return applicant.Profile{}, fmt.Errorf("resolve profile: %w", err)
	}
	return p, nil
}

// Warm computes the request in the background so a later identical request
// is served from cache.
func (s *Service) Warm(ctx context.Context, req request.Request) error {
	if s.queue == nil {
		return fmt.Errorf("cache warming: %w", domain.ErrFeatureDisabled)
	}
	log := logger.FromContextOr(ctx, s.logger)
	return s.queue.Enqueue("matching.warm", func(taskCtx context.Context) error {
		_, err := s.FindGrants(logger.ContextWithLogger(taskCtx, log), req)
		return err
	})
}

// Fingerprint is the cache key of a request: normalized query text, the
// applicant's matching attributes, filters, threshold and result window.
// The applicant identity is not part of it.
func Fingerprint(req request.Request) string {
	parts := map[string]string{
		"query":          request.NormalizeQuery(req.QueryText()),
		"window":         strconv.Itoa(req.Window()),
		"min_similarity": strconv.FormatFloat(req.MinSimilarity(), 'f', -1, 64),
		"eligible_only":  strconv.FormatBool(req.EligibleOnly()),
	}
	if a := req.Applicant(); a != nil {
		for k, v := range a.Fingerprint() {
			parts[k] = v
		}
	}
	f := req.Filters()
	if f.MinAward != nil {
		parts["filter.min_award"] = strconv.FormatFloat(*f.MinAward, 'f', -1, 64)
	}
	if f.MaxAward != nil {
		parts["filter.max_award"] = strconv.FormatFloat(*f.MaxAward, 'f', -1, 64)
	}
	if !f.DeadlineAfter.IsZero() {
		parts["filter.deadline_after"] = strconv.FormatInt(f.DeadlineAfter.Unix(), 10)
	}
	if !f.DeadlineBefore.IsZero() {
		parts["filter.deadline_before"] = strconv.FormatInt(f.DeadlineBefore.Unix(), 10)
	}
	if f.EssayRequired != nil {
		parts["filter.essay_required"] = strconv.FormatBool(*f.EssayRequired)
	}
	return cache.Fingerprint(CacheNamespace, parts)
}
