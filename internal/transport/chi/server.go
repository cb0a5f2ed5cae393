// Package chi is the HTTP API of the matching engine.
package chi

import (
	"encoding/json"
	"net/http"
	"strings"

	chirouter "github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/grantmatch/internal/domain"
	"github.com/kailas-cloud/grantmatch/internal/domain/applicant"
	"github.com/kailas-cloud/grantmatch/internal/domain/grant"
	"github.com/kailas-cloud/grantmatch/internal/logger"
	healthuc "github.com/kailas-cloud/grantmatch/internal/usecase/health"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Deps are the services behind the API. Cache, Perf and Queue are optional;
// their diagnostics routes answer 501 when unset.
type Deps struct {
	Matcher   Matcher
	Catalog   Catalog
	Profiles  Profiles
	Health    HealthChecker
	Cache     CacheAdmin
	Perf      PerfStats
	Queue     QueueStats
	AdminKeys []string
	Logger    *zap.Logger
}

// Server serves the HTTP API.
type Server struct {
	matcher       Matcher
	catalog       Catalog
	profiles      Profiles
	health        HealthChecker
	cache         CacheAdmin
	perf          PerfStats
	queue         QueueStats
	adminKeys     []string
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(deps Deps) *Server {
	s := &Server{
		matcher:       deps.Matcher,
		catalog:       deps.Catalog,
		profiles:      deps.Profiles,
		health:        deps.Health,
		cache:         deps.Cache,
		perf:          deps.Perf,
		queue:         deps.Queue,
		adminKeys:     deps.AdminKeys,
		logger:        deps.Logger,
		errorHandlers: defaultErrorHandlers(),
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Routes mounts the API on r. Grant writes and cache administration require
// an admin key when keys are configured.
func (s *Server) Routes(r chirouter.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/v1", func(r chirouter.Router) {
		r.Post("/matches/search", s.SearchMatches)
		r.Post("/eligibility", s.CheckEligibility)

		r.Get("/grants/{sponsor}", s.ListGrants)
		r.Get("/grants/{sponsor}/{id}", s.GetGrant)

		r.Put("/profiles/{owner}/{id}", s.PutProfile)
		r.Get("/profiles/{owner}/{id}", s.GetProfile)
		r.Delete("/profiles/{owner}/{id}", s.DeleteProfile)
		r.Post("/profiles/{owner}/{id}/enrich", s.EnrichProfile)

		r.Get("/diagnostics/cache", s.CacheStats)
		r.Get("/diagnostics/performance", s.PerformanceStats)
		r.Get("/diagnostics/queue", s.QueueStats)

		r.Group(func(r chirouter.Router) {
			r.Use(AdminAuthMiddleware(s.adminKeys))
			r.Put("/grants/{sponsor}/{id}", s.PutGrant)
			r.Delete("/grants/{sponsor}/{id}", s.DeleteGrant)
			r.Delete("/cache", s.ClearCache)
			r.Post("/cache/warm", s.WarmCache)
		})
	})
}

// SearchMatches handles POST /v1/matches/search.
func (s *Server) SearchMatches(w http.ResponseWriter, r *http.Request) {
	var body SearchRequest
	if !s.decode(w, r, &body) {
		return
	}
	req, err := body.toDomain()
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	resp, err := s.matcher.FindGrants(r.Context(), req)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponseFrom(resp))
}

// CheckEligibility handles POST /v1/eligibility.
func (s *Server) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	var body EligibilityRequest
	if !s.decode(w, r, &body) {
		return
	}
	res, err := s.matcher.CheckEligibility(r.Context(), body.toDomain())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PutGrant handles PUT /v1/grants/{sponsor}/{id}.
func (s *Server) PutGrant(w http.ResponseWriter, r *http.Request) {
	sponsor, id, ok := s.pathPair(w, r, "sponsor")
	if !ok {
		return
	}
	var g grant.Opportunity
	if !s.decode(w, r, &g) {
		return
	}
	g.Sponsor, g.ID = sponsor, id

	stored, created, err := s.catalog.Upsert(r.Context(), g)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, createdStatus(created), stored)
}

// GetGrant handles GET /v1/grants/{sponsor}/{id}.
func (s *Server) GetGrant(w http.ResponseWriter, r *http.Request) {
	sponsor, id, ok := s.pathPair(w, r, "sponsor")
	if !ok {
		return
	}
	g, err := s.catalog.Get(r.Context(), sponsor, id)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// DeleteGrant handles DELETE /v1/grants/{sponsor}/{id}.
func (s *Server) DeleteGrant(w http.ResponseWriter, r *http.Request) {
	sponsor, id, ok := s.pathPair(w, r, "sponsor")
	if !ok {
		return
	}
	if err := s.catalog.Delete(r.Context(), sponsor, id); err != nil {
		s.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListGrants handles GET /v1/grants/{sponsor}.
func (s *Server) ListGrants(w http.ResponseWriter, r *http.Request) {
	sponsor, ok := s.pathParam(w, r, "sponsor")
	if !ok {
		return
	}
	grants, err := s.catalog.List(r.Context(), sponsor)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if grants == nil {
		grants = []grant.Opportunity{}
	}
	writeJSON(w, http.StatusOK, GrantListResponse{Items: grants, Total: len(grants)})
}

// PutProfile handles PUT /v1/profiles/{owner}/{id}.
func (s *Server) PutProfile(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := s.pathPair(w, r, "owner")
	if !ok {
		return
	}
	var p applicant.Profile
	if !s.decode(w, r, &p) {
		return
	}
	p.OwnerID, p.ID = owner, id

	stored, created, err := s.profiles.Save(r.Context(), p)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, createdStatus(created), stored)
}

// GetProfile handles GET /v1/profiles/{owner}/{id}.
func (s *Server) GetProfile(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := s.pathPair(w, r, "owner")
	if !ok {
		return
	}
	p, err := s.profiles.Get(r.Context(), owner, id)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeleteProfile handles DELETE /v1/profiles/{owner}/{id}.
func (s *Server) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := s.pathPair(w, r, "owner")
	if !ok {
		return
	}
	if err := s.profiles.Delete(r.Context(), owner, id); err != nil {
		s.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EnrichProfile handles POST /v1/profiles/{owner}/{id}/enrich.
func (s *Server) EnrichProfile(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := s.pathPair(w, r, "owner")
	if !ok {
		return
	}
	var body EnrichRequest
	if !s.decode(w, r, &body) {
		return
	}
	res, err := s.profiles.Enrich(r.Context(), owner, id, body.Message)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CacheStats handles GET /v1/diagnostics/cache.
func (s *Server) CacheStats(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		s.handleError(w, r, domain.ErrFeatureDisabled)
		return
	}
	writeJSON(w, http.StatusOK, s.cache.Stats())
}

// PerformanceStats handles GET /v1/diagnostics/performance. An optional
// operation query parameter narrows the snapshot to names with that prefix.
func (s *Server) PerformanceStats(w http.ResponseWriter, r *http.Request) {
	if s.perf == nil {
		s.handleError(w, r, domain.ErrFeatureDisabled)
		return
	}
	var operation string
	if err := runtime.BindQueryParameter("form", true, false, "operation", r.URL.Query(), &operation); err != nil {
		s.handleError(w, r, domain.NewFieldError("operation", err.Error()))
		return
	}

	snap := s.perf.Stats()
	if operation != "" {
		for name := range snap.Operations {
			if !strings.HasPrefix(name, operation) {
				delete(snap.Operations, name)
			}
		}
	}
	writeJSON(w, http.StatusOK, snap)
}

// QueueStats handles GET /v1/diagnostics/queue.
func (s *Server) QueueStats(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		s.handleError(w, r, domain.ErrFeatureDisabled)
		return
	}
	writeJSON(w, http.StatusOK, s.queue.Stats())
}

// ClearCache handles DELETE /v1/cache?pattern=...
func (s *Server) ClearCache(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		s.handleError(w, r, domain.ErrFeatureDisabled)
		return
	}
	var pattern string
	if err := runtime.BindQueryParameter("form", true, true, "pattern", r.URL.Query(), &pattern); err != nil {
		s.handleError(w, r, domain.NewFieldError("pattern", err.Error()))
		return
	}
	if strings.TrimSpace(pattern) == "" {
		s.handleError(w, r, domain.NewFieldError("pattern", "is required"))
		return
	}

	removed := s.cache.RemoveByPattern(r.Context(), pattern)
	logger.FromContextOr(r.Context(), s.logger).Info("cache cleared",
		zap.String("pattern", pattern),
		zap.Int("removed", removed),
	)
	writeJSON(w, http.StatusOK, CacheClearResponse{Pattern: pattern, Removed: removed})
}

// WarmCache handles POST /v1/cache/warm.
func (s *Server) WarmCache(w http.ResponseWriter, r *http.Request) {
	var body SearchRequest
	if !s.decode(w, r, &body) {
		return
	}
	req, err := body.toDomain()
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if err := s.matcher.Warm(r.Context(), req); err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, AcceptedResponse{Status: "queued"})
}

// HealthCheck handles GET /health. Only an unhealthy report answers 503.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	var v string
	err := runtime.BindStyledParameterWithOptions("simple", name, chirouter.URLParam(r, name), &v,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true})
	if err != nil {
		s.handleError(w, r, domain.NewFieldError(name, err.Error()))
		return "", false
	}
	return v, true
}

// pathPair binds {scope}/{id}.
func (s *Server) pathPair(w http.ResponseWriter, r *http.Request, scope string) (string, string, bool) {
	first, ok := s.pathParam(w, r, scope)
	if !ok {
		return "", "", false
	}
	id, ok := s.pathParam(w, r, "id")
	if !ok {
		return "", "", false
	}
	return first, id, true
}

func createdStatus(created bool) int {
	if created {
		return http.StatusCreated
	}
	return http.StatusOK
}
