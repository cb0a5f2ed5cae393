package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/kailas-cloud/grantmatch/internal/cache"
	"github.com/kailas-cloud/grantmatch/internal/domain/grant"
	"github.com/kailas-cloud/grantmatch/internal/domain/match"
	"github.com/kailas-cloud/grantmatch/internal/perf"
	chiTransport "github.com/kailas-cloud/grantmatch/internal/transport/chi"
	healthuc "github.com/kailas-cloud/grantmatch/internal/usecase/health"
	matchinguc "github.com/kailas-cloud/grantmatch/internal/usecase/matching"
)

func init() {
	color.NoColor = true
}

type recorded struct {
	method string
	path   string
	query  string
	auth   string
	body   []byte
}

func apiServer(t *testing.T, status int, reply any) (*httptest.Server, *recorded) {
	t.Helper()
	rec := &recorded{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		rec.query = r.URL.RawQuery
		rec.auth = r.Header.Get("Authorization")
		rec.body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		if status == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "3")
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"grantctl", "--addr", srv.URL}, args...))
	return out.String(), err
}

func TestSearchCommand(t *testing.T) {
	reply := chiTransport.SearchResponse{
		Results: []match.Result{
			{GrantID: "g1", Grant: grant.Opportunity{ID: "g1", Sponsor: "acme", Title: "STEM Scholars"}, Score: 0.91, Similarity: 0.8, Eligible: true},
			{GrantID: "g2", Grant: grant.Opportunity{ID: "g2", Sponsor: "acme"}, Score: 0.5, Unmet: []string{"min_gpa"}},
		},
		Total:    2,
		Metadata: chiTransport.SearchMetadata{FromCache: true, Limit: 5},
	}
	srv, rec := apiServer(t, http.StatusOK, reply)

	out, err := run(t, srv, "search", "--owner", "u1", "--profile", "p1", "-n", "5",
		"--min-award", "1000", "--essay-required=false", "--deadline-after", "2026-01-02")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, rec.method)
	assert.Equal(t, "/v1/matches/search", rec.path)

	var body chiTransport.SearchRequest
	require.NoError(t, json.Unmarshal(rec.body, &body))
	assert.Equal(t, "u1", body.OwnerID)
	assert.Equal(t, "p1", body.ProfileID)
	assert.Equal(t, 5, body.Limit)
	require.NotNil(t, body.Filters.MinAward)
	assert.InDelta(t, 1000, *body.Filters.MinAward, 1e-9)
	assert.Nil(t, body.Filters.MaxAward)
	require.NotNil(t, body.Filters.EssayRequired)
	assert.False(t, *body.Filters.EssayRequired)
	assert.Equal(t, "2026-01-02", body.Filters.DeadlineAfter.Format("2006-01-02"))

	assert.Contains(t, out, "Results 2 of 2")
	assert.Contains(t, out, "cache")
	assert.Contains(t, out, "STEM Scholars")
	assert.Contains(t, out, "[acme/g2]")
	assert.Contains(t, out, "not eligible: min_gpa")
}

func TestSearchCommandNeedsQueryOrProfile(t *testing.T) {
	srv, rec := apiServer(t, http.StatusOK, chiTransport.SearchResponse{})

	_, err := run(t, srv, "search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--query")
	assert.Empty(t, rec.method, "no request is sent")
}

func TestAPIErrorIsReported(t *testing.T) {
	srv, _ := apiServer(t, http.StatusTooManyRequests, chiTransport.ErrorResponse{
		Code:    chiTransport.CodeRateLimited,
		Message: "embedding provider rate limited",
	})

	_, err := run(t, srv, "search", "-q", "robotics")
	require.Error(t, err)

	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, "3", apiErr.RetryAfter)
	assert.Contains(t, err.Error(), "retry after 3s")
}

func TestEligibilityCommand(t *testing.T) {
	srv, rec := apiServer(t, http.StatusOK, matchinguc.EligibilityResult{
		GrantID: "g1", Sponsor: "acme", Unmet: []string{"state", "min_gpa"},
	})

	out, err := run(t, srv, "eligibility", "--owner", "u1", "--profile", "p1", "--sponsor", "acme", "--grant", "g1")
	require.NoError(t, err)
	assert.Equal(t, "/v1/eligibility", rec.path)
	assert.Contains(t, out, "acme/g1: not eligible")
	assert.Contains(t, out, "- state")
	assert.Contains(t, out, "- min_gpa")

	_, err = run(t, srv, "eligibility", "--owner", "u1", "--profile", "p1", "--sponsor", "acme")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grant")
}

func TestCacheCommands(t *testing.T) {
	t.Run("stats", func(t *testing.T) {
		srv, rec := apiServer(t, http.StatusOK, cache.Stats{Entries: 4, Hits: 3, LocalHits: 3, Misses: 1, HitRate: 0.75})

		out, err := run(t, srv, "cache", "stats")
		require.NoError(t, err)
		assert.Equal(t, "/v1/diagnostics/cache", rec.path)
		assert.Contains(t, out, "4 entries, hit rate 75.0%")
	})

	t.Run("clear sends pattern and admin key", func(t *testing.T) {
		srv, rec := apiServer(t, http.StatusOK, chiTransport.CacheClearResponse{Pattern: "search:*", Removed: 7})

		out, err := run(t, srv, "--admin-key", "secret", "cache", "clear", "--pattern", "search:*")
		require.NoError(t, err)
		assert.Equal(t, http.MethodDelete, rec.method)
		assert.Equal(t, "/v1/cache", rec.path)
		assert.Equal(t, "pattern=search%3A%2A", rec.query)
		assert.Equal(t, "Bearer secret", rec.auth)
		assert.Contains(t, out, "removed 7 entries matching search:*")
	})
}

func TestPerfCommand(t *testing.T) {
	srv, rec := apiServer(t, http.StatusOK, perf.Snapshot{
		Operations: map[string]perf.OpStats{
			"matching.search": {Count: 10, Errors: 1, Slow: 2},
			"catalog.upsert":  {Count: 3},
		},
	})

	out, err := run(t, srv, "perf", "--operation", "matching")
	require.NoError(t, err)
	assert.Equal(t, "operation=matching", rec.query)
	assert.Contains(t, out, "matching.search")
	assert.Less(t, bytes.Index([]byte(out), []byte("catalog.upsert")), bytes.Index([]byte(out), []byte("matching.search")))
}

func TestHealthCommand(t *testing.T) {
	t.Run("degraded is not a failure", func(t *testing.T) {
		srv, _ := apiServer(t, http.StatusOK, healthuc.Report{
			Status: healthuc.Degraded,
			Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckOK, "embedding": healthuc.CheckDegraded},
		})

		out, err := run(t, srv, "health")
		require.NoError(t, err)
		assert.Contains(t, out, "status degraded")
		assert.Contains(t, out, "embedding")
	})

	t.Run("unhealthy exits non-zero", func(t *testing.T) {
		srv, _ := apiServer(t, http.StatusServiceUnavailable, healthuc.Report{
			Status: healthuc.Unhealthy,
			Checks: map[string]healthuc.CheckResult{"database": healthuc.CheckError},
		})

		out, err := run(t, srv, "health")
		require.Error(t, err)
		assert.Contains(t, out, "status error")
	})
}

func TestVersionCommand(t *testing.T) {
	srv, rec := apiServer(t, http.StatusOK, nil)

	out, err := run(t, srv, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "grantctl dev")
	assert.Empty(t, rec.method)
}
