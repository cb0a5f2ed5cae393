// Command grantctl is the operator CLI for a running grantmatch service.
package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/kailas-cloud/grantmatch/internal/cache"
	"github.com/kailas-cloud/grantmatch/internal/domain/search/request"
	"github.com/kailas-cloud/grantmatch/internal/perf"
	"github.com/kailas-cloud/grantmatch/internal/taskqueue"
	chiTransport "github.com/kailas-cloud/grantmatch/internal/transport/chi"
	healthuc "github.com/kailas-cloud/grantmatch/internal/usecase/health"
	matchinguc "github.com/kailas-cloud/grantmatch/internal/usecase/matching"
	"github.com/kailas-cloud/grantmatch/internal/version"
)

const clientKey = "grantctl.client"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, red("error:"), err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "grantctl",
		Usage:   "Query and operate a grantmatch service",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "Base URL of the grantmatch HTTP API",
				Value:   "http://localhost:8080",
				EnvVars: []string{"GRANTMATCH_ADDR"},
			},
			&cli.StringFlag{
				Name:    "admin-key",
				Usage:   "Bearer key for admin endpoints",
				EnvVars: []string{"GRANTMATCH_ADMIN_KEY"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "HTTP request timeout",
				Value: 30 * time.Second,
			},
		},
		Before: func(c *cli.Context) error {
			c.App.Metadata = map[string]any{
				clientKey: newAPIClient(c.String("addr"), c.String("admin-key"), c.Duration("timeout")),
			}
			return nil
		},
		Commands: []*cli.Command{
			searchCommand(),
			eligibilityCommand(),
			cacheCommand(),
			{
				Name:   "perf",
				Usage:  "Show operation timing statistics",
				Action: perfAction,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "operation", Usage: "Only operations with this name prefix"},
				},
			},
			{
				Name:   "queue",
				Usage:  "Show background queue statistics",
				Action: queueAction,
			},
			{
				Name:   "health",
				Usage:  "Show service health",
				Action: healthAction,
			},
			{
				Name:  "version",
				Usage: "Print build information",
				Action: func(c *cli.Context) error {
					_, _ = fmt.Fprintf(c.App.Writer, "grantctl %s (commit %s, built %s)\n",
						version.Version, version.Commit, version.Date)
					return nil
				},
			},
		},
	}
}

func clientFrom(c *cli.Context) *apiClient {
	return c.App.Metadata[clientKey].(*apiClient)
}

func profileFlags(required bool) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "owner", Usage: "Owner of a stored applicant profile", Required: required},
		&cli.StringFlag{Name: "profile", Usage: "ID of a stored applicant profile", Required: required},
	}
}

func searchCommand() *cli.Command {
	flags := append(profileFlags(false),
		&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Free-text query"},
		&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Page size", Value: request.DefaultLimit},
		&cli.IntFlag{Name: "offset", Usage: "Page offset"},
		&cli.Float64Flag{Name: "min-similarity", Usage: "Drop candidates below this similarity"},
		&cli.BoolFlag{Name: "eligible-only", Usage: "Only return grants the applicant is eligible for"},
		&cli.TimestampFlag{Name: "deadline-after", Usage: "Only grants due after this date", Layout: time.DateOnly},
		&cli.TimestampFlag{Name: "deadline-before", Usage: "Only grants due before this date", Layout: time.DateOnly},
		&cli.BoolFlag{Name: "essay-required", Usage: "Match on whether an essay is required"},
		&cli.Float64Flag{Name: "min-award", Usage: "Award ceiling at least this amount"},
		&cli.Float64Flag{Name: "max-award", Usage: "Minimum award at most this amount"},
	)
	return &cli.Command{
		Name:   "search",
		Usage:  "Rank grants for a stored profile or a free-text query",
		Flags:  flags,
		Action: searchAction,
	}
}

func searchAction(c *cli.Context) error {
	body := chiTransport.SearchRequest{
		OwnerID:       c.String("owner"),
		ProfileID:     c.String("profile"),
		Query:         c.String("query"),
		Offset:        c.Int("offset"),
		Limit:         c.Int("limit"),
		MinSimilarity: c.Float64("min-similarity"),
		EligibleOnly:  c.Bool("eligible-only"),
	}
	if t := c.Timestamp("deadline-after"); t != nil {
		body.Filters.DeadlineAfter = t.UTC()
	}
	if t := c.Timestamp("deadline-before"); t != nil {
		body.Filters.DeadlineBefore = t.UTC()
	}
	if c.IsSet("essay-required") {
		v := c.Bool("essay-required")
		body.Filters.EssayRequired = &v
	}
	if c.IsSet("min-award") {
		v := c.Float64("min-award")
		body.Filters.MinAward = &v
	}
	if c.IsSet("max-award") {
		v := c.Float64("max-award")
		body.Filters.MaxAward = &v
	}
	if body.Query == "" && body.ProfileID == "" {
		return cli.Exit("either --query or --owner/--profile is required", 2)
	}

	var resp chiTransport.SearchResponse
	if err := clientFrom(c).do(c.Context, http.MethodPost, "/v1/matches/search", nil, body, &resp); err != nil {
		return err
	}
	printSearch(c.App.Writer, resp)
	return nil
}

func eligibilityCommand() *cli.Command {
	return &cli.Command{
		Name:  "eligibility",
		Usage: "Check a stored profile against one grant",
		Flags: append(profileFlags(true),
			&cli.StringFlag{Name: "sponsor", Usage: "Grant sponsor", Required: true},
			&cli.StringFlag{Name: "grant", Usage: "Grant ID", Required: true},
		),
		Action: func(c *cli.Context) error {
			body := chiTransport.EligibilityRequest{
				OwnerID:   c.String("owner"),
				ProfileID: c.String("profile"),
				Sponsor:   c.String("sponsor"),
				GrantID:   c.String("grant"),
			}
			var res matchinguc.EligibilityResult
			if err := clientFrom(c).do(c.Context, http.MethodPost, "/v1/eligibility", nil, body, &res); err != nil {
				return err
			}
			printEligibility(c.App.Writer, res)
			return nil
		},
	}
}

func cacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect or clear the result cache",
		Subcommands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "Show cache counters",
				Action: func(c *cli.Context) error {
					var s cache.Stats
					if err := clientFrom(c).do(c.Context, http.MethodGet, "/v1/diagnostics/cache", nil, nil, &s); err != nil {
						return err
					}
					printCacheStats(c.App.Writer, s)
					return nil
				},
			},
			{
				Name:  "clear",
				Usage: "Remove cache entries matching a glob pattern (admin)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "pattern", Aliases: []string{"p"}, Usage: "Glob pattern, e.g. search:*", Value: "*"},
				},
				Action: func(c *cli.Context) error {
					q := url.Values{"pattern": {c.String("pattern")}}
					var res chiTransport.CacheClearResponse
					if err := clientFrom(c).do(c.Context, http.MethodDelete, "/v1/cache", q, nil, &res); err != nil {
						return err
					}
					_, _ = fmt.Fprintf(c.App.Writer, "removed %s entries matching %s\n",
						green(res.Removed), cyan(res.Pattern))
					return nil
				},
			},
		},
	}
}

func perfAction(c *cli.Context) error {
	var q url.Values
	if op := c.String("operation"); op != "" {
		q = url.Values{"operation": {op}}
	}
	var snap perf.Snapshot
	if err := clientFrom(c).do(c.Context, http.MethodGet, "/v1/diagnostics/performance", q, nil, &snap); err != nil {
		return err
	}
	printPerf(c.App.Writer, snap)
	return nil
}

func queueAction(c *cli.Context) error {
	var s taskqueue.Stats
	if err := clientFrom(c).do(c.Context, http.MethodGet, "/v1/diagnostics/queue", nil, nil, &s); err != nil {
		return err
	}
	printQueueStats(c.App.Writer, s)
	return nil
}

func healthAction(c *cli.Context) error {
	var r healthuc.Report
	if err := clientFrom(c).do(c.Context, http.MethodGet, "/health", nil, nil, &r); err != nil {
		return err
	}
	printHealth(c.App.Writer, r)
	if r.Status == healthuc.Unhealthy {
		return cli.Exit("", 1)
	}
	return nil
}
