package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/kailas-cloud/grantmatch/internal/cache"
	"github.com/kailas-cloud/grantmatch/internal/perf"
	"github.com/kailas-cloud/grantmatch/internal/taskqueue"
	chiTransport "github.com/kailas-cloud/grantmatch/internal/transport/chi"
	healthuc "github.com/kailas-cloud/grantmatch/internal/usecase/health"
	matchinguc "github.com/kailas-cloud/grantmatch/internal/usecase/matching"
)

var (
	bold   = color.New(color.Bold).SprintFunc()
	green  = color.New(color.FgGreen, color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed, color.Bold).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
)

func printSearch(w io.Writer, resp chiTransport.SearchResponse) {
	m := resp.Metadata
	source := "computed"
	if m.FromCache {
		source = "cache"
	}
	_, _ = fmt.Fprintf(w, "%s %d of %d (offset %d, %s, %.1fms, %d candidates, %d eligible)\n",
		bold("Results"), len(resp.Results), resp.Total, m.Offset, source,
		m.ProcessingTimeMs, m.CandidatesConsidered, m.EligibleCount)

	for i, r := range resp.Results {
		mark := green("eligible")
		if !r.Eligible {
			mark = yellow("not eligible: " + strings.Join(r.Unmet, ", "))
		}
		title := r.Grant.Title
		if title == "" {
			title = r.GrantID
		}
		_, _ = fmt.Fprintf(w, "%3d. %s %s  score=%.3f sim=%.3f  %s\n",
			m.Offset+i+1, bold(title), cyan("["+r.Grant.Sponsor+"/"+r.GrantID+"]"), r.Score, r.Similarity, mark)
	}
}

func printEligibility(w io.Writer, res matchinguc.EligibilityResult) {
	if res.Eligible {
		_, _ = fmt.Fprintf(w, "%s/%s: %s\n", res.Sponsor, res.GrantID, green("eligible"))
		return
	}
	_, _ = fmt.Fprintf(w, "%s/%s: %s\n", res.Sponsor, res.GrantID, red("not eligible"))
	for _, u := range res.Unmet {
		_, _ = fmt.Fprintf(w, "  - %s\n", u)
	}
}

func printHealth(w io.Writer, r healthuc.Report) {
	_, _ = fmt.Fprintf(w, "%s %s\n", bold("status"), statusColor(string(r.Status)))
	names := make([]string, 0, len(r.Checks))
	for n := range r.Checks {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		_, _ = fmt.Fprintf(w, "  %-10s %s\n", n, statusColor(string(r.Checks[n])))
	}
}

func statusColor(s string) string {
	switch s {
	case "ok":
		return green(s)
	case "degraded":
		return yellow(s)
	default:
		return red(s)
	}
}

func printPerf(w io.Writer, snap perf.Snapshot) {
	_, _ = fmt.Fprintf(w, "%-32s %8s %7s %6s %10s %10s\n",
		bold("operation"), "count", "errors", "slow", "avg", "max")
	for _, name := range snap.Names() {
		s := snap.Operations[name]
		slow := fmt.Sprint(s.Slow)
		if s.Slow > 0 {
			slow = yellow(slow)
		}
		_, _ = fmt.Fprintf(w, "%-32s %8d %7d %6s %10s %10s\n", name, s.Count, s.Errors, slow, s.Average, s.Max)
	}
}

func printCacheStats(w io.Writer, s cache.Stats) {
	_, _ = fmt.Fprintf(w, "%s %d entries, hit rate %.1f%%\n", bold("cache"), s.Entries, s.HitRate*100)
	_, _ = fmt.Fprintf(w, "  hits=%d (local %d, remote %d) misses=%d sets=%d\n",
		s.Hits, s.LocalHits, s.RemoteHits, s.Misses, s.Sets)
	_, _ = fmt.Fprintf(w, "  factory_calls=%d shared_waits=%d evictions=%d\n", s.FactoryCalls, s.SharedWaits, s.Evictions)
	if s.RemoteErrors > 0 {
		_, _ = fmt.Fprintf(w, "  %s\n", red(fmt.Sprintf("remote_errors=%d", s.RemoteErrors)))
	}
}

func printQueueStats(w io.Writer, s taskqueue.Stats) {
	state := green("running")
	if s.Closed {
		state = red("closed")
	}
	_, _ = fmt.Fprintf(w, "%s %s workers=%d pending=%d/%d running=%d\n",
		bold("queue"), state, s.Workers, s.Pending, s.Capacity, s.Running)
	_, _ = fmt.Fprintf(w, "  submitted=%d completed=%d failed=%d rejected=%d\n",
		s.Submitted, s.Completed, s.Failed, s.Rejected)
}
