// Package analytics derives summary statistics from extraction history.
package analytics

import (
	"sort"
	"time"

	"github.com/etiennegwiavander/linguaspark-sub009/pkg/types"
)

// Options narrows a summary.
type Options struct {
	// Since drops entries with a timestamp before it. Zero keeps everything.
	Since time.Time
	// TopErrors caps the error ranking. Zero or less keeps every error.
	TopErrors int
}

// Summarize reduces a history snapshot to an AnalyticsSummary. The result
// depends only on the set of entries, not their order.
func Summarize(entries []types.HistoryEntry) types.AnalyticsSummary {
	return SummarizeWith(entries, Options{})
}

type errorGroup struct {
	text      string
	count     int
	firstSeen time.Time
}

type retrySample struct {
	timestamp time.Time
	id        string
	retries   int
}

// SummarizeWith is Summarize with filtering options.
//
// Failed entries are grouped by exact error text and ranked by count, then
// by earliest occurrence, then by text. Average retries is taken over
// distinct sessions: each linked session contributes the retry count of its
// latest entry. Entries without a session link are left out of the average.
func SummarizeWith(entries []types.HistoryEntry, opts Options) types.AnalyticsSummary {
	summary := types.AnalyticsSummary{MostCommonErrors: []types.ErrorCount{}}

	groups := make(map[string]*errorGroup)
	latest := make(map[string]retrySample)

	for _, e := range entries {
		if !opts.Since.IsZero() && e.Timestamp.Before(opts.Since) {
			continue
		}

		switch e.Status {
		case types.StatusComplete:
			summary.SuccessfulExtractions++
		case types.StatusFailed:
			summary.FailedExtractions++
			g, ok := groups[e.Error]
			if !ok {
				g = &errorGroup{text: e.Error, firstSeen: e.Timestamp}
				groups[e.Error] = g
			}
			g.count++
			if e.Timestamp.Before(g.firstSeen) {
				g.firstSeen = e.Timestamp
			}
		default:
			continue
		}

		if e.SessionID == "" || e.RetryCount == nil {
			continue
		}
		cur, ok := latest[e.SessionID]
		if !ok || e.Timestamp.After(cur.timestamp) ||
			(e.Timestamp.Equal(cur.timestamp) && e.ID > cur.id) {
			latest[e.SessionID] = retrySample{timestamp: e.Timestamp, id: e.ID, retries: *e.RetryCount}
		}
	}
	summary.TotalExtractions = summary.SuccessfulExtractions + summary.FailedExtractions

	if len(latest) > 0 {
		total := 0
		for _, s := range latest {
			total += s.retries
		}
		summary.AverageRetries = float64(total) / float64(len(latest))
	}

	ranked := make([]*errorGroup, 0, len(groups))
	for _, g := range groups {
		ranked = append(ranked, g)
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.count != b.count {
			return a.count > b.count
		}
		if !a.firstSeen.Equal(b.firstSeen) {
			return a.firstSeen.Before(b.firstSeen)
		}
		return a.text < b.text
	})
	if opts.TopErrors > 0 && len(ranked) > opts.TopErrors {
		ranked = ranked[:opts.TopErrors]
	}
	for _, g := range ranked {
		summary.MostCommonErrors = append(summary.MostCommonErrors, types.ErrorCount{Error: g.text, Count: g.count})
	}
	return summary
}
