package analytics

import (
	"context"

	"trackgate/internal/config"
	"trackgate/internal/redmine"
)

// Counter is the slice of the tracker client the direct-count path needs.
// Direct counts bypass the cache entirely and always reflect live tracker
// totals, unaffected by the snapshot row cap.
type Counter interface {
	CountIssues(ctx context.Context, f redmine.Filter) (int, error)
}

// DirectBugCounts is the live bug-count payload.
type DirectBugCounts struct {
	TotalBugs  int `json:"total_bugs"`
	OpenBugs   int `json:"open_bugs"`
	ClosedBugs int `json:"closed_bugs"`
}

// DirectBugCountResult carries bug_metrics so the renderer treats it like
// the cached variant.
type DirectBugCountResult struct {
	Result
	BugMetrics *DirectBugCounts `json:"bug_metrics,omitempty"`
	Source     string           `json:"source,omitempty"`
}

// DirectBugCount asks the tracker for exact open and closed bug totals.
func DirectBugCount(ctx context.Context, counter Counter, projectID int) DirectBugCountResult {
	bugTracker := config.TrackerIDs["bug"]
	open, err := counter.CountIssues(ctx, redmine.Filter{
		ProjectID: projectID,
		TrackerID: bugTracker,
		StatusID:  "open",
	})
	if err != nil {
		return DirectBugCountResult{Result: failure(err)}
	}
	closed, err := counter.CountIssues(ctx, redmine.Filter{
		ProjectID: projectID,
		TrackerID: bugTracker,
		StatusID:  "closed",
	})
	if err != nil {
		return DirectBugCountResult{Result: failure(err)}
	}
	return DirectBugCountResult{
		Result: ok(),
		BugMetrics: &DirectBugCounts{
			TotalBugs:  open + closed,
			OpenBugs:   open,
			ClosedBugs: closed,
		},
		Source: "tracker",
	}
}

// DirectSprintCounts is the live sprint-size payload.
type DirectSprintCounts struct {
	TotalIssues  int `json:"total_issues"`
	OpenIssues   int `json:"open_issues"`
	ClosedIssues int `json:"closed_issues"`
}

// DirectSprintCountResult is the live variant of the sprint-size query.
type DirectSprintCountResult struct {
	Result
	Sprint  *SprintInfo         `json:"sprint,omitempty"`
	Metrics *DirectSprintCounts `json:"metrics,omitempty"`
	Source  string              `json:"source,omitempty"`
}

// DirectSprintCount asks the tracker for exact issue totals on one version.
func DirectSprintCount(ctx context.Context, counter Counter, projectID, versionID int, versionName string) DirectSprintCountResult {
	total, err := counter.CountIssues(ctx, redmine.Filter{
		ProjectID: projectID,
		VersionID: versionID,
		StatusID:  "*",
	})
	if err != nil {
		return DirectSprintCountResult{Result: failure(err)}
	}
	open, err := counter.CountIssues(ctx, redmine.Filter{
		ProjectID: projectID,
		VersionID: versionID,
		StatusID:  "open",
	})
	if err != nil {
		return DirectSprintCountResult{Result: failure(err)}
	}
	return DirectSprintCountResult{
		Result: ok(),
		Sprint: &SprintInfo{Name: versionName},
		Metrics: &DirectSprintCounts{
			TotalIssues:  total,
			OpenIssues:   open,
			ClosedIssues: total - open,
		},
		Source: "tracker",
	}
}

// DirectBacklogCounts is the live backlog-size payload.
type DirectBacklogCounts struct {
	TotalOpen        int `json:"total_open"`
	HighPriorityOpen int `json:"high_priority_open"`
}

// DirectBacklogCountResult carries backlog so the renderer treats it like
// the cached variant.
type DirectBacklogCountResult struct {
	Result
	Backlog *DirectBacklogCounts `json:"backlog,omitempty"`
	Source  string               `json:"source,omitempty"`
}

// DirectBacklogCount asks the tracker for the exact open total plus the
// open count in each high-priority band.
func DirectBacklogCount(ctx context.Context, counter Counter, projectID int) DirectBacklogCountResult {
	open, err := counter.CountIssues(ctx, redmine.Filter{
		ProjectID: projectID,
		StatusID:  "open",
	})
	if err != nil {
		return DirectBacklogCountResult{Result: failure(err)}
	}
	high := 0
	for _, priority := range []string{"high", "urgent", "immediate"} {
		count, err := counter.CountIssues(ctx, redmine.Filter{
			ProjectID:  projectID,
			StatusID:   "open",
			PriorityID: config.PriorityIDs[priority],
		})
		if err != nil {
			return DirectBacklogCountResult{Result: failure(err)}
		}
		high += count
	}
	return DirectBacklogCountResult{
		Result: ok(),
		Backlog: &DirectBacklogCounts{
			TotalOpen:        open,
			HighPriorityOpen: high,
		},
		Source: "tracker",
	}
}
