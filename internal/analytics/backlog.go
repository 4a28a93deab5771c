package analytics

import (
	"time"

	"trackgate/internal/cache"
	"trackgate/internal/config"
)

// Aging summarizes how long open issues have been sitting.
type Aging struct {
	AverageDaysOpen *float64 `json:"average_days_open"`
}

// MonthlyActivity covers the current calendar month in the gateway's zone.
type MonthlyActivity struct {
	CreatedThisMonth int    `json:"created_this_month"`
	ClosedThisMonth  int    `json:"closed_this_month"`
	NetChange        int    `json:"net_change"`
	Month            string `json:"month"`
}

// BacklogMetrics is the backlog payload.
type BacklogMetrics struct {
	TotalOpen             int             `json:"total_open"`
	HighPriorityOpen      int             `json:"high_priority_open"`
	UnestimatedPercentage float64         `json:"unestimated_percentage"`
	Aging                 Aging           `json:"aging"`
	MonthlyActivity       MonthlyActivity `json:"monthly_activity"`
}

// BacklogResult carries the backlog key the renderer dispatches on.
type BacklogResult struct {
	Result
	Backlog *BacklogMetrics `json:"backlog,omitempty"`
}

// BacklogAnalytics computes backlog size, priority pressure, aging, and the
// current month's created/closed activity. now must carry the configured
// time zone; month boundaries are computed in it.
func BacklogAnalytics(snap *cache.Snapshot, projectID int, now time.Time) BacklogResult {
	if snap == nil {
		return BacklogResult{Result: cacheUnavailable()}
	}

	rows := snap.ProjectIssues(projectID)
	metrics := BacklogMetrics{
		MonthlyActivity: MonthlyActivity{Month: now.Format("2006-01")},
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	unestimated := 0
	var ageDaysTotal float64

	for _, row := range rows {
		if !row.CreatedOn.Before(monthStart) {
			metrics.MonthlyActivity.CreatedThisMonth++
		}
		if row.ClosedOn != nil && !row.ClosedOn.Before(monthStart) {
			metrics.MonthlyActivity.ClosedThisMonth++
		}
		if row.Closed() {
			continue
		}
		metrics.TotalOpen++
		if config.IsHighPriority(row.PriorityName) {
			metrics.HighPriorityOpen++
		}
		if row.EstimatedHours == nil || *row.EstimatedHours == 0 {
			unestimated++
		}
		ageDaysTotal += daysBetween(row.CreatedOn, now)
	}

	metrics.MonthlyActivity.NetChange =
		metrics.MonthlyActivity.CreatedThisMonth - metrics.MonthlyActivity.ClosedThisMonth
	if metrics.TotalOpen > 0 {
		metrics.UnestimatedPercentage = round1(float64(unestimated) / float64(metrics.TotalOpen) * 100)
		metrics.Aging.AverageDaysOpen = ptrFloat(round1(ageDaysTotal / float64(metrics.TotalOpen)))
	}

	return BacklogResult{Result: ok(), Backlog: &metrics}
}
