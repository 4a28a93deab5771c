package analytics

import (
	"strings"

	"trackgate/internal/cache"
)

// CriticalOpen breaks open bugs down by the high-priority band.
type CriticalOpen struct {
	High          int `json:"high"`
	Urgent        int `json:"urgent"`
	Immediate     int `json:"immediate"`
	TotalCritical int `json:"total_critical"`
}

// BugMetrics is the bug-analytics payload.
type BugMetrics struct {
	TotalBugs  int          `json:"total_bugs"`
	OpenBugs   int          `json:"open_bugs"`
	ClosedBugs int          `json:"closed_bugs"`
	Critical   CriticalOpen `json:"critical_open"`
	// BugToStoryRatio is null when there are no open stories to divide by.
	BugToStoryRatio       *float64 `json:"bug_to_story_ratio"`
	AverageResolutionDays *float64 `json:"average_resolution_days"`
}

// BugAnalyticsResult carries the bug_metrics key the renderer dispatches on.
type BugAnalyticsResult struct {
	Result
	BugMetrics *BugMetrics `json:"bug_metrics,omitempty"`
}

// BugAnalytics computes bug counts, the critical-open band, the ratio of
// open bugs to open stories, and mean resolution time over bugs with a
// closed timestamp.
func BugAnalytics(snap *cache.Snapshot, projectID int) BugAnalyticsResult {
	if snap == nil {
		return BugAnalyticsResult{Result: cacheUnavailable()}
	}

	metrics := BugMetrics{}
	openStories := 0
	resolvedBugs := 0
	var resolutionDaysTotal float64

	for _, row := range snap.ProjectIssues(projectID) {
		tracker := strings.ToLower(row.TrackerName)
		if tracker == "story" && !row.Closed() {
			openStories++
		}
		if tracker != "bug" {
			continue
		}
		metrics.TotalBugs++
		if row.Closed() {
			metrics.ClosedBugs++
			if row.ClosedOn != nil {
				resolvedBugs++
				resolutionDaysTotal += daysBetween(row.CreatedOn, *row.ClosedOn)
			}
			continue
		}
		metrics.OpenBugs++
		switch strings.ToLower(row.PriorityName) {
		case "high":
			metrics.Critical.High++
		case "urgent":
			metrics.Critical.Urgent++
		case "immediate":
			metrics.Critical.Immediate++
		}
	}
	metrics.Critical.TotalCritical =
		metrics.Critical.High + metrics.Critical.Urgent + metrics.Critical.Immediate

	if openStories > 0 {
		metrics.BugToStoryRatio = ptrFloat(round2(float64(metrics.OpenBugs) / float64(openStories)))
	}
	if resolvedBugs > 0 {
		metrics.AverageResolutionDays = ptrFloat(round1(resolutionDaysTotal / float64(resolvedBugs)))
	}

	return BugAnalyticsResult{Result: ok(), BugMetrics: &metrics}
}
