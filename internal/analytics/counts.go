package analytics

import (
	"trackgate/internal/cache"
	"trackgate/internal/config"
)

// CountResult is the payload of the simple status-count aggregations.
type CountResult struct {
	Result
	InProgressCount *int `json:"in_progress_count,omitempty"`
	BlockedCount    *int `json:"blocked_count,omitempty"`
}

// TasksInProgress counts the project's open issues in the in_progress
// status.
func TasksInProgress(snap *cache.Snapshot, projectID int) CountResult {
	if snap == nil {
		return CountResult{Result: cacheUnavailable()}
	}
	count := countStatus(snap, projectID, "in_progress")
	return CountResult{Result: ok(), InProgressCount: ptrInt(count)}
}

// BlockedTasks counts the project's open issues carrying the configured
// blocked status.
func BlockedTasks(snap *cache.Snapshot, projectID int, blockedStatus string) CountResult {
	if snap == nil {
		return CountResult{Result: cacheUnavailable()}
	}
	count := countStatus(snap, projectID, config.CanonicalStatus(blockedStatus))
	return CountResult{Result: ok(), BlockedCount: ptrInt(count)}
}

func countStatus(snap *cache.Snapshot, projectID int, canonical string) int {
	count := 0
	for _, row := range snap.ProjectIssues(projectID) {
		if row.Closed() {
			continue
		}
		if config.CanonicalStatus(row.StatusName) == canonical {
			count++
		}
	}
	return count
}
