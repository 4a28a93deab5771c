package analytics

import (
	"trackgate/internal/cache"
	"trackgate/internal/config"
)

// SprintInfo describes the resolved version behind a sprint.
type SprintInfo struct {
	Name    string  `json:"name"`
	DueDate *string `json:"due_date"`
}

// SprintMetrics is the sprint-status payload.
type SprintMetrics struct {
	Committed           int            `json:"committed"`
	Completed           int            `json:"completed"`
	InProgress          int            `json:"in_progress"`
	Blocked             int            `json:"blocked"`
	Remaining           int            `json:"remaining"`
	CompletionPct       float64        `json:"completion_pct"`
	TotalEstimatedHours float64        `json:"total_estimated_hours"`
	TotalSpentHours     float64        `json:"total_spent_hours"`
	BreakdownByStatus   map[string]int `json:"breakdown_by_status"`
	BurndownAssessment  string         `json:"burndown_assessment"`
}

// SprintStatusResult carries the sprint + metrics keys the renderer
// dispatches on.
type SprintStatusResult struct {
	Result
	Sprint  *SprintInfo    `json:"sprint,omitempty"`
	Metrics *SprintMetrics `json:"metrics,omitempty"`
}

// SprintStatus computes sprint progress over the snapshot. The base set is
// the issues on the named version; with no version given it is every issue
// of the project. blockedStatus names the status treated as blocked.
func SprintStatus(snap *cache.Snapshot, projectID int, versionName, blockedStatus string) SprintStatusResult {
	if snap == nil {
		return SprintStatusResult{Result: cacheUnavailable()}
	}

	var base []cache.IssueRow
	for _, row := range snap.ProjectIssues(projectID) {
		if versionName != "" && row.VersionName != versionName {
			continue
		}
		base = append(base, row)
	}

	metrics := SprintMetrics{
		Committed:         len(base),
		BreakdownByStatus: map[string]int{},
	}
	blocked := config.CanonicalStatus(blockedStatus)
	for _, row := range base {
		metrics.BreakdownByStatus[row.StatusName]++
		metrics.TotalEstimatedHours += hoursOrZero(row.EstimatedHours)
		metrics.TotalSpentHours += hoursOrZero(row.SpentHours)
		switch {
		case row.Closed():
			metrics.Completed++
		case config.CanonicalStatus(row.StatusName) == "in_progress":
			metrics.InProgress++
		case config.CanonicalStatus(row.StatusName) == blocked:
			metrics.Blocked++
		}
	}
	metrics.Remaining = metrics.Committed - metrics.Completed
	if metrics.Committed > 0 {
		metrics.CompletionPct = round1(float64(metrics.Completed) / float64(metrics.Committed) * 100)
	}
	metrics.BurndownAssessment = "behind"
	if metrics.CompletionPct >= 50 {
		metrics.BurndownAssessment = "on_track"
	}

	result := SprintStatusResult{Result: ok(), Metrics: &metrics}
	if versionName != "" {
		result.Sprint = &SprintInfo{Name: versionName}
		if v, found := snap.VersionByName(projectID, versionName); found {
			result.Sprint.DueDate = formatDate(v.DueDate)
		}
	}
	return result
}
