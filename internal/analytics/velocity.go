package analytics

import (
	"sort"

	"trackgate/internal/cache"
)

// DefaultVelocitySprints is how many closed versions the trend covers when
// the caller does not say.
const DefaultVelocitySprints = 5

// SprintVelocity is one version's completed-issue count.
type SprintVelocity struct {
	SprintName      string  `json:"sprint_name"`
	CompletedIssues int     `json:"completed_issues"`
	DueDate         *string `json:"due_date"`
}

// VelocityResult carries the per_sprint key the renderer dispatches on.
type VelocityResult struct {
	Result
	PerSprint       []SprintVelocity `json:"per_sprint,omitempty"`
	AverageVelocity float64          `json:"average_velocity"`
	VelocityTrend   string           `json:"velocity_trend,omitempty"`
}

// VelocityTrend looks at the most recent closed versions by due date,
// oldest first, and classifies the first-to-last movement. A swing of more
// than 10% either way counts as a trend.
func VelocityTrend(snap *cache.Snapshot, projectID, sprints int) VelocityResult {
	if snap == nil {
		return VelocityResult{Result: cacheUnavailable()}
	}
	if sprints <= 0 {
		sprints = DefaultVelocitySprints
	}

	var closed []cache.VersionRow
	for _, v := range snap.ProjectVersions(projectID) {
		if v.Status == "closed" && v.DueDate != nil {
			closed = append(closed, v)
		}
	}
	sort.Slice(closed, func(i, j int) bool {
		return closed[i].DueDate.Before(*closed[j].DueDate)
	})
	if len(closed) > sprints {
		closed = closed[len(closed)-sprints:]
	}

	completedByVersion := map[int]int{}
	for _, row := range snap.ProjectIssues(projectID) {
		if row.Closed() {
			completedByVersion[row.VersionID]++
		}
	}

	result := VelocityResult{Result: ok(), PerSprint: []SprintVelocity{}}
	total := 0
	for _, v := range closed {
		completed := completedByVersion[v.ID]
		total += completed
		result.PerSprint = append(result.PerSprint, SprintVelocity{
			SprintName:      v.Name,
			CompletedIssues: completed,
			DueDate:         formatDate(v.DueDate),
		})
	}
	if len(result.PerSprint) > 0 {
		result.AverageVelocity = round1(float64(total) / float64(len(result.PerSprint)))
	}
	result.VelocityTrend = classifyVelocity(result.PerSprint)
	return result
}

func classifyVelocity(perSprint []SprintVelocity) string {
	if len(perSprint) < 2 {
		return "stable"
	}
	first := float64(perSprint[0].CompletedIssues)
	last := float64(perSprint[len(perSprint)-1].CompletedIssues)
	if first == 0 {
		if last > 0 {
			return "increasing"
		}
		return "stable"
	}
	change := (last - first) / first
	switch {
	case change > 0.10:
		return "increasing"
	case change < -0.10:
		return "decreasing"
	default:
		return "stable"
	}
}
