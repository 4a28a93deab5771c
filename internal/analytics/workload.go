package analytics

import (
	"trackgate/internal/cache"
)

// unassignedKey is the literal map key for issues without an assignee.
const unassignedKey = "Unassigned"

// WorkloadResult carries the workload_by_member key the renderer
// dispatches on.
type WorkloadResult struct {
	Result
	WorkloadByMember  map[string]int `json:"workload_by_member,omitempty"`
	TotalOpenIssues   int            `json:"total_open_issues"`
	UnassignedIssues  int            `json:"unassigned_issues"`
	TeamSize          int            `json:"team_size"`
	OverloadedMembers []string       `json:"overloaded_members"`
}

// TeamWorkload buckets open issues by assignee display name. Assignee names
// come from the issue rows themselves, so the aggregation works even when
// the users endpoint was unavailable during the refresh. overloadThreshold
// is the open-issue count above which a member is flagged.
func TeamWorkload(snap *cache.Snapshot, projectID, overloadThreshold int) WorkloadResult {
	if snap == nil {
		return WorkloadResult{Result: cacheUnavailable()}
	}

	byMember := map[string]int{}
	result := WorkloadResult{
		Result:            ok(),
		OverloadedMembers: []string{},
	}
	for _, row := range snap.ProjectIssues(projectID) {
		if row.Closed() {
			continue
		}
		result.TotalOpenIssues++
		name := row.AssigneeName
		if name == "" {
			name = unassignedKey
			result.UnassignedIssues++
		}
		byMember[name]++
	}
	for name, count := range byMember {
		if count > overloadThreshold {
			result.OverloadedMembers = append(result.OverloadedMembers, name)
		}
	}
	result.WorkloadByMember = byMember
	result.TeamSize = len(byMember)
	return result
}
