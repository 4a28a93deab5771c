package analytics

import (
	"fmt"

	"trackgate/internal/cache"
)

// Release summarizes one version's completion state.
type Release struct {
	VersionName          string  `json:"version_name"`
	TotalIssues          int     `json:"total_issues"`
	ClosedIssues         int     `json:"closed_issues"`
	OpenIssues           int     `json:"open_issues"`
	CompletionPercentage float64 `json:"completion_percentage"`
	DueDate              *string `json:"due_date"`
}

// ReleaseStatusResult carries either a single release or the releases list;
// the renderer dispatches on which key is present.
type ReleaseStatusResult struct {
	Result
	Release  *Release  `json:"release,omitempty"`
	Releases []Release `json:"releases,omitempty"`
}

// ReleaseStatus reports completion for one named version, or for every
// version of the project when versionName is empty.
func ReleaseStatus(snap *cache.Snapshot, projectID int, versionName string) ReleaseStatusResult {
	if snap == nil {
		return ReleaseStatusResult{Result: cacheUnavailable()}
	}

	if versionName != "" {
		version, found := snap.VersionByName(projectID, versionName)
		if !found {
			return ReleaseStatusResult{Result: Result{
				Success: false,
				Error:   fmt.Sprintf("version %q not found", versionName),
				Kind:    "tracker_not_found",
			}}
		}
		release := buildRelease(snap, projectID, version)
		return ReleaseStatusResult{Result: ok(), Release: &release}
	}

	releases := []Release{}
	for _, version := range snap.ProjectVersions(projectID) {
		releases = append(releases, buildRelease(snap, projectID, version))
	}
	return ReleaseStatusResult{Result: ok(), Releases: releases}
}

func buildRelease(snap *cache.Snapshot, projectID int, version cache.VersionRow) Release {
	release := Release{
		VersionName: version.Name,
		DueDate:     formatDate(version.DueDate),
	}
	for _, row := range snap.ProjectIssues(projectID) {
		if row.VersionID != version.ID {
			continue
		}
		release.TotalIssues++
		if row.Closed() {
			release.ClosedIssues++
		}
	}
	release.OpenIssues = release.TotalIssues - release.ClosedIssues
	if release.TotalIssues > 0 {
		release.CompletionPercentage =
			round1(float64(release.ClosedIssues) / float64(release.TotalIssues) * 100)
	}
	return release
}
