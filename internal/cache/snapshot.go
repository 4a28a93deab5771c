// Package cache holds the in-memory analytical projection of the tracker.
//
// A Snapshot is an immutable value; the engine replaces it wholesale via an
// atomic pointer swap. Readers take a reference at call entry and never
// observe a torn state.
package cache

import (
	"time"

	"trackgate/internal/config"
	"trackgate/internal/redmine"
)

// IssueRow is the flattened projection of one tracker issue.
type IssueRow struct {
	ID           int
	Subject      string
	ProjectID    int
	ProjectName  string
	TrackerID    int
	TrackerName  string
	StatusID     int
	StatusName   string
	PriorityID   int
	PriorityName string
	// AssigneeID 0 / AssigneeName "" means unassigned.
	AssigneeID   int
	AssigneeName string
	VersionID    int
	VersionName  string

	EstimatedHours *float64
	SpentHours     *float64
	DoneRatio      int

	CreatedOn time.Time
	UpdatedOn time.Time
	ClosedOn  *time.Time
	StartDate *time.Time
	DueDate   *time.Time

	// Reopened is only meaningful when the snapshot's JournalsLoaded flag
	// is set; the bulk listing endpoint does not return journals.
	Reopened bool
}

// Closed reports whether the row's status is in the closed set.
func (r IssueRow) Closed() bool {
	return config.IsClosedStatus(r.StatusName)
}

// ProjectRow is the projection of one tracker project.
type ProjectRow struct {
	ID          int
	Identifier  string
	Name        string
	Description string
}

// VersionRow is the projection of one tracker version (sprint).
type VersionRow struct {
	ID        int
	ProjectID int
	Name      string
	Status    string
	DueDate   *time.Time
}

// UserRow is the projection of one tracker user.
type UserRow struct {
	ID   int
	Name string
}

// EndpointError records a per-endpoint failure observed during a refresh,
// e.g. the users endpoint returning 403 for non-admin credentials.
type EndpointError struct {
	Endpoint string `json:"endpoint"`
	Status   int    `json:"status"`
}

// Snapshot is one immutable projection of the tracker's state.
type Snapshot struct {
	Issues   []IssueRow
	Projects []ProjectRow
	Versions []VersionRow
	Users    []UserRow

	TakenAt         time.Time
	IssuesTruncated bool
	JournalsLoaded  bool
	EndpointErrors  []EndpointError
}

// ProjectIssues returns the issues of one project; projectID 0 means all.
func (s *Snapshot) ProjectIssues(projectID int) []IssueRow {
	if projectID == 0 {
		return s.Issues
	}
	var rows []IssueRow
	for _, row := range s.Issues {
		if row.ProjectID == projectID {
			rows = append(rows, row)
		}
	}
	return rows
}

// VersionByName resolves a version by name, optionally scoped to a project.
func (s *Snapshot) VersionByName(projectID int, name string) (VersionRow, bool) {
	for _, v := range s.Versions {
		if v.Name != name {
			continue
		}
		if projectID != 0 && v.ProjectID != projectID {
			continue
		}
		return v, true
	}
	return VersionRow{}, false
}

// ProjectVersions returns the versions of one project; projectID 0 means all.
func (s *Snapshot) ProjectVersions(projectID int) []VersionRow {
	if projectID == 0 {
		return s.Versions
	}
	var rows []VersionRow
	for _, v := range s.Versions {
		if v.ProjectID == projectID {
			rows = append(rows, v)
		}
	}
	return rows
}

// normalizeIssue flattens a wire issue into a row.
func normalizeIssue(issue redmine.Issue) IssueRow {
	row := IssueRow{
		ID:             issue.ID,
		Subject:        issue.Subject,
		ProjectID:      issue.Project.ID,
		ProjectName:    issue.Project.Name,
		TrackerID:      issue.Tracker.ID,
		TrackerName:    issue.Tracker.Name,
		StatusID:       issue.Status.ID,
		StatusName:     issue.Status.Name,
		PriorityID:     issue.Priority.ID,
		PriorityName:   issue.Priority.Name,
		EstimatedHours: issue.EstimatedHours,
		SpentHours:     issue.SpentHours,
		DoneRatio:      issue.DoneRatio,
		CreatedOn:      issue.CreatedOn,
		UpdatedOn:      issue.UpdatedOn,
		ClosedOn:       issue.ClosedOn,
	}
	if issue.AssignedTo != nil {
		row.AssigneeID = issue.AssignedTo.ID
		row.AssigneeName = issue.AssignedTo.Name
	}
	if issue.FixedVersion != nil {
		row.VersionID = issue.FixedVersion.ID
		row.VersionName = issue.FixedVersion.Name
	}
	if issue.StartDate != nil && !issue.StartDate.IsZero() {
		t := issue.StartDate.Time
		row.StartDate = &t
	}
	if issue.DueDate != nil && !issue.DueDate.IsZero() {
		t := issue.DueDate.Time
		row.DueDate = &t
	}
	row.Reopened = wasReopened(issue)
	return row
}

// closedStatusIDs mirrors the closed partition of the status enum by id;
// journal details carry ids, not names.
var closedStatusIDs = map[string]bool{
	"5": true, // closed
	"6": true, // rejected
	"8": true, // cancelled
}

// wasReopened scans an issue's journals for a status transition out of the
// closed set. The bulk listing endpoint omits journals, so this only fires
// on snapshots built from journal-bearing fixtures or single-issue fetches.
func wasReopened(issue redmine.Issue) bool {
	for _, journal := range issue.Journals {
		for _, detail := range journal.Details {
			if detail.Property != "attr" || detail.Name != "status_id" {
				continue
			}
			if closedStatusIDs[detail.OldValue] && !closedStatusIDs[detail.NewValue] {
				return true
			}
		}
	}
	return false
}

func normalizeVersion(v redmine.Version) VersionRow {
	row := VersionRow{
		ID:        v.ID,
		ProjectID: v.Project.ID,
		Name:      v.Name,
		Status:    v.Status,
	}
	if v.DueDate != nil && !v.DueDate.IsZero() {
		t := v.DueDate.Time
		row.DueDate = &t
	}
	return row
}
