package redmine

import (
	"strings"
	"time"
)

// Ref is the tracker's embedded {id, name} reference object.
type Ref struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Date handles the tracker's bare YYYY-MM-DD date fields.
type Date struct {
	time.Time
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.Format("2006-01-02") + `"`), nil
}

// Issue is the wire shape of a tracker issue.
type Issue struct {
	ID             int        `json:"id"`
	Subject        string     `json:"subject"`
	Description    string     `json:"description"`
	Project        Ref        `json:"project"`
	Tracker        Ref        `json:"tracker"`
	Status         Ref        `json:"status"`
	Priority       Ref        `json:"priority"`
	AssignedTo     *Ref       `json:"assigned_to,omitempty"`
	FixedVersion   *Ref       `json:"fixed_version,omitempty"`
	EstimatedHours *float64   `json:"estimated_hours,omitempty"`
	SpentHours     *float64   `json:"spent_hours,omitempty"`
	DoneRatio      int        `json:"done_ratio"`
	CreatedOn      time.Time  `json:"created_on"`
	UpdatedOn      time.Time  `json:"updated_on"`
	ClosedOn       *time.Time `json:"closed_on,omitempty"`
	StartDate      *Date      `json:"start_date,omitempty"`
	DueDate        *Date      `json:"due_date,omitempty"`
	Journals       []Journal  `json:"journals,omitempty"`
}

// Journal is one change-history entry on an issue.
type Journal struct {
	ID        int             `json:"id"`
	User      Ref             `json:"user"`
	Notes     string          `json:"notes"`
	CreatedOn time.Time       `json:"created_on"`
	Details   []JournalDetail `json:"details"`
}

// JournalDetail is one attribute change within a journal entry. Status
// transitions carry property "attr", name "status_id".
type JournalDetail struct {
	Property string `json:"property"`
	Name     string `json:"name"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}

// Project is the wire shape of a tracker project.
type Project struct {
	ID          int    `json:"id"`
	Identifier  string `json:"identifier"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Version is the wire shape of a tracker version (sprint).
type Version struct {
	ID      int    `json:"id"`
	Project Ref    `json:"project"`
	Name    string `json:"name"`
	Status  string `json:"status"` // open, locked, closed
	DueDate *Date  `json:"due_date,omitempty"`
}

// User is the wire shape of a tracker user.
type User struct {
	ID        int    `json:"id"`
	Login     string `json:"login"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
}

// DisplayName returns the user's human-readable name.
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.Firstname + " " + u.Lastname)
	if name == "" {
		return u.Login
	}
	return name
}

// Enum is one entry from the tracker's enumeration endpoints.
type Enum struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	IsClosed bool   `json:"is_closed,omitempty"`
}

// NewIssue carries the fields accepted by issue creation.
type NewIssue struct {
	ProjectID    any    `json:"project_id"`
	Subject      string `json:"subject"`
	Description  string `json:"description,omitempty"`
	TrackerID    int    `json:"tracker_id,omitempty"`
	PriorityID   int    `json:"priority_id,omitempty"`
	AssignedToID int    `json:"assigned_to_id,omitempty"`
}

// IssueUpdate carries the mutable fields of an issue update. Nil fields are
// left untouched.
type IssueUpdate struct {
	Subject      string `json:"subject,omitempty"`
	Description  string `json:"description,omitempty"`
	StatusID     int    `json:"status_id,omitempty"`
	PriorityID   int    `json:"priority_id,omitempty"`
	AssignedToID int    `json:"assigned_to_id,omitempty"`
	DoneRatio    *int   `json:"done_ratio,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

type issuesEnvelope struct {
	Issues     []Issue `json:"issues"`
	TotalCount int     `json:"total_count"`
	Offset     int     `json:"offset"`
	Limit      int     `json:"limit"`
}

type issueEnvelope struct {
	Issue Issue `json:"issue"`
}

type projectsEnvelope struct {
	Projects   []Project `json:"projects"`
	TotalCount int       `json:"total_count"`
}

type versionsEnvelope struct {
	Versions []Version `json:"versions"`
}

type usersEnvelope struct {
	Users      []User `json:"users"`
	TotalCount int    `json:"total_count"`
}

type statusesEnvelope struct {
	IssueStatuses []Enum `json:"issue_statuses"`
}

type trackersEnvelope struct {
	Trackers []Enum `json:"trackers"`
}

type prioritiesEnvelope struct {
	IssuePriorities []Enum `json:"issue_priorities"`
}
