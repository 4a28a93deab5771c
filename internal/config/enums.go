package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Compiled-in enum maps for the known tracker deployment. A deployment with
// different ids should load these from the tracker's enum endpoints at
// startup and fail fast when a required name is missing.

// StatusIDs maps status names to tracker status ids.
var StatusIDs = map[string]int{
	"new":         1,
	"in_progress": 2,
	"resolved":    3,
	"feedback":    4,
	"closed":      5,
	"rejected":    6,
	"backlog":     7,
	"cancelled":   8,
}

// TrackerIDs maps tracker (issue type) names to ids.
var TrackerIDs = map[string]int{
	"bug":     1,
	"feature": 2,
	"support": 3,
	"story":   4,
}

// PriorityIDs maps priority names to ids.
var PriorityIDs = map[string]int{
	"low":       1,
	"normal":    2,
	"high":      3,
	"urgent":    4,
	"immediate": 5,
}

// closedStatuses partitions the status enum; open is the complement.
var closedStatuses = map[string]bool{
	"closed":    true,
	"rejected":  true,
	"cancelled": true,
}

// highPriorities are the priority names counted as high-priority/critical.
var highPriorities = map[string]bool{
	"high":      true,
	"urgent":    true,
	"immediate": true,
}

// projectAliases maps project slugs and display names to tracker project ids.
// Lookup is case-insensitive.
var projectAliases = map[string]int{
	"ncel": 6,
}

// IsClosedStatus reports whether the status name belongs to the closed set.
// Status names are matched case-insensitively with spaces folded to
// underscores, so "In Progress" and "in_progress" agree.
func IsClosedStatus(name string) bool {
	return closedStatuses[CanonicalStatus(name)]
}

// IsHighPriority reports whether the priority name counts as high priority.
func IsHighPriority(name string) bool {
	return highPriorities[CanonicalStatus(name)]
}

// CanonicalStatus folds an enum display name to its canonical form:
// lower-case with spaces replaced by underscores.
func CanonicalStatus(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// ErrUnknownProject is produced when a project identifier cannot be resolved.
type ErrUnknownProject struct {
	Identifier string
}

func (e *ErrUnknownProject) Error() string {
	return fmt.Sprintf("unknown project: %s", e.Identifier)
}

// NormalizeProjectID resolves a project identifier to a numeric tracker id.
// It accepts an integer id, a numeric string, or a configured alias
// (case-insensitive). A nil identifier resolves to 0, meaning all projects.
func NormalizeProjectID(identifier any) (int, error) {
	switch v := identifier.(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		// JSON numbers decode as float64.
		return int(v), nil
	case string:
		if v == "" {
			return 0, nil
		}
		if id, ok := projectAliases[strings.ToLower(strings.TrimSpace(v))]; ok {
			return id, nil
		}
		if id, err := strconv.Atoi(v); err == nil {
			return id, nil
		}
		return 0, &ErrUnknownProject{Identifier: v}
	default:
		return 0, &ErrUnknownProject{Identifier: fmt.Sprintf("%v", identifier)}
	}
}

// KnownProjects returns the configured project aliases, for error messages.
func KnownProjects() []string {
	names := make([]string, 0, len(projectAliases))
	for name := range projectAliases {
		names = append(names, name)
	}
	return names
}
