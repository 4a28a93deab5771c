// Package tools holds the static catalogue of tool descriptors the model
// can call, grouped into categories for two-phase selection.
package tools

import (
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// Category names are a closed set; the selector and registry agree on them.
const (
	CategoryTrackerCore      = "tracker-core"
	CategoryTrackerAnalytics = "tracker-analytics"
	CategoryCacheControl     = "cache-control"
)

// Categories lists every category in registration order; the selector's
// fallback picks the first enabled one.
var Categories = []string{
	CategoryTrackerCore,
	CategoryTrackerAnalytics,
	CategoryCacheControl,
}

// CategoryKeywords maps distinguishing utterance terms to a category.
// A hit here skips the model round of the selector entirely.
var CategoryKeywords = map[string]string{
	"sprint":      CategoryTrackerAnalytics,
	"backlog":     CategoryTrackerAnalytics,
	"bug":         CategoryTrackerAnalytics,
	"bugs":        CategoryTrackerAnalytics,
	"velocity":    CategoryTrackerAnalytics,
	"throughput":  CategoryTrackerAnalytics,
	"workload":    CategoryTrackerAnalytics,
	"cycle":       CategoryTrackerAnalytics,
	"release":     CategoryTrackerAnalytics,
	"blocked":     CategoryTrackerAnalytics,
	"progress":    CategoryTrackerAnalytics,
	"burndown":    CategoryTrackerAnalytics,
	"issue":       CategoryTrackerCore,
	"issues":      CategoryTrackerCore,
	"ticket":      CategoryTrackerCore,
	"tickets":     CategoryTrackerCore,
	"project":     CategoryTrackerCore,
	"projects":    CategoryTrackerCore,
	"cache":       CategoryCacheControl,
}

// Property is one named parameter of a tool.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Descriptor declares one callable tool.
type Descriptor struct {
	Name        string
	Description string
	Category    string
	Properties  map[string]Property
	Required    []string
}

// projectIDProp is shared by almost every tool. Both the numeric tracker id
// and the configured slug or display name are accepted.
var projectIDProp = Property{
	Type:        "string",
	Description: "Project as integer tracker id or string project slug or display name",
}

// Registry is the full catalogue, registration order stable.
var Registry = []Descriptor{
	{
		Name:        "list_projects",
		Description: "List all projects visible to the configured credential.",
		Category:    CategoryTrackerCore,
		Properties:  map[string]Property{},
	},
	{
		Name:        "list_issues",
		Description: "List issues, optionally filtered by project, status, tracker, or assignee.",
		Category:    CategoryTrackerCore,
		Properties: map[string]Property{
			"project_id":     projectIDProp,
			"status_id":      {Type: "string", Description: "Status filter: open, closed, *, or a numeric status id"},
			"tracker_id":     {Type: "integer", Description: "Tracker type id (1=bug, 2=feature, 3=support, 4=story)"},
			"assigned_to_id": {Type: "integer", Description: "Assignee user id"},
			"limit":          {Type: "integer", Description: "Maximum rows to return"},
		},
	},
	{
		Name:        "get_issue",
		Description: "Fetch a single issue with journals and attachments.",
		Category:    CategoryTrackerCore,
		Properties: map[string]Property{
			"issue_id": {Type: "integer", Description: "Issue id"},
		},
		Required: []string{"issue_id"},
	},
	{
		Name:        "create_issue",
		Description: "Create a new issue in a project.",
		Category:    CategoryTrackerCore,
		Properties: map[string]Property{
			"project_id":  projectIDProp,
			"subject":     {Type: "string", Description: "Issue subject line"},
			"description": {Type: "string", Description: "Issue body"},
			"tracker_id":  {Type: "integer", Description: "Tracker type id"},
			"priority_id": {Type: "integer", Description: "Priority id (1=low .. 5=immediate)"},
		},
		Required: []string{"project_id", "subject"},
	},
	{
		Name:        "update_issue",
		Description: "Update fields of an existing issue.",
		Category:    CategoryTrackerCore,
		Properties: map[string]Property{
			"issue_id":    {Type: "integer", Description: "Issue id"},
			"subject":     {Type: "string", Description: "New subject"},
			"status_id":   {Type: "integer", Description: "New status id"},
			"priority_id": {Type: "integer", Description: "New priority id"},
			"done_ratio":  {Type: "integer", Description: "Percent complete, 0-100"},
			"notes":       {Type: "string", Description: "Journal note to append"},
		},
		Required: []string{"issue_id"},
	},
	{
		Name:        "sprint_status",
		Description: "Sprint progress: committed, completed, remaining, completion percentage, and burndown assessment for a version.",
		Category:    CategoryTrackerAnalytics,
		Properties: map[string]Property{
			"project_id":   projectIDProp,
			"version_name": {Type: "string", Description: "Sprint (version) name; omit for the whole project"},
		},
	},
	{
		Name:        "backlog_analytics",
		Description: "Backlog size, high-priority pressure, estimation coverage, aging, and this month's created/closed activity.",
		Category:    CategoryTrackerAnalytics,
		Properties: map[string]Property{
			"project_id": projectIDProp,
		},
	},
	{
		Name:        "team_workload",
		Description: "Open issues per assignee, unassigned count, team size, and overloaded members.",
		Category:    CategoryTrackerAnalytics,
		Properties: map[string]Property{
			"project_id": projectIDProp,
		},
	},
	{
		Name:        "cycle_time_analytics",
		Description: "Average lead time and cycle time in days over closed issues, plus reopened-ticket counts where journals are available.",
		Category:    CategoryTrackerAnalytics,
		Properties: map[string]Property{
			"project_id": projectIDProp,
		},
	},
	{
		Name:        "bug_analytics",
		Description: "Bug totals, critical open bugs by priority, bug-to-story ratio, and average resolution days.",
		Category:    CategoryTrackerAnalytics,
		Properties: map[string]Property{
			"project_id": projectIDProp,
		},
	},
	{
		Name:        "release_status",
		Description: "Completion state of one version, or of every version in a project.",
		Category:    CategoryTrackerAnalytics,
		Properties: map[string]Property{
			"project_id":   projectIDProp,
			"version_name": {Type: "string", Description: "Version name; omit to list all versions"},
		},
	},
	{
		Name:        "velocity_trend",
		Description: "Completed issues per closed sprint, oldest to newest, with average velocity and trend classification.",
		Category:    CategoryTrackerAnalytics,
		Properties: map[string]Property{
			"project_id": projectIDProp,
			"sprints":    {Type: "integer", Description: "How many recent closed sprints to include (default 5)"},
		},
	},
	{
		Name:        "throughput_analytics",
		Description: "Issues created and closed per ISO week with net throughput and trend.",
		Category:    CategoryTrackerAnalytics,
		Properties: map[string]Property{
			"project_id": projectIDProp,
			"weeks":      {Type: "integer", Description: "How many recent weeks to include (default 4)"},
		},
	},
	{
		Name:        "tasks_in_progress",
		Description: "Count of open issues currently in progress.",
		Category:    CategoryTrackerAnalytics,
		Properties: map[string]Property{
			"project_id": projectIDProp,
		},
	},
	{
		Name:        "blocked_tasks",
		Description: "Count of open issues in the blocked status.",
		Category:    CategoryTrackerAnalytics,
		Properties: map[string]Property{
			"project_id": projectIDProp,
		},
	},
	{
		Name:        "cache_control",
		Description: "Control the analytics cache: turn it on or off, force a refresh, or report its status.",
		Category:    CategoryCacheControl,
		Properties: map[string]Property{
			"action": {Type: "string", Description: "Cache action", Enum: []string{"on", "off", "refresh", "status"}},
		},
		Required: []string{"action"},
	},
}

// Lookup finds a descriptor by name.
func Lookup(name string) (Descriptor, bool) {
	for _, d := range Registry {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

// ForCategory returns the descriptors in a category, filtered to the
// deployer-enabled set. A nil enabled map means everything is enabled.
func ForCategory(category string, enabled map[string]bool) []Descriptor {
	var out []Descriptor
	for _, d := range Registry {
		if d.Category != category {
			continue
		}
		if enabled != nil && !enabled[category] {
			continue
		}
		out = append(out, d)
	}
	return out
}

// EnabledCategories returns the categories switched on by the deployer, in
// registration order. A nil map enables everything.
func EnabledCategories(enabled map[string]bool) []string {
	var out []string
	for _, c := range Categories {
		if enabled == nil || enabled[c] {
			out = append(out, c)
		}
	}
	return out
}

// KeywordCategory runs the prefilter over an utterance. The match is on
// whole lowercase words so "buggy" does not trip the bug analytics path.
func KeywordCategory(utterance string, enabled map[string]bool) (string, bool) {
	for _, word := range strings.Fields(strings.ToLower(utterance)) {
		word = strings.Trim(word, ".,!?;:'\"()")
		category, hit := CategoryKeywords[word]
		if !hit {
			continue
		}
		if enabled != nil && !enabled[category] {
			continue
		}
		return category, true
	}
	return "", false
}

// Anthropic converts a descriptor into the SDK's tool parameter shape.
func (d Descriptor) Anthropic() anthropic.ToolUnionParam {
	props := map[string]any{}
	for name, p := range d.Properties {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		props[name] = prop
	}
	tool := anthropic.ToolParam{
		Name:        d.Name,
		Description: anthropic.String(d.Description),
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties: props,
			Required:   d.Required,
		},
	}
	return anthropic.ToolUnionParam{OfTool: &tool}
}

// AnthropicTools converts a descriptor slice for a model call.
func AnthropicTools(ds []Descriptor) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Anthropic())
	}
	return out
}
