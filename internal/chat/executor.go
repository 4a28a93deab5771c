package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"trackgate/internal/analytics"
	"trackgate/internal/cache"
	"trackgate/internal/config"
	"trackgate/internal/redmine"
)

// Tracker is the slice of the tracker client the executor dispatches to.
type Tracker interface {
	CountIssues(ctx context.Context, f redmine.Filter) (int, error)
	ListIssues(ctx context.Context, f redmine.Filter) ([]redmine.Issue, int, bool, error)
	GetIssue(ctx context.Context, id int, includeJournals bool) (*redmine.Issue, error)
	ListProjects(ctx context.Context) ([]redmine.Project, error)
	ListVersions(ctx context.Context, projectID int) ([]redmine.Version, error)
	CreateIssue(ctx context.Context, issue redmine.NewIssue) (*redmine.Issue, error)
	UpdateIssue(ctx context.Context, id int, update redmine.IssueUpdate) error
}

// CacheControl is the narrow engine surface the executor needs.
type CacheControl interface {
	Enable(ctx context.Context) (cache.Status, error)
	Disable()
	Refresh(ctx context.Context) error
	Status() cache.Status
	Current(ctx context.Context) (*cache.Snapshot, error)
}

// Executor dispatches validated tool calls into analytics, the cache
// engine, and the tracker client. Every outcome is a JSON string; failures
// become tool messages, never panics or transport errors.
type Executor struct {
	tracker Tracker
	engine  CacheControl
	cfg     *config.Config
	log     *zap.Logger
	now     func() time.Time
}

// NewExecutor wires the executor. A nil logger is replaced with a no-op.
func NewExecutor(tracker Tracker, engine CacheControl, cfg *config.Config, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		tracker: tracker,
		engine:  engine,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

// toolArgs is the superset of every tool's parameters; each handler reads
// the fields it declares.
type toolArgs struct {
	ProjectID    any    `json:"project_id"`
	VersionName  string `json:"version_name"`
	IssueID      int    `json:"issue_id"`
	StatusID     any    `json:"status_id"`
	TrackerID    int    `json:"tracker_id"`
	PriorityID   int    `json:"priority_id"`
	AssignedToID int    `json:"assigned_to_id"`
	DoneRatio    *int   `json:"done_ratio"`
	Subject      string `json:"subject"`
	Description  string `json:"description"`
	Notes        string `json:"notes"`
	Limit        int    `json:"limit"`
	Sprints      int    `json:"sprints"`
	Weeks        int    `json:"weeks"`
	Action       string `json:"action"`
}

// Execute runs one named tool call and returns its JSON result text.
func (x *Executor) Execute(ctx context.Context, name string, input json.RawMessage) string {
	var args toolArgs
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return errorJSON(fmt.Sprintf("invalid arguments: %v", err), "tool_argument_invalid")
		}
	}

	x.log.Debug("tool call", zap.String("tool", name))
	switch name {
	case "list_projects":
		return x.listProjects(ctx)
	case "list_issues":
		return x.listIssues(ctx, args)
	case "get_issue":
		return x.getIssue(ctx, args)
	case "create_issue":
		return x.createIssue(ctx, args)
	case "update_issue":
		return x.updateIssue(ctx, args)
	case "sprint_status":
		return x.sprintStatus(ctx, args)
	case "backlog_analytics":
		return x.backlogAnalytics(ctx, args)
	case "team_workload":
		return x.teamWorkload(ctx, args)
	case "cycle_time_analytics":
		return x.cycleTime(ctx, args)
	case "bug_analytics":
		return x.bugAnalytics(ctx, args)
	case "release_status":
		return x.releaseStatus(ctx, args)
	case "velocity_trend":
		return x.velocityTrend(ctx, args)
	case "throughput_analytics":
		return x.throughput(ctx, args)
	case "tasks_in_progress":
		return x.tasksInProgress(ctx, args)
	case "blocked_tasks":
		return x.blockedTasks(ctx, args)
	case "cache_control":
		return x.cacheControl(ctx, args)
	default:
		return errorJSON(fmt.Sprintf("unknown tool %q", name), "unknown_tool")
	}
}

// resolveProject turns the project_id argument into a numeric tracker id.
// Alias and numeric forms resolve without the cache; other names resolve
// against the snapshot's project table when one is available.
func (x *Executor) resolveProject(ctx context.Context, raw any) (int, error) {
	id, err := config.NormalizeProjectID(raw)
	if err == nil {
		return id, nil
	}
	name, isString := raw.(string)
	if !isString {
		return 0, err
	}
	if snap, snapErr := x.engine.Current(ctx); snapErr == nil {
		for _, p := range snap.Projects {
			if strings.EqualFold(p.Name, name) || strings.EqualFold(p.Identifier, name) {
				return p.ID, nil
			}
		}
	}
	projects, listErr := x.tracker.ListProjects(ctx)
	if listErr == nil {
		for _, p := range projects {
			if strings.EqualFold(p.Name, name) || strings.EqualFold(p.Identifier, name) {
				return p.ID, nil
			}
		}
	}
	return 0, err
}

// snapshot fetches the current snapshot; a nil return means the cache path
// is unavailable and the caller should degrade or fall back.
func (x *Executor) snapshot(ctx context.Context) *cache.Snapshot {
	snap, err := x.engine.Current(ctx)
	if err != nil {
		return nil
	}
	return snap
}

func (x *Executor) projectID(ctx context.Context, args toolArgs) (int, string) {
	if args.ProjectID == nil {
		return 0, ""
	}
	id, err := x.resolveProject(ctx, args.ProjectID)
	if err != nil {
		return 0, errorJSON(err.Error(), "unknown_project")
	}
	return id, ""
}

func (x *Executor) sprintStatus(ctx context.Context, args toolArgs) string {
	projectID, fail := x.projectID(ctx, args)
	if fail != "" {
		return fail
	}
	if snap := x.snapshot(ctx); snap != nil {
		return marshal(analytics.SprintStatus(snap, projectID, args.VersionName, x.cfg.BlockedStatus))
	}
	// No snapshot: exact live counts via limit=1 queries.
	versionID := 0
	if args.VersionName != "" {
		versions, err := x.tracker.ListVersions(ctx, projectID)
		if err != nil {
			return marshalFailure(err)
		}
		for _, v := range versions {
			if strings.EqualFold(v.Name, args.VersionName) {
				versionID = v.ID
				break
			}
		}
		if versionID == 0 {
			return errorJSON(fmt.Sprintf("version %q not found", args.VersionName), "tracker_not_found")
		}
	}
	return marshal(analytics.DirectSprintCount(ctx, x.tracker, projectID, versionID, args.VersionName))
}

func (x *Executor) backlogAnalytics(ctx context.Context, args toolArgs) string {
	projectID, fail := x.projectID(ctx, args)
	if fail != "" {
		return fail
	}
	if snap := x.snapshot(ctx); snap != nil {
		return marshal(analytics.BacklogAnalytics(snap, projectID, x.now()))
	}
	return marshal(analytics.DirectBacklogCount(ctx, x.tracker, projectID))
}

func (x *Executor) bugAnalytics(ctx context.Context, args toolArgs) string {
	projectID, fail := x.projectID(ctx, args)
	if fail != "" {
		return fail
	}
	if snap := x.snapshot(ctx); snap != nil {
		return marshal(analytics.BugAnalytics(snap, projectID))
	}
	return marshal(analytics.DirectBugCount(ctx, x.tracker, projectID))
}

func (x *Executor) teamWorkload(ctx context.Context, args toolArgs) string {
	projectID, fail := x.projectID(ctx, args)
	if fail != "" {
		return fail
	}
	return marshal(analytics.TeamWorkload(x.snapshot(ctx), projectID, x.cfg.OverloadThreshold))
}

func (x *Executor) cycleTime(ctx context.Context, args toolArgs) string {
	projectID, fail := x.projectID(ctx, args)
	if fail != "" {
		return fail
	}
	return marshal(analytics.CycleTimeAnalytics(x.snapshot(ctx), projectID))
}

func (x *Executor) releaseStatus(ctx context.Context, args toolArgs) string {
	projectID, fail := x.projectID(ctx, args)
	if fail != "" {
		return fail
	}
	return marshal(analytics.ReleaseStatus(x.snapshot(ctx), projectID, args.VersionName))
}

func (x *Executor) velocityTrend(ctx context.Context, args toolArgs) string {
	projectID, fail := x.projectID(ctx, args)
	if fail != "" {
		return fail
	}
	return marshal(analytics.VelocityTrend(x.snapshot(ctx), projectID, args.Sprints))
}

func (x *Executor) throughput(ctx context.Context, args toolArgs) string {
	projectID, fail := x.projectID(ctx, args)
	if fail != "" {
		return fail
	}
	return marshal(analytics.Throughput(x.snapshot(ctx), projectID, args.Weeks, x.now()))
}

func (x *Executor) tasksInProgress(ctx context.Context, args toolArgs) string {
	projectID, fail := x.projectID(ctx, args)
	if fail != "" {
		return fail
	}
	return marshal(analytics.TasksInProgress(x.snapshot(ctx), projectID))
}

func (x *Executor) blockedTasks(ctx context.Context, args toolArgs) string {
	projectID, fail := x.projectID(ctx, args)
	if fail != "" {
		return fail
	}
	return marshal(analytics.BlockedTasks(x.snapshot(ctx), projectID, x.cfg.BlockedStatus))
}

// issueSummary is the compact issue shape returned to the model; full wire
// issues would blow the token budget.
type issueSummary struct {
	ID       int     `json:"id"`
	Subject  string  `json:"subject"`
	Project  string  `json:"project"`
	Tracker  string  `json:"tracker"`
	Status   string  `json:"status"`
	Priority string  `json:"priority"`
	Assignee *string `json:"assignee,omitempty"`
	Version  *string `json:"version,omitempty"`
}

func summarize(issue redmine.Issue) issueSummary {
	s := issueSummary{
		ID:       issue.ID,
		Subject:  issue.Subject,
		Project:  issue.Project.Name,
		Tracker:  issue.Tracker.Name,
		Status:   issue.Status.Name,
		Priority: issue.Priority.Name,
	}
	if issue.AssignedTo != nil {
		s.Assignee = &issue.AssignedTo.Name
	}
	if issue.FixedVersion != nil {
		s.Version = &issue.FixedVersion.Name
	}
	return s
}

func (x *Executor) listProjects(ctx context.Context) string {
	projects, err := x.tracker.ListProjects(ctx)
	if err != nil {
		return marshalFailure(err)
	}
	return marshal(map[string]any{"success": true, "projects": projects})
}

func (x *Executor) listIssues(ctx context.Context, args toolArgs) string {
	projectID, fail := x.projectID(ctx, args)
	if fail != "" {
		return fail
	}
	filter := redmine.Filter{
		ProjectID:    projectID,
		TrackerID:    args.TrackerID,
		AssignedToID: args.AssignedToID,
		Limit:        args.Limit,
	}
	if args.StatusID != nil {
		filter.StatusID = fmt.Sprintf("%v", args.StatusID)
	}
	issues, total, truncated, err := x.tracker.ListIssues(ctx, filter)
	if err != nil {
		return marshalFailure(err)
	}
	summaries := make([]issueSummary, 0, len(issues))
	for _, issue := range issues {
		summaries = append(summaries, summarize(issue))
	}
	return marshal(map[string]any{
		"success":     true,
		"issues":      summaries,
		"total_count": total,
		"truncated":   truncated,
	})
}

func (x *Executor) getIssue(ctx context.Context, args toolArgs) string {
	if args.IssueID == 0 {
		return errorJSON("issue_id is required", "tool_argument_invalid")
	}
	issue, err := x.tracker.GetIssue(ctx, args.IssueID, true)
	if err != nil {
		return marshalFailure(err)
	}
	return marshal(map[string]any{"success": true, "issue": issue})
}

func (x *Executor) createIssue(ctx context.Context, args toolArgs) string {
	if args.Subject == "" {
		return errorJSON("subject is required", "tool_argument_invalid")
	}
	projectID, fail := x.projectID(ctx, args)
	if fail != "" {
		return fail
	}
	if projectID == 0 {
		return errorJSON("project_id is required", "tool_argument_invalid")
	}
	issue, err := x.tracker.CreateIssue(ctx, redmine.NewIssue{
		ProjectID:    projectID,
		Subject:      args.Subject,
		Description:  args.Description,
		TrackerID:    args.TrackerID,
		PriorityID:   args.PriorityID,
		AssignedToID: args.AssignedToID,
	})
	if err != nil {
		return marshalFailure(err)
	}
	return marshal(map[string]any{"success": true, "issue": summarize(*issue)})
}

func (x *Executor) updateIssue(ctx context.Context, args toolArgs) string {
	if args.IssueID == 0 {
		return errorJSON("issue_id is required", "tool_argument_invalid")
	}
	update := redmine.IssueUpdate{
		Subject:      args.Subject,
		Description:  args.Description,
		PriorityID:   args.PriorityID,
		AssignedToID: args.AssignedToID,
		DoneRatio:    args.DoneRatio,
		Notes:        args.Notes,
	}
	if args.StatusID != nil {
		switch v := args.StatusID.(type) {
		case float64:
			update.StatusID = int(v)
		case string:
			if id, ok := config.StatusIDs[config.CanonicalStatus(v)]; ok {
				update.StatusID = id
			} else {
				return errorJSON(fmt.Sprintf("unknown status %q", v), "tool_argument_invalid")
			}
		}
	}
	if err := x.tracker.UpdateIssue(ctx, args.IssueID, update); err != nil {
		return marshalFailure(err)
	}
	return marshal(map[string]any{"success": true, "issue_id": args.IssueID})
}

func (x *Executor) cacheControl(ctx context.Context, args toolArgs) string {
	switch args.Action {
	case "on":
		status, err := x.engine.Enable(ctx)
		if err != nil {
			return marshalFailure(err)
		}
		return marshal(map[string]any{"success": true, "status": "enabled", "cache_info": status})
	case "off":
		x.engine.Disable()
		return marshal(map[string]any{"success": true, "status": "disabled"})
	case "refresh":
		if err := x.engine.Refresh(ctx); err != nil {
			return marshalFailure(err)
		}
		return marshal(map[string]any{"success": true, "cache_info": x.engine.Status()})
	case "status":
		return marshal(map[string]any{"success": true, "cache_info": x.engine.Status()})
	default:
		return errorJSON(fmt.Sprintf("unknown cache action %q", args.Action), "tool_argument_invalid")
	}
}

func marshal(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return errorJSON(fmt.Sprintf("result serialization failed: %v", err), "internal")
	}
	return string(data)
}

func marshalFailure(err error) string {
	kind := string(redmine.KindOf(err))
	if kind == "" && errors.Is(err, cache.ErrUnavailable) {
		kind = "cache_unavailable"
	}
	return errorJSON(err.Error(), kind)
}

func errorJSON(message, kind string) string {
	payload := map[string]any{"success": false, "error": message}
	if kind != "" {
		payload["kind"] = kind
	}
	data, _ := json.Marshal(payload)
	return string(data)
}
