package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"trackgate/internal/redmine"
)

// ErrUnavailable is returned by Current when the engine is disabled or no
// snapshot has been built yet.
var ErrUnavailable = errors.New("cache unavailable")

// refreshTimeout bounds a full snapshot rebuild, including the detached
// background refreshes spawned by stale reads.
const refreshTimeout = 2 * time.Minute

// Fetcher is the subset of the tracker client the engine needs; tests
// substitute a fixture implementation.
type Fetcher interface {
	ListIssues(ctx context.Context, f redmine.Filter) ([]redmine.Issue, int, bool, error)
	ListProjects(ctx context.Context) ([]redmine.Project, error)
	ListVersions(ctx context.Context, projectID int) ([]redmine.Version, error)
	ListUsers(ctx context.Context) ([]redmine.User, error)
}

// Counts reports per-table row counts.
type Counts struct {
	Issues   int `json:"issues"`
	Projects int `json:"projects"`
	Users    int `json:"users"`
	Versions int `json:"versions"`
}

// Status is the engine's externally visible state.
type Status struct {
	Enabled         bool            `json:"enabled"`
	Initialized     bool            `json:"initialized"`
	LastUpdated     string          `json:"last_updated,omitempty"`
	AgeSeconds      *int            `json:"age_seconds"`
	TTLSeconds      int             `json:"ttl_seconds"`
	Stale           bool            `json:"is_stale"`
	Counts          Counts          `json:"counts"`
	IssuesTruncated bool            `json:"issues_truncated,omitempty"`
	EndpointErrors  []EndpointError `json:"endpoint_errors,omitempty"`
}

// Engine owns the current snapshot and its refresh lifecycle.
type Engine struct {
	fetcher Fetcher
	ttl     time.Duration
	log     *zap.Logger
	now     func() time.Time

	enabled atomic.Bool
	snap    atomic.Pointer[Snapshot]
	// group coalesces concurrent refreshes onto one in-flight rebuild.
	group singleflight.Group
}

// NewEngine creates a disabled engine; Enable starts the first refresh.
func NewEngine(fetcher Fetcher, ttl time.Duration, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		fetcher: fetcher,
		ttl:     ttl,
		log:     log,
		now:     time.Now,
	}
}

// Enabled reports whether the engine is switched on.
func (e *Engine) Enabled() bool { return e.enabled.Load() }

// Enable switches the engine on and builds the initial snapshot. Calling it
// while already enabled and initialized is a no-op.
func (e *Engine) Enable(ctx context.Context) (Status, error) {
	e.enabled.Store(true)
	if e.snap.Load() != nil {
		return e.Status(), nil
	}
	err := e.Refresh(ctx)
	return e.Status(), err
}

// Disable drops the snapshot and clears the enabled flag.
func (e *Engine) Disable() {
	e.enabled.Store(false)
	e.snap.Store(nil)
}

// Refresh builds a new snapshot and swaps it in atomically. A failed build
// leaves the previous snapshot intact. Concurrent callers coalesce onto the
// in-flight rebuild.
func (e *Engine) Refresh(ctx context.Context) error {
	_, err, _ := e.group.Do("refresh", func() (any, error) {
		snap, err := e.build(ctx)
		if err != nil {
			e.log.Error("cache refresh failed", zap.Error(err))
			return nil, err
		}
		e.snap.Store(snap)
		e.log.Info("cache refreshed",
			zap.Int("issues", len(snap.Issues)),
			zap.Int("projects", len(snap.Projects)),
			zap.Int("versions", len(snap.Versions)),
			zap.Int("users", len(snap.Users)),
			zap.Bool("truncated", snap.IssuesTruncated))
		return snap, nil
	})
	return err
}

// Current hands out the current snapshot. A read past TTL triggers a
// background refresh but returns the stale snapshot immediately
// (stale-while-revalidate).
func (e *Engine) Current(ctx context.Context) (*Snapshot, error) {
	if !e.enabled.Load() {
		return nil, ErrUnavailable
	}
	snap := e.snap.Load()
	if snap == nil {
		return nil, ErrUnavailable
	}
	if e.now().Sub(snap.TakenAt) > e.ttl {
		go func() {
			refreshCtx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
			defer cancel()
			_ = e.Refresh(refreshCtx)
		}()
	}
	return snap, nil
}

// Status reports the engine state for the cache-control surface.
func (e *Engine) Status() Status {
	status := Status{
		Enabled:    e.enabled.Load(),
		TTLSeconds: int(e.ttl / time.Second),
	}
	snap := e.snap.Load()
	if snap == nil {
		return status
	}
	age := int(e.now().Sub(snap.TakenAt) / time.Second)
	if age < 0 {
		age = 0
	}
	status.Initialized = true
	status.LastUpdated = snap.TakenAt.Format(time.RFC3339)
	status.AgeSeconds = &age
	status.Stale = age > status.TTLSeconds
	status.Counts = Counts{
		Issues:   len(snap.Issues),
		Projects: len(snap.Projects),
		Users:    len(snap.Users),
		Versions: len(snap.Versions),
	}
	status.IssuesTruncated = snap.IssuesTruncated
	status.EndpointErrors = snap.EndpointErrors
	return status
}

// build fetches all tables and assembles a snapshot. The issues table is
// required; projects, versions, and users degrade to partial-data markers.
func (e *Engine) build(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{TakenAt: e.now()}

	issues, _, truncated, err := e.fetcher.ListIssues(ctx, redmine.Filter{StatusID: "*"})
	if err != nil {
		return nil, err
	}
	snap.IssuesTruncated = truncated
	snap.Issues = make([]IssueRow, 0, len(issues))
	for _, issue := range issues {
		snap.Issues = append(snap.Issues, normalizeIssue(issue))
	}

	projects, err := e.fetcher.ListProjects(ctx)
	if err != nil {
		snap.EndpointErrors = append(snap.EndpointErrors, endpointError("projects", err))
		e.log.Warn("projects endpoint unavailable", zap.Error(err))
	}
	for _, p := range projects {
		snap.Projects = append(snap.Projects, ProjectRow{
			ID:          p.ID,
			Identifier:  p.Identifier,
			Name:        p.Name,
			Description: p.Description,
		})
	}

	versionsFailed := false
	for _, p := range projects {
		versions, err := e.fetcher.ListVersions(ctx, p.ID)
		if err != nil {
			if !versionsFailed {
				snap.EndpointErrors = append(snap.EndpointErrors, endpointError("versions", err))
				versionsFailed = true
			}
			e.log.Warn("versions endpoint unavailable",
				zap.Int("project_id", p.ID), zap.Error(err))
			continue
		}
		for _, v := range versions {
			row := normalizeVersion(v)
			if row.ProjectID == 0 {
				row.ProjectID = p.ID
			}
			snap.Versions = append(snap.Versions, row)
		}
	}

	users, err := e.fetcher.ListUsers(ctx)
	if err != nil {
		// Non-admin credentials commonly get 403 here; the snapshot still
		// counts as initialized.
		snap.EndpointErrors = append(snap.EndpointErrors, endpointError("users", err))
		e.log.Warn("users endpoint unavailable", zap.Error(err))
	}
	for _, u := range users {
		snap.Users = append(snap.Users, UserRow{ID: u.ID, Name: u.DisplayName()})
	}

	return snap, nil
}

func endpointError(endpoint string, err error) EndpointError {
	ee := EndpointError{Endpoint: endpoint}
	var apiErr *redmine.APIError
	if errors.As(err, &apiErr) {
		ee.Status = apiErr.StatusCode
	}
	return ee
}
