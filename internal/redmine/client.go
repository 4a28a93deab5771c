// Package redmine is the HTTP client for the issue tracker's REST surface.
package redmine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultPageSize = 100
	DefaultMaxRows  = 1000

	retryInitialInterval = 250 * time.Millisecond
	retryMaxInterval     = 4 * time.Second
	maxRetries           = 3

	// maxConnsPerHost keeps concurrent tracker traffic below the point
	// where the tracker starts rate-limiting us.
	maxConnsPerHost = 8
)

// Client talks to the tracker REST API. All operations are GETs plus the two
// issue mutations; GETs retry transient failures, mutations do not.
type Client struct {
	baseURL     string
	apiKey      string
	bearerToken string
	maxRows     int
	httpClient  *http.Client
	log         *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBearerToken switches authentication from the API-key header to a
// Bearer credential (OAuth deployments).
func WithBearerToken(token string) Option {
	return func(c *Client) { c.bearerToken = token }
}

// WithMaxRows caps how many rows a full-table listing will fetch.
func WithMaxRows(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxRows = n
		}
	}
}

// WithHTTPClient substitutes the underlying HTTP client (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger attaches a logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a tracker client authenticated with the given API key.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		maxRows: DefaultMaxRows,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				MaxConnsPerHost:     maxConnsPerHost,
				MaxIdleConnsPerHost: maxConnsPerHost,
			},
		},
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Filter holds issue-listing query parameters. Zero values are omitted.
type Filter struct {
	ProjectID    int
	VersionID    int
	StatusID     string // numeric id, or the symbolic classes "open", "closed", "*"
	TrackerID    int
	PriorityID   int
	AssignedToID int
	CreatedOn    string // range expressions like ">=2026-01-01"
	UpdatedOn    string
	ClosedOn     string
	Limit        int
	Offset       int
}

func (f Filter) values() url.Values {
	params := url.Values{}
	if f.ProjectID != 0 {
		params.Set("project_id", strconv.Itoa(f.ProjectID))
	}
	if f.VersionID != 0 {
		params.Set("fixed_version_id", strconv.Itoa(f.VersionID))
	}
	if f.StatusID != "" {
		params.Set("status_id", f.StatusID)
	}
	if f.TrackerID != 0 {
		params.Set("tracker_id", strconv.Itoa(f.TrackerID))
	}
	if f.PriorityID != 0 {
		params.Set("priority_id", strconv.Itoa(f.PriorityID))
	}
	if f.AssignedToID != 0 {
		params.Set("assigned_to_id", strconv.Itoa(f.AssignedToID))
	}
	if f.CreatedOn != "" {
		params.Set("created_on", f.CreatedOn)
	}
	if f.UpdatedOn != "" {
		params.Set("updated_on", f.UpdatedOn)
	}
	if f.ClosedOn != "" {
		params.Set("closed_on", f.ClosedOn)
	}
	if f.Limit > 0 {
		params.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		params.Set("offset", strconv.Itoa(f.Offset))
	}
	return params
}

// CountIssues returns the exact live cardinality for the filter using a
// limit=1 request; only total_count is consumed.
func (c *Client) CountIssues(ctx context.Context, f Filter) (int, error) {
	f.Limit = 1
	f.Offset = 0
	var env issuesEnvelope
	if err := c.get(ctx, "/issues.json", f.values(), &env); err != nil {
		return 0, err
	}
	return env.TotalCount, nil
}

// ListIssues fetches issues matching the filter, paginating in pages of 100
// up to the configured row cap. It returns the rows, the tracker-reported
// total, and whether the cap truncated the result.
func (c *Client) ListIssues(ctx context.Context, f Filter) ([]Issue, int, bool, error) {
	var all []Issue
	total := 0
	offset := f.Offset
	for {
		page := f
		page.Limit = DefaultPageSize
		page.Offset = offset
		if remaining := c.maxRows - len(all); remaining < DefaultPageSize {
			page.Limit = remaining
		}

		var env issuesEnvelope
		if err := c.get(ctx, "/issues.json", page.values(), &env); err != nil {
			return nil, 0, false, err
		}
		total = env.TotalCount
		all = append(all, env.Issues...)

		if len(env.Issues) == 0 || offset+len(env.Issues) >= total {
			break
		}
		if len(all) >= c.maxRows {
			break
		}
		offset += len(env.Issues)
	}

	truncated := total > len(all)
	if truncated {
		c.log.Warn("issue listing truncated at row cap",
			zap.Int("cap", c.maxRows),
			zap.Int("total_count", total))
	}
	return all, total, truncated, nil
}

// GetIssue fetches a single issue; includeJournals adds the change history.
func (c *Client) GetIssue(ctx context.Context, id int, includeJournals bool) (*Issue, error) {
	params := url.Values{}
	if includeJournals {
		params.Set("include", "journals,attachments")
	}
	var env issueEnvelope
	if err := c.get(ctx, fmt.Sprintf("/issues/%d.json", id), params, &env); err != nil {
		return nil, err
	}
	return &env.Issue, nil
}

// ListProjects fetches all projects visible to the credential.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var env projectsEnvelope
	params := url.Values{}
	params.Set("limit", strconv.Itoa(DefaultPageSize))
	if err := c.get(ctx, "/projects.json", params, &env); err != nil {
		return nil, err
	}
	return env.Projects, nil
}

// ListVersions fetches the versions of one project.
func (c *Client) ListVersions(ctx context.Context, projectID int) ([]Version, error) {
	var env versionsEnvelope
	if err := c.get(ctx, fmt.Sprintf("/projects/%d/versions.json", projectID), nil, &env); err != nil {
		return nil, err
	}
	return env.Versions, nil
}

// ListUsers fetches the user table. Requires admin on most deployments; the
// cache tolerates a forbidden response here.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var env usersEnvelope
	params := url.Values{}
	params.Set("limit", strconv.Itoa(DefaultPageSize))
	if err := c.get(ctx, "/users.json", params, &env); err != nil {
		return nil, err
	}
	return env.Users, nil
}

// ListStatuses fetches the status enumeration.
func (c *Client) ListStatuses(ctx context.Context) ([]Enum, error) {
	var env statusesEnvelope
	if err := c.get(ctx, "/issue_statuses.json", nil, &env); err != nil {
		return nil, err
	}
	return env.IssueStatuses, nil
}

// ListTrackers fetches the tracker (issue type) enumeration.
func (c *Client) ListTrackers(ctx context.Context) ([]Enum, error) {
	var env trackersEnvelope
	if err := c.get(ctx, "/trackers.json", nil, &env); err != nil {
		return nil, err
	}
	return env.Trackers, nil
}

// ListPriorities fetches the priority enumeration.
func (c *Client) ListPriorities(ctx context.Context) ([]Enum, error) {
	var env prioritiesEnvelope
	if err := c.get(ctx, "/enumerations/issue_priorities.json", nil, &env); err != nil {
		return nil, err
	}
	return env.IssuePriorities, nil
}

// CreateIssue creates an issue and returns the created record.
func (c *Client) CreateIssue(ctx context.Context, issue NewIssue) (*Issue, error) {
	var env issueEnvelope
	body := map[string]any{"issue": issue}
	if err := c.do(ctx, http.MethodPost, "/issues.json", body, &env); err != nil {
		return nil, err
	}
	return &env.Issue, nil
}

// UpdateIssue applies an update to an existing issue.
func (c *Client) UpdateIssue(ctx context.Context, id int, update IssueUpdate) error {
	body := map[string]any{"issue": update}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/issues/%d.json", id), body, nil)
}

// get performs an idempotent GET with retry on transient failure classes.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInitialInterval
	bo.MaxInterval = retryMaxInterval

	operation := func() error {
		err := c.roundTrip(ctx, http.MethodGet, path, params, nil, out)
		if err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Retryable() {
			return err
		}
		return backoff.Permanent(err)
	}

	return backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx))
}

// do performs a non-idempotent call once, without retry.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	return c.roundTrip(ctx, method, path, nil, body, out)
}

func (c *Client) roundTrip(ctx context.Context, method, path string, params url.Values, body, out any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	} else {
		req.Header.Set("X-Redmine-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &APIError{Kind: KindUnreachable, Endpoint: path, Err: err}
	}
	defer resp.Body.Close()

	if kindErr := classifyStatus(resp, path); kindErr != nil {
		return kindErr
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{Kind: KindMalformed, StatusCode: resp.StatusCode, Endpoint: path, Err: err}
	}
	return nil
}

func classifyStatus(resp *http.Response, path string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return &APIError{Kind: KindUnauthorized, StatusCode: resp.StatusCode, Endpoint: path}
	case resp.StatusCode == http.StatusForbidden:
		return &APIError{Kind: KindForbidden, StatusCode: resp.StatusCode, Endpoint: path}
	case resp.StatusCode == http.StatusNotFound:
		return &APIError{Kind: KindNotFound, StatusCode: resp.StatusCode, Endpoint: path}
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := time.Duration(0)
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return &APIError{Kind: KindRateLimited, StatusCode: resp.StatusCode, RetryAfter: retryAfter, Endpoint: path}
	case resp.StatusCode >= 500:
		return &APIError{Kind: KindUnreachable, StatusCode: resp.StatusCode, Endpoint: path}
	default:
		return &APIError{Kind: KindMalformed, StatusCode: resp.StatusCode, Endpoint: path}
	}
}
