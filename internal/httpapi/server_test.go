package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackgate/internal/cache"
	"trackgate/internal/chat"
	"trackgate/internal/config"
	"trackgate/internal/httpapi"
	"trackgate/internal/llm"
	"trackgate/internal/redmine"
)

// scriptedCompleter replays canned model responses.
type scriptedCompleter struct {
	responses []*anthropic.Message
	err       error
}

func (s *scriptedCompleter) Complete(context.Context, anthropic.MessageNewParams) (*anthropic.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return &anthropic.Message{Content: []anthropic.ContentBlockUnion{{Type: "text", Text: "out of script"}}}, nil
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	return next, nil
}

type stubTracker struct{}

func (stubTracker) CountIssues(context.Context, redmine.Filter) (int, error) { return 0, nil }
func (stubTracker) ListIssues(context.Context, redmine.Filter) ([]redmine.Issue, int, bool, error) {
	return nil, 0, false, nil
}
func (stubTracker) GetIssue(context.Context, int, bool) (*redmine.Issue, error) {
	return &redmine.Issue{}, nil
}
func (stubTracker) ListProjects(context.Context) ([]redmine.Project, error)       { return nil, nil }
func (stubTracker) ListVersions(context.Context, int) ([]redmine.Version, error)  { return nil, nil }
func (stubTracker) CreateIssue(context.Context, redmine.NewIssue) (*redmine.Issue, error) {
	return &redmine.Issue{}, nil
}
func (stubTracker) UpdateIssue(context.Context, int, redmine.IssueUpdate) error { return nil }

// stubEngine is an in-memory cache control fixture.
type stubEngine struct {
	enabled   bool
	snap      *cache.Snapshot
	refreshes int
	enableErr error
}

func (s *stubEngine) Enable(context.Context) (cache.Status, error) {
	s.enabled = true
	if s.enableErr != nil {
		return s.Status(), s.enableErr
	}
	if s.snap == nil {
		s.snap = &cache.Snapshot{}
	}
	return s.Status(), nil
}

func (s *stubEngine) Disable() { s.enabled = false; s.snap = nil }

func (s *stubEngine) Refresh(context.Context) error {
	s.refreshes++
	return nil
}

func (s *stubEngine) Status() cache.Status {
	status := cache.Status{Enabled: s.enabled, TTLSeconds: 300}
	if s.snap != nil {
		status.Initialized = true
		age := 0
		status.AgeSeconds = &age
		status.Counts.Issues = len(s.snap.Issues)
	}
	return status
}

func (s *stubEngine) Current(context.Context) (*cache.Snapshot, error) {
	if !s.enabled || s.snap == nil {
		return nil, cache.ErrUnavailable
	}
	return s.snap, nil
}

func newTestServer(t *testing.T, completer llm.Completer, engine *stubEngine) *httptest.Server {
	t.Helper()
	if engine == nil {
		engine = &stubEngine{}
	}
	cfg := &config.Config{
		Port:              3001,
		BlockedStatus:     "feedback",
		OverloadThreshold: 10,
	}
	exec := chat.NewExecutor(stubTracker{}, engine, cfg, nil)
	loop := chat.NewLoop(completer, exec, nil)
	server := httpapi.NewServer(loop, engine, cfg, nil)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, &scriptedCompleter{}, nil)

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "uptime_s")
}

func TestCacheLifecycleOverHTTP(t *testing.T) {
	engine := &stubEngine{}
	ts := newTestServer(t, &scriptedCompleter{}, engine)
	url := ts.URL + "/api/redmine-cache"

	resp, body := postJSON(t, url, map[string]string{"action": "on"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "enabled", body["status"])
	info := body["cache_info"].(map[string]any)
	assert.Equal(t, true, info["initialized"])
	assert.Equal(t, float64(0), info["counts"].(map[string]any)["issues"])

	_, body = postJSON(t, url, map[string]string{"action": "refresh"})
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 1, engine.refreshes)

	_, body = postJSON(t, url, map[string]string{"action": "status"})
	assert.Equal(t, true, body["success"])
	assert.Contains(t, body, "cache_info")

	_, body = postJSON(t, url, map[string]string{"action": "off"})
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "disabled", body["status"])

	resp, _ = postJSON(t, url, map[string]string{"action": "explode"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatEndpoint(t *testing.T) {
	completer := &scriptedCompleter{responses: []*anthropic.Message{
		{Content: []anthropic.ContentBlockUnion{{Type: "text", Text: "There are 3 open bugs."}}},
	}}
	ts := newTestServer(t, completer, nil)

	resp, body := postJSON(t, ts.URL+"/api/chat", map[string]any{
		"message": "how many open bugs",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "There are 3 open bugs.", body["response"])

	history := body["conversationHistory"].([]any)
	require.Len(t, history, 2)
	first := history[0].(map[string]any)
	assert.Equal(t, "user", first["role"])
	assert.Equal(t, "how many open bugs", first["content"])
}

func TestChatEndpointRequiresMessage(t *testing.T) {
	ts := newTestServer(t, &scriptedCompleter{}, nil)
	resp, body := postJSON(t, ts.URL+"/api/chat", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, false, body["success"])
}

func TestChatEndpointMapsRateLimitTo429(t *testing.T) {
	completer := &scriptedCompleter{err: fmt.Errorf("%w: too many requests", llm.ErrRateLimited)}
	ts := newTestServer(t, completer, nil)

	resp, _ := postJSON(t, ts.URL+"/api/chat", map[string]any{"message": "how many open bugs"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestToolsEndpoint(t *testing.T) {
	ts := newTestServer(t, &scriptedCompleter{}, nil)

	resp, err := http.Get(ts.URL + "/api/tools")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["success"])
	byCategory := body["tools"].(map[string]any)
	assert.Contains(t, byCategory, "tracker-analytics")
	assert.Contains(t, byCategory, "tracker-core")
	assert.Contains(t, byCategory, "cache-control")
}
