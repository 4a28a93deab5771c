package redmine_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackgate/internal/redmine"
)

func issuePage(offset, count, total int) map[string]any {
	issues := make([]map[string]any, 0, count)
	for i := 0; i < count; i++ {
		issues = append(issues, map[string]any{
			"id":       offset + i + 1,
			"subject":  fmt.Sprintf("issue %d", offset+i+1),
			"project":  map[string]any{"id": 1, "name": "Core"},
			"tracker":  map[string]any{"id": 1, "name": "Bug"},
			"status":   map[string]any{"id": 1, "name": "New"},
			"priority": map[string]any{"id": 2, "name": "Normal"},
			"created_on": "2026-01-05T10:00:00Z",
			"updated_on": "2026-01-05T10:00:00Z",
		})
	}
	return map[string]any{
		"issues":      issues,
		"total_count": total,
		"offset":      offset,
		"limit":       count,
	}
}

func TestCountIssuesUsesLimitOne(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/issues.json", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "6", r.URL.Query().Get("project_id"))
		assert.Equal(t, "1", r.URL.Query().Get("tracker_id"))
		assert.Equal(t, "open", r.URL.Query().Get("status_id"))
		assert.Equal(t, "secret", r.Header.Get("X-Redmine-API-Key"))
		json.NewEncoder(w).Encode(issuePage(0, 1, 310))
	}))
	defer server.Close()

	client := redmine.NewClient(server.URL, "secret")
	count, err := client.CountIssues(context.Background(), redmine.Filter{
		ProjectID: 6,
		TrackerID: 1,
		StatusID:  "open",
	})
	require.NoError(t, err)
	assert.Equal(t, 310, count)
}

func TestListIssuesPaginates(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		count := 100
		if offset+count > 150 {
			count = 150 - offset
		}
		json.NewEncoder(w).Encode(issuePage(offset, count, 150))
	}))
	defer server.Close()

	client := redmine.NewClient(server.URL, "secret")
	issues, total, truncated, err := client.ListIssues(context.Background(), redmine.Filter{StatusID: "*"})
	require.NoError(t, err)
	assert.Len(t, issues, 150)
	assert.Equal(t, 150, total)
	assert.False(t, truncated)
	assert.Equal(t, int32(2), requests.Load())
	assert.Equal(t, 1, issues[0].ID)
	assert.Equal(t, 150, issues[149].ID)
}

func TestListIssuesTruncatesAtRowCap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode(issuePage(offset, limit, 5000))
	}))
	defer server.Close()

	client := redmine.NewClient(server.URL, "secret", redmine.WithMaxRows(120))
	issues, total, truncated, err := client.ListIssues(context.Background(), redmine.Filter{StatusID: "*"})
	require.NoError(t, err)
	assert.Len(t, issues, 120)
	assert.Equal(t, 5000, total)
	assert.True(t, truncated)
}

func TestBearerTokenAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer oauth-token", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("X-Redmine-API-Key"))
		json.NewEncoder(w).Encode(map[string]any{"projects": []any{}})
	}))
	defer server.Close()

	client := redmine.NewClient(server.URL, "", redmine.WithBearerToken("oauth-token"))
	_, err := client.ListProjects(context.Background())
	require.NoError(t, err)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		status   int
		wantKind redmine.ErrorKind
	}{
		{http.StatusUnauthorized, redmine.KindUnauthorized},
		{http.StatusForbidden, redmine.KindForbidden},
		{http.StatusNotFound, redmine.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.status), func(t *testing.T) {
			var requests atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				requests.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := redmine.NewClient(server.URL, "secret")
			_, err := client.GetIssue(context.Background(), 42, false)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, redmine.KindOf(err))
			assert.Equal(t, int32(1), requests.Load(), "non-transient classes must not retry")
		})
	}
}

func TestGetRetriesTransientFailures(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(issuePage(0, 1, 1))
	}))
	defer server.Close()

	client := redmine.NewClient(server.URL, "secret")
	count, err := client.CountIssues(context.Background(), redmine.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, int32(2), requests.Load())
}

func TestRateLimitCarriesRetryAfter(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if requests.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(issuePage(0, 1, 7))
	}))
	defer server.Close()

	client := redmine.NewClient(server.URL, "secret")
	count, err := client.CountIssues(context.Background(), redmine.Filter{})
	require.NoError(t, err, "rate limit is transient and retried")
	assert.Equal(t, 7, count)
}

func TestCreateAndUpdateIssueAreNotRetried(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := redmine.NewClient(server.URL, "secret")
	_, err := client.CreateIssue(context.Background(), redmine.NewIssue{ProjectID: 1, Subject: "x"})
	require.Error(t, err)
	assert.Equal(t, int32(1), requests.Load(), "mutations run exactly once")

	requests.Store(0)
	err = client.UpdateIssue(context.Background(), 9, redmine.IssueUpdate{Notes: "n"})
	require.Error(t, err)
	assert.Equal(t, int32(1), requests.Load())
}

func TestUpdateIssueSendsEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/issues/9.json", r.URL.Path)
		var body map[string]map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "fixed in main", body["issue"]["notes"])
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := redmine.NewClient(server.URL, "secret")
	err := client.UpdateIssue(context.Background(), 9, redmine.IssueUpdate{Notes: "fixed in main"})
	require.NoError(t, err)
}
