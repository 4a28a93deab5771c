package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const messageBody = `{
	"id": "msg_1",
	"type": "message",
	"role": "assistant",
	"model": "test-model",
	"content": [{"type": "text", "text": "hello"}],
	"stop_reason": "end_turn",
	"usage": {"input_tokens": 10, "output_tokens": 5}
}`

const errorBody = `{"type": "error", "error": {"type": "api_error", "message": "boom"}}`

// newTestClient points the SDK at a scripted server with SDK-level retries
// off, so every attempt the client makes is one observed request.
func newTestClient(serverURL string) *Client {
	return &Client{
		client: anthropic.NewClient(
			option.WithAPIKey("test-key"),
			option.WithBaseURL(serverURL),
			option.WithMaxRetries(0),
		),
		model:          "test-model",
		maxRetries:     2,
		initialBackoff: time.Millisecond,
	}
}

func minimalParams() anthropic.MessageNewParams {
	return anthropic.MessageNewParams{
		MaxTokens: 64,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("hi")),
		},
	}
}

func TestCompleteReturnsMessage(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(messageBody))
	}))
	defer ts.Close()

	msg, err := newTestClient(ts.URL).Complete(context.Background(), minimalParams())
	require.NoError(t, err)
	require.Len(t, msg.Content, 1)
	assert.Equal(t, "hello", msg.Content[0].Text)
	assert.Equal(t, int64(10), msg.Usage.InputTokens)
	assert.Equal(t, int32(1), requests.Load())
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(errorBody))
			return
		}
		w.Write([]byte(messageBody))
	}))
	defer ts.Close()

	msg, err := newTestClient(ts.URL).Complete(context.Background(), minimalParams())
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Content[0].Text)
	assert.Equal(t, int32(2), requests.Load())
}

func TestCompleteDoesNotRetryClientErrors(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(errorBody))
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).Complete(context.Background(), minimalParams())
	require.Error(t, err)
	assert.Equal(t, int32(1), requests.Load())
}

func TestCompleteExhaustedRateLimitIsTagged(t *testing.T) {
	var requests atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(errorBody))
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).Complete(context.Background(), minimalParams())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int32(3), requests.Load(), "initial attempt plus maxRetries")
}

func TestClassify(t *testing.T) {
	assert.ErrorIs(t, classify(&anthropic.Error{StatusCode: 429}), ErrRateLimited)
	assert.ErrorIs(t, classify(&anthropic.Error{StatusCode: 503}), ErrUnavailable)

	plain := errors.New("something else")
	assert.Equal(t, plain, classify(plain))
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, isRetryable(nil))
	assert.False(t, isRetryable(context.Canceled))
	assert.False(t, isRetryable(context.DeadlineExceeded))
	assert.False(t, isRetryable(&anthropic.Error{StatusCode: 400}))
	assert.True(t, isRetryable(&anthropic.Error{StatusCode: 429}))
	assert.True(t, isRetryable(&anthropic.Error{StatusCode: 502}))
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient("", "m")
	require.Error(t, err)

	c, err := NewClient("key", "")
	require.NoError(t, err)
	assert.Equal(t, anthropic.Model(DefaultModel), c.Model())
}
