// Package llm wraps the Anthropic messages API behind a narrow interface so
// the chat pipeline can be tested against scripted fakes.
package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"trackgate/internal/telemetry"
)

const (
	maxRetries     = 3
	initialBackoff = 1 * time.Second
)

// DefaultModel is the model used when LLM_MODEL is not set.
const DefaultModel = "claude-haiku-4-5"

// Error kinds for upstream model failures.
var (
	ErrRateLimited = errors.New("llm rate limited")
	ErrUnavailable = errors.New("llm unavailable")
)

// Completer is the single operation the chat pipeline needs from a model.
type Completer interface {
	Complete(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
}

// Client is the production Completer backed by the Anthropic API.
type Client struct {
	client         anthropic.Client
	model          anthropic.Model
	maxRetries     int
	initialBackoff time.Duration
}

// NewClient builds a client for the given key and model name.
func NewClient(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("LLM API key required")
	}
	if model == "" {
		model = DefaultModel
	}
	llmMetricsOnce.Do(initLLMMetrics)
	return &Client{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:          anthropic.Model(model),
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() anthropic.Model { return c.model }

// llmMetrics holds lazily-initialized OTel instruments for model calls.
var llmMetrics struct {
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
	duration     metric.Float64Histogram
}

var llmMetricsOnce sync.Once

func initLLMMetrics() {
	m := telemetry.Meter("trackgate/llm")
	llmMetrics.inputTokens, _ = m.Int64Counter("tg.llm.input_tokens",
		metric.WithDescription("Anthropic API input tokens consumed"),
		metric.WithUnit("{token}"),
	)
	llmMetrics.outputTokens, _ = m.Int64Counter("tg.llm.output_tokens",
		metric.WithDescription("Anthropic API output tokens generated"),
		metric.WithUnit("{token}"),
	)
	llmMetrics.duration, _ = m.Float64Histogram("tg.llm.request.duration",
		metric.WithDescription("Anthropic API request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
}

// Complete sends one messages request, retrying transient failures with
// exponential backoff. The model field of params is filled from the client
// when the caller leaves it empty.
func (c *Client) Complete(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	if params.Model == "" {
		params.Model = c.model
	}

	tracer := telemetry.Tracer("trackgate/llm")
	ctx, span := tracer.Start(ctx, "anthropic.messages.new")
	defer span.End()
	span.SetAttributes(attribute.String("tg.llm.model", string(params.Model)))

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		t0 := time.Now()
		message, err := c.client.Messages.New(ctx, params)
		ms := float64(time.Since(t0).Milliseconds())

		if err == nil {
			modelAttr := attribute.String("tg.llm.model", string(params.Model))
			if llmMetrics.inputTokens != nil {
				llmMetrics.inputTokens.Add(ctx, message.Usage.InputTokens, metric.WithAttributes(modelAttr))
				llmMetrics.outputTokens.Add(ctx, message.Usage.OutputTokens, metric.WithAttributes(modelAttr))
				llmMetrics.duration.Record(ctx, ms, metric.WithAttributes(modelAttr))
			}
			span.SetAttributes(
				attribute.Int64("tg.llm.input_tokens", message.Usage.InputTokens),
				attribute.Int64("tg.llm.output_tokens", message.Usage.OutputTokens),
				attribute.Int("tg.llm.attempts", attempt+1),
			)
			return message, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isRetryable(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, classify(err)
		}
	}

	if lastErr != nil {
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, lastErr.Error())
	}
	return nil, fmt.Errorf("failed after %d attempts: %w", c.maxRetries+1, classify(lastErr))
}

// classify tags an upstream error with the gateway's error kind so the HTTP
// layer can map rate limits to 429.
func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 {
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		if apiErr.StatusCode >= 500 {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return err
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
