package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackgate/internal/tools"
)

// scriptedCompleter replays canned responses and records every request.
type scriptedCompleter struct {
	responses []*anthropic.Message
	err       error
	requests  []anthropic.MessageNewParams
}

func (s *scriptedCompleter) Complete(_ context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	s.requests = append(s.requests, params)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return textMessage("out of script"), nil
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	return next, nil
}

func textMessage(text string) *anthropic.Message {
	return &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{{Type: "text", Text: text}},
	}
}

func toolUseMessage(uses ...anthropic.ContentBlockUnion) *anthropic.Message {
	return &anthropic.Message{Content: uses}
}

func toolUseBlock(id, name, input string) anthropic.ContentBlockUnion {
	return anthropic.ContentBlockUnion{
		Type:  "tool_use",
		ID:    id,
		Name:  name,
		Input: json.RawMessage(input),
	}
}

func TestSelectCategoryKeywordSkipsModel(t *testing.T) {
	completer := &scriptedCompleter{}
	sel := SelectCategory(context.Background(), completer, "how many open bugs do we have", nil, nil)

	assert.Equal(t, tools.CategoryTrackerAnalytics, sel.Category)
	assert.Equal(t, SourceKeyword, sel.Source)
	assert.Empty(t, completer.requests, "keyword hits must not cost a model round")
}

func TestSelectCategoryModelRound(t *testing.T) {
	completer := &scriptedCompleter{responses: []*anthropic.Message{
		toolUseMessage(toolUseBlock("tc_1", "select_tool_category",
			`{"category":"tracker-core","reasoning":"asks for raw records"}`)),
	}}
	sel := SelectCategory(context.Background(), completer, "show me everything assigned to Dana", nil, nil)

	assert.Equal(t, tools.CategoryTrackerCore, sel.Category)
	assert.Equal(t, SourceModel, sel.Source)
	assert.Equal(t, "asks for raw records", sel.Reasoning)

	require.Len(t, completer.requests, 1)
	req := completer.requests[0]
	assert.Equal(t, int64(selectorMaxTokens), req.MaxTokens)
	require.Len(t, req.Tools, 1)
	assert.NotNil(t, req.ToolChoice.OfAny, "the model must be forced to pick")
	assert.Len(t, req.Messages, 1, "the category round carries no history")
}

func TestSelectCategoryInvalidChoiceFallsBack(t *testing.T) {
	completer := &scriptedCompleter{responses: []*anthropic.Message{
		toolUseMessage(toolUseBlock("tc_1", "select_tool_category", `{"category":"weather"}`)),
	}}
	sel := SelectCategory(context.Background(), completer, "hmm", nil, nil)
	assert.Equal(t, tools.Categories[0], sel.Category)
	assert.Equal(t, SourceFallback, sel.Source)
}

func TestSelectCategoryModelErrorFallsBack(t *testing.T) {
	completer := &scriptedCompleter{err: errors.New("upstream down")}
	sel := SelectCategory(context.Background(), completer, "hmm", nil, nil)
	assert.Equal(t, tools.Categories[0], sel.Category)
	assert.Equal(t, SourceFallback, sel.Source)
}

func TestSelectCategoryRespectsEnabledSet(t *testing.T) {
	enabled := map[string]bool{tools.CategoryCacheControl: true}
	completer := &scriptedCompleter{responses: []*anthropic.Message{
		toolUseMessage(toolUseBlock("tc_1", "select_tool_category", `{"category":"tracker-core"}`)),
	}}
	sel := SelectCategory(context.Background(), completer, "hmm", enabled, nil)
	assert.Equal(t, tools.CategoryCacheControl, sel.Category,
		"a disabled category is not a valid model choice")
	assert.Equal(t, SourceFallback, sel.Source)
}
