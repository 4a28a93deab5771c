// Package chat drives the two-phase conversation pipeline: category
// selection, the bounded tool loop, and tool dispatch.
package chat

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/zap"

	"trackgate/internal/llm"
	"trackgate/internal/tools"
)

// selectorMaxTokens caps the category round; the model only has to emit one
// tool call with one enum value.
const selectorMaxTokens = 100

const selectorSystemPrompt = "You route a user question about an issue tracker " +
	"to exactly one tool category. Call select_tool_category with the best match."

// Selection is the outcome of the category round.
type Selection struct {
	Category  string `json:"category"`
	Source    string `json:"source"`
	Reasoning string `json:"reasoning,omitempty"`
}

// Selection sources.
const (
	SourceKeyword  = "keyword"
	SourceModel    = "model"
	SourceFallback = "fallback"
)

type categoryChoice struct {
	Category  string `json:"category"`
	Reasoning string `json:"reasoning"`
}

// SelectCategory picks one tool category for the utterance. Keyword hits
// skip the model; a failed or invalid model round falls back to the first
// enabled category. This stage never returns an error.
func SelectCategory(ctx context.Context, completer llm.Completer, utterance string, enabled map[string]bool, log *zap.Logger) Selection {
	if log == nil {
		log = zap.NewNop()
	}
	categories := tools.EnabledCategories(enabled)
	if len(categories) == 0 {
		categories = tools.Categories
	}

	if category, hit := tools.KeywordCategory(utterance, enabled); hit {
		return Selection{Category: category, Source: SourceKeyword}
	}

	message, err := completer.Complete(ctx, anthropic.MessageNewParams{
		MaxTokens: selectorMaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: selectorSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(utterance)),
		},
		Tools: []anthropic.ToolUnionParam{selectorTool(categories)},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfAny: &anthropic.ToolChoiceAnyParam{},
		},
	})
	if err != nil {
		log.Warn("category round failed, using fallback", zap.Error(err))
		return Selection{Category: categories[0], Source: SourceFallback}
	}

	for _, block := range message.Content {
		if block.Type != "tool_use" || block.Name != "select_tool_category" {
			continue
		}
		var choice categoryChoice
		if err := json.Unmarshal([]byte(block.Input), &choice); err != nil {
			continue
		}
		for _, c := range categories {
			if choice.Category == c {
				return Selection{Category: c, Source: SourceModel, Reasoning: choice.Reasoning}
			}
		}
	}

	log.Debug("model produced no valid category, using fallback",
		zap.String("utterance", utterance))
	return Selection{Category: categories[0], Source: SourceFallback}
}

// selectorTool is the single meta-tool offered in the category round.
func selectorTool(categories []string) anthropic.ToolUnionParam {
	tool := anthropic.ToolParam{
		Name:        "select_tool_category",
		Description: anthropic.String("Select the single tool category that best fits the user's question."),
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties: map[string]any{
				"category": map[string]any{
					"type": "string",
					"enum": categories,
				},
				"reasoning": map[string]any{
					"type":        "string",
					"description": "One short sentence on why",
				},
			},
			Required: []string{"category"},
		},
	}
	return anthropic.ToolUnionParam{OfTool: &tool}
}
