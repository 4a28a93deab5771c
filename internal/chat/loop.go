package chat

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"go.uber.org/zap"

	"trackgate/internal/llm"
	"trackgate/internal/tools"
)

// Loop caps. The iteration and per-iteration limits bound runaway model
// behavior; the history tail bounds token growth on long conversations.
const (
	maxIterations        = 3
	maxToolsPerIteration = 2
	historyTail          = 10
	loopMaxTokens        = 1024
	// deadlineReserve is kept back from the request deadline so the final
	// text turn still has time to complete.
	deadlineReserve = 2 * time.Second
)

const loopSystemPrompt = "You answer questions about an issue tracker using the " +
	"provided tools. Prefer a single tool call per question. Tool results are " +
	"authoritative; surface analytic JSON results verbatim in your answer. When " +
	"the user asks for multiple analytics, call each tool once."

const finalDirective = "Do not call any more tools. Produce your final answer " +
	"from the tool results above."

// Turn is one wire-format conversation entry.
type Turn struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

// Loop is the phase-2 bounded tool-use driver.
type Loop struct {
	completer llm.Completer
	exec      *Executor
	log       *zap.Logger
}

// NewLoop wires the loop. A nil logger is replaced with a no-op.
func NewLoop(completer llm.Completer, exec *Executor, log *zap.Logger) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{completer: completer, exec: exec, log: log}
}

// Run drives one chat turn: select a category, expose that category's
// tools, and iterate model calls until the model answers in text or the
// iteration cap forces a final turn. The returned history is the input
// history plus this turn's entries.
func (l *Loop) Run(ctx context.Context, message string, history []Turn, enabled map[string]bool) (string, []Turn, error) {
	selection := SelectCategory(ctx, l.completer, message, enabled, l.log)
	l.log.Info("category selected",
		zap.String("category", selection.Category),
		zap.String("source", selection.Source))

	descriptors := tools.ForCategory(selection.Category, enabled)
	toolParams := tools.AnthropicTools(descriptors)

	messages := historyMessages(history)
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(message)))
	newTurns := []Turn{{Role: "user", Content: message}}

	for iteration := 0; iteration < maxIterations; iteration++ {
		if !deadlineAllows(ctx) {
			break
		}

		response, err := l.completer.Complete(ctx, anthropic.MessageNewParams{
			MaxTokens: loopMaxTokens,
			System:    []anthropic.TextBlockParam{{Text: loopSystemPrompt}},
			Messages:  messages,
			Tools:     toolParams,
		})
		if err != nil {
			return "", history, err
		}

		text, toolUses := splitBlocks(response)
		if len(toolUses) == 0 {
			newTurns = append(newTurns, Turn{Role: "assistant", Content: text})
			return text, append(history, newTurns...), nil
		}

		if len(toolUses) > maxToolsPerIteration {
			l.log.Debug("tool calls over per-iteration cap, truncating",
				zap.Int("requested", len(toolUses)))
			toolUses = toolUses[:maxToolsPerIteration]
		}

		assistant, results := l.dispatch(ctx, text, toolUses)
		messages = append(messages, assistant, anthropic.MessageParam{
			Role:    anthropic.MessageParamRoleUser,
			Content: results,
		})
		for i, use := range toolUses {
			newTurns = append(newTurns, Turn{
				Role:       "tool",
				Content:    resultText(results[i]),
				ToolCallID: use.ID,
				Name:       use.Name,
			})
		}
	}

	// Iteration cap reached: force one last text-only turn.
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(finalDirective)))
	response, err := l.completer.Complete(ctx, anthropic.MessageNewParams{
		MaxTokens: loopMaxTokens,
		System:    []anthropic.TextBlockParam{{Text: loopSystemPrompt}},
		Messages:  messages,
	})
	if err != nil {
		return "", history, err
	}
	text, _ := splitBlocks(response)
	newTurns = append(newTurns, Turn{Role: "assistant", Content: text})
	return text, append(history, newTurns...), nil
}

// toolUse is one tool call extracted from a model response.
type toolUse struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// splitBlocks separates a response into its text and its tool calls.
func splitBlocks(message *anthropic.Message) (string, []toolUse) {
	var text strings.Builder
	var uses []toolUse
	for _, block := range message.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			uses = append(uses, toolUse{ID: block.ID, Name: block.Name, Input: block.Input})
		}
	}
	return text.String(), uses
}

// dispatch executes the iteration's tool calls in order and builds the
// assistant echo plus the tool-result blocks fed back to the model. Only
// the executed calls are echoed, so every tool_use has a matching result.
func (l *Loop) dispatch(ctx context.Context, text string, uses []toolUse) (anthropic.MessageParam, []anthropic.ContentBlockParamUnion) {
	var blocks []anthropic.ContentBlockParamUnion
	if text != "" {
		blocks = append(blocks, anthropic.ContentBlockParamUnion{
			OfText: &anthropic.TextBlockParam{Text: text},
		})
	}
	results := make([]anthropic.ContentBlockParamUnion, 0, len(uses))
	for _, use := range uses {
		blocks = append(blocks, anthropic.ContentBlockParamUnion{
			OfToolUse: &anthropic.ToolUseBlockParam{
				ID:    use.ID,
				Name:  use.Name,
				Input: use.Input,
			},
		})
		result := l.exec.Execute(ctx, use.Name, use.Input)
		results = append(results, anthropic.ContentBlockParamUnion{
			OfToolResult: &anthropic.ToolResultBlockParam{
				ToolUseID: use.ID,
				Content: []anthropic.ToolResultBlockParamContentUnion{
					{OfText: &anthropic.TextBlockParam{Text: result}},
				},
			},
		})
	}
	assistant := anthropic.MessageParam{
		Role:    anthropic.MessageParamRoleAssistant,
		Content: blocks,
	}
	return assistant, results
}

// historyMessages converts the wire history tail into model messages. Tool
// turns are folded into user-role text so resumed conversations replay
// without dangling tool_use references.
func historyMessages(history []Turn) []anthropic.MessageParam {
	if len(history) > historyTail {
		history = history[len(history)-historyTail:]
	}
	var messages []anthropic.MessageParam
	for _, turn := range history {
		switch turn.Role {
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(turn.Content)))
		case "tool":
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewTextBlock("Earlier tool result ("+turn.Name+"): "+turn.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(turn.Content)))
		}
	}
	return messages
}

func resultText(block anthropic.ContentBlockParamUnion) string {
	if block.OfToolResult == nil {
		return ""
	}
	for _, c := range block.OfToolResult.Content {
		if c.OfText != nil {
			return c.OfText.Text
		}
	}
	return ""
}

func deadlineAllows(ctx context.Context) bool {
	deadline, ok := ctx.Deadline()
	if !ok {
		return ctx.Err() == nil
	}
	return time.Until(deadline) > deadlineReserve
}
