// Package agent turns a spoken command into a spoken answer by running a
// chat model with tool calling.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/rbright/parlando/internal/speech"
	"github.com/rbright/parlando/internal/tools"
)

const (
	DefaultMaxToolRounds = 4
	DefaultTimeout       = 60 * time.Second
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one function invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Message is one entry of the chat transcript sent to the model.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	ToolName   string
}

// Reply is a single model completion.
type Reply struct {
	Content   string
	ToolCalls []ToolCall
}

// ChatModel is a chat completion backend.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message, defs []tools.Definition) (Reply, error)
}

// ToolObserver is told about each tool invocation.
type ToolObserver interface {
	ToolInvoked(name string, elapsed time.Duration)
}

// Options configures an Engine.
type Options struct {
	SystemPrompt  string
	MaxToolRounds int
	Timeout       time.Duration
	ToolObserver  ToolObserver
}

var ErrToolRoundsExceeded = errors.New("tool rounds exceeded")

// Engine implements session.ReasoningEngine. Each command starts a fresh
// transcript; no history is kept between turns.
type Engine struct {
	logger *slog.Logger
	model  ChatModel
	tools  *tools.Registry
	opts   Options
}

func New(logger *slog.Logger, model ChatModel, registry *tools.Registry, opts Options) (*Engine, error) {
	if model == nil {
		return nil, errors.New("agent: chat model is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = DefaultMaxToolRounds
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Engine{
		logger: logger.With("component", "agent"),
		model:  model,
		tools:  registry,
		opts:   opts,
	}, nil
}

func (e *Engine) Handle(ctx context.Context, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	messages := make([]Message, 0, 4)
	if prompt := strings.TrimSpace(e.opts.SystemPrompt); prompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: prompt})
	}
	messages = append(messages, Message{Role: RoleUser, Content: command})
	defs := e.tools.Definitions()

	for round := 0; ; round++ {
		reply, err := e.model.Chat(ctx, messages, defs)
		if err != nil {
			return "", fmt.Errorf("%w: chat: %w", speech.ErrReasoning, err)
		}

		if len(reply.ToolCalls) == 0 {
			answer := StripThinking(reply.Content)
			if answer == "" {
				return "", fmt.Errorf("%w: model returned an empty answer", speech.ErrReasoning)
			}
			return answer, nil
		}
		if round >= e.opts.MaxToolRounds {
			return "", fmt.Errorf("%w: %w after %d rounds", speech.ErrReasoning, ErrToolRoundsExceeded, round)
		}

		for i := range reply.ToolCalls {
			if reply.ToolCalls[i].ID == "" {
				reply.ToolCalls[i].ID = fmt.Sprintf("call-%d-%d", round, i)
			}
		}
		messages = append(messages, Message{Role: RoleAssistant, Content: reply.Content, ToolCalls: reply.ToolCalls})
		for _, call := range reply.ToolCalls {
			output, direct := e.invoke(ctx, call)
			if direct {
				return output, nil
			}
			messages = append(messages, Message{
				Role:       RoleTool,
				Content:    output,
				ToolCallID: call.ID,
				ToolName:   call.Name,
			})
		}
	}
}

// invoke runs one tool call. direct reports that the output is the final
// answer.
func (e *Engine) invoke(ctx context.Context, call ToolCall) (string, bool) {
	tool, ok := e.tools.Lookup(call.Name)
	if !ok {
		e.logger.Warn("model requested unknown tool", "tool", call.Name)
		return fmt.Sprintf("Unknown tool %q.", call.Name), false
	}

	started := time.Now()
	output := tool.Invoke(ctx, call.Arguments)
	elapsed := time.Since(started)
	if e.opts.ToolObserver != nil {
		e.opts.ToolObserver.ToolInvoked(call.Name, elapsed)
	}
	e.logger.Debug("tool invoked",
		"tool", call.Name,
		"duration_ms", elapsed.Milliseconds(),
		"output_chars", len(output),
	)
	return output, tool.Definition().Direct
}

var thinkPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThinking removes reasoning blocks some models emit even when
// thinking is disabled.
func StripThinking(content string) string {
	content = thinkPattern.ReplaceAllString(content, "")
	if idx := strings.Index(content, "<think>"); idx >= 0 {
		content = content[:idx]
	}
	return strings.TrimSpace(content)
}
