package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/rbright/parlando/internal/tools"
)

// OllamaModel chats with a local Ollama server.
type OllamaModel struct {
	client *api.Client
	model  string
	think  bool
}

func NewOllama(host string, model string, think bool, timeout time.Duration) (*OllamaModel, error) {
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("ollama: model must not be empty")
	}
	base, err := url.Parse(host)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("ollama: invalid host %q", host)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &OllamaModel{
		client: api.NewClient(base, &http.Client{Timeout: timeout}),
		model:  model,
		think:  think,
	}, nil
}

func (m *OllamaModel) Chat(ctx context.Context, messages []Message, defs []tools.Definition) (Reply, error) {
	stream := false
	req := &api.ChatRequest{
		Model:    m.model,
		Messages: ollamaMessages(messages),
		Stream:   &stream,
		Think:    &api.ThinkValue{Value: m.think},
	}
	if len(defs) > 0 {
		req.Tools = ollamaTools(defs)
	}

	var reply Reply
	var content strings.Builder
	err := m.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		for _, tc := range resp.Message.ToolCalls {
			reply.ToolCalls = append(reply.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments.ToMap(),
			})
		}
		return nil
	})
	if err != nil {
		return Reply{}, fmt.Errorf("ollama chat: %w", err)
	}
	reply.Content = content.String()
	return reply, nil
}

// Models lists the models installed on the server.
func (m *OllamaModel) Models(ctx context.Context) ([]string, error) {
	resp, err := m.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ollama list: %w", err)
	}
	names := make([]string, 0, len(resp.Models))
	for _, model := range resp.Models {
		names = append(names, model.Name)
	}
	return names, nil
}

// Model is the configured model name.
func (m *OllamaModel) Model() string { return m.model }

// HasModel reports whether name appears in installed, allowing the implicit
// ":latest" tag.
func HasModel(installed []string, name string) bool {
	for _, candidate := range installed {
		if candidate == name || strings.TrimSuffix(candidate, ":latest") == name {
			return true
		}
	}
	return false
}

func ollamaMessages(messages []Message) []api.Message {
	out := make([]api.Message, 0, len(messages))
	for _, msg := range messages {
		am := api.Message{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
			ToolName:   msg.ToolName,
		}
		for _, tc := range msg.ToolCalls {
			args := api.NewToolCallFunctionArguments()
			for k, v := range tc.Arguments {
				args.Set(k, v)
			}
			am.ToolCalls = append(am.ToolCalls, api.ToolCall{
				ID: tc.ID,
				Function: api.ToolCallFunction{
					Name:      tc.Name,
					Arguments: args,
				},
			})
		}
		out = append(out, am)
	}
	return out
}

func ollamaTools(defs []tools.Definition) api.Tools {
	out := make(api.Tools, 0, len(defs))
	for _, def := range defs {
		params := api.ToolFunctionParameters{Type: "object"}
		props := api.NewToolPropertiesMap()
		for _, p := range def.Parameters {
			prop := api.ToolProperty{
				Type:        api.PropertyType{p.Type},
				Description: p.Description,
			}
			for _, v := range p.Enum {
				prop.Enum = append(prop.Enum, v)
			}
			props.Set(p.Name, prop)
			if p.Required {
				params.Required = append(params.Required, p.Name)
			}
		}
		params.Properties = props

		out = append(out, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
