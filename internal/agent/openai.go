package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/rbright/parlando/internal/tools"
)

// OpenAIModel chats through an OpenAI-compatible chat completions API.
type OpenAIModel struct {
	client oai.Client
	model  string
}

func NewOpenAI(apiKey string, model string, baseURL string, timeout time.Duration) (*OpenAIModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: timeout}))
	}
	return &OpenAIModel{client: oai.NewClient(reqOpts...), model: model}, nil
}

func (m *OpenAIModel) Chat(ctx context.Context, messages []Message, defs []tools.Definition) (Reply, error) {
	params, err := m.buildParams(messages, defs)
	if err != nil {
		return Reply{}, err
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Reply{}, fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Reply{}, fmt.Errorf("openai chat: response has no choices")
	}

	msg := resp.Choices[0].Message
	reply := Reply{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if raw := tc.Function.Arguments; raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return Reply{}, fmt.Errorf("openai chat: decode %s arguments: %w", tc.Function.Name, err)
			}
		}
		reply.ToolCalls = append(reply.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return reply, nil
}

func (m *OpenAIModel) buildParams(messages []Message, defs []tools.Definition) (oai.ChatCompletionNewParams, error) {
	converted := make([]oai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		cm, err := openAIMessage(msg)
		if err != nil {
			return oai.ChatCompletionNewParams{}, err
		}
		converted = append(converted, cm)
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(m.model),
		Messages: converted,
	}
	for _, def := range defs {
		params.Tools = append(params.Tools, oai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        def.Name,
				Description: param.NewOpt(def.Description),
				Parameters:  shared.FunctionParameters(jsonSchema(def)),
			},
		})
	}
	return params, nil
}

func openAIMessage(msg Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch msg.Role {
	case RoleSystem:
		return oai.SystemMessage(msg.Content), nil
	case RoleUser:
		return oai.UserMessage(msg.Content), nil
	case RoleAssistant:
		asst := oai.ChatCompletionAssistantMessageParam{}
		if msg.Content != "" {
			asst.Content.OfString = oai.String(msg.Content)
		}
		for _, tc := range msg.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: encode %s arguments: %w", tc.Name, err)
			}
			asst.ToolCalls = append(asst.ToolCalls, oai.ChatCompletionMessageToolCallParam{
				ID: tc.ID,
				Function: oai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: string(args),
				},
			})
		}
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}, nil
	case RoleTool:
		return oai.ToolMessage(msg.Content, msg.ToolCallID), nil
	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unknown message role %q", msg.Role)
	}
}

// jsonSchema renders a tool definition's parameters as a JSON schema object.
func jsonSchema(def tools.Definition) map[string]any {
	properties := make(map[string]any, len(def.Parameters))
	required := make([]string, 0, len(def.Parameters))
	for _, p := range def.Parameters {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}
