package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rbright/parlando/internal/tools"
	"github.com/stretchr/testify/require"
)

var lightDef = tools.Definition{
	Name:        "toggle_light",
	Description: "Turn the light on or off.",
	Parameters: []tools.Parameter{{
		Name: "action", Type: "string", Enum: []string{"on", "off"}, Required: true,
	}},
}

func TestOllamaChatSendsToolsAndDisablesThinking(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = io.WriteString(w, `{"model":"qwen3:1.7b","created_at":"2026-01-01T00:00:00Z","message":{"role":"assistant","content":"","tool_calls":[{"function":{"name":"toggle_light","arguments":{"action":"on"}}}]},"done":true}`+"\n")
	}))
	defer srv.Close()

	model, err := NewOllama(srv.URL, "qwen3:1.7b", false, time.Second)
	require.NoError(t, err)

	reply, err := model.Chat(context.Background(), []Message{{Role: RoleUser, Content: "lights on"}}, []tools.Definition{lightDef})
	require.NoError(t, err)
	require.Len(t, reply.ToolCalls, 1)
	require.Equal(t, "toggle_light", reply.ToolCalls[0].Name)
	require.Equal(t, "on", reply.ToolCalls[0].Arguments["action"])

	require.Equal(t, false, body["think"])
	require.Equal(t, false, body["stream"])
	toolsField, ok := body["tools"].([]any)
	require.True(t, ok)
	require.Len(t, toolsField, 1)
}

func TestOllamaChatServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"model \"missing\" not found"}`)
	}))
	defer srv.Close()

	model, err := NewOllama(srv.URL, "missing", false, time.Second)
	require.NoError(t, err)

	_, err = model.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, nil)
	require.ErrorContains(t, err, "ollama chat")
}

func TestNewOllamaValidates(t *testing.T) {
	_, err := NewOllama("127.0.0.1:11434", "qwen3", false, 0)
	require.Error(t, err)
	_, err = NewOllama("http://127.0.0.1:11434", " ", false, 0)
	require.Error(t, err)
}

func TestHasModel(t *testing.T) {
	installed := []string{"qwen3:1.7b", "llama3:latest"}
	require.True(t, HasModel(installed, "qwen3:1.7b"))
	require.True(t, HasModel(installed, "llama3"))
	require.False(t, HasModel(installed, "qwen3"))
}

func TestOllamaMessagesCarryToolResults(t *testing.T) {
	msgs := ollamaMessages([]Message{
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "get_time", Arguments: map[string]any{"tz": "UTC"}}}},
		{Role: RoleTool, Content: "noon", ToolCallID: "c1", ToolName: "get_time"},
	})
	require.Len(t, msgs, 2)
	require.Equal(t, "get_time", msgs[0].ToolCalls[0].Function.Name)
	require.Equal(t, "UTC", msgs[0].ToolCalls[0].Function.Arguments.ToMap()["tz"])
	require.Equal(t, "c1", msgs[1].ToolCallID)
	require.Equal(t, "get_time", msgs[1].ToolName)
}

func TestOpenAIChatParsesToolCalls(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 0,
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": null,
					"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "toggle_light", "arguments": "{\"action\":\"off\"}"}}]
				}
			}]
		}`)
	}))
	defer srv.Close()

	model, err := NewOpenAI("sk-test", "gpt-4o-mini", srv.URL, time.Second)
	require.NoError(t, err)

	reply, err := model.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "You are Jarvis."},
		{Role: RoleUser, Content: "lights off"},
	}, []tools.Definition{lightDef})
	require.NoError(t, err)
	require.Equal(t, []ToolCall{{ID: "call_1", Name: "toggle_light", Arguments: map[string]any{"action": "off"}}}, reply.ToolCalls)

	require.Equal(t, "gpt-4o-mini", body["model"])
	require.Len(t, body["messages"], 2)
	require.Len(t, body["tools"], 1)
}

func TestOpenAIMessageRoles(t *testing.T) {
	for _, msg := range []Message{
		{Role: RoleSystem, Content: "s"},
		{Role: RoleUser, Content: "u"},
		{Role: RoleAssistant, Content: "a", ToolCalls: []ToolCall{{ID: "c", Name: "n", Arguments: map[string]any{}}}},
		{Role: RoleTool, Content: "t", ToolCallID: "c"},
	} {
		_, err := openAIMessage(msg)
		require.NoError(t, err)
	}
	_, err := openAIMessage(Message{Role: "narrator"})
	require.Error(t, err)
}

func TestJSONSchema(t *testing.T) {
	schema := jsonSchema(lightDef)
	require.Equal(t, "object", schema["type"])
	require.Equal(t, []string{"action"}, schema["required"])
	props := schema["properties"].(map[string]any)
	require.Equal(t, []string{"on", "off"}, props["action"].(map[string]any)["enum"])
}

func TestNewOpenAIValidates(t *testing.T) {
	_, err := NewOpenAI("", "gpt-4o-mini", "", 0)
	require.Error(t, err)
	_, err = NewOpenAI("sk", "", "", 0)
	require.Error(t, err)
}
