package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/harun/agentflow/pkg/flowerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const toolCallCompletion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "qwen3:8b",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "message": {
      "role": "assistant",
      "content": "",
      "tool_calls": [{
        "id": "call_1",
        "type": "function",
        "function": {"name": "echo", "arguments": "{\"text\":\"hi\"}"}
      }]
    }
  }],
  "usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
}`

func newChatServer(t *testing.T, path string, status int, body string, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, path, r.URL.Path)
		if captured != nil {
			raw, err := io.ReadAll(r.Body)
			assert.NoError(t, err)
			assert.NoError(t, json.Unmarshal(raw, captured))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIProvider_ToolCalls(t *testing.T) {
	var captured map[string]any
	srv := newChatServer(t, "/v1/chat/completions", http.StatusOK, toolCallCompletion, &captured)

	provider := NewOllamaProvider(srv.URL + "/v1")
	assert.Equal(t, ProviderOllama, provider.Name())

	resp, err := provider.Chat(context.Background(), Request{
		Model:       OllamaQwen3_8B,
		Temperature: 0.5,
		Messages:    []Message{SystemMessage("plan"), UserMessage("say hi")},
		Tools: []Tool{{
			Name:        "echo",
			Description: "Echo text",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "tool_calls", resp.FinishReason)
	assert.Equal(t, []ToolCall{{ID: "call_1", Name: "echo", Arguments: map[string]any{"text": "hi"}}}, resp.ToolCalls)
	assert.Equal(t, Usage{InputTokens: 12, OutputTokens: 5}, resp.Usage)

	assert.Equal(t, OllamaQwen3_8B, captured["model"])
	assert.Equal(t, 0.5, captured["temperature"])
	messages := captured["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	tools := captured["tools"].([]any)
	require.Len(t, tools, 1)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "echo", fn["name"])
}

func TestOpenAIProvider_TextReply(t *testing.T) {
	body := `{"id":"x","object":"chat.completion","created":1,"model":"m",
	  "choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"All done."}}],
	  "usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`
	srv := newChatServer(t, "/chat/completions", http.StatusOK, body, nil)

	provider := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})
	resp, err := provider.Chat(context.Background(), Request{Model: "m", Messages: []Message{UserMessage("hi")}})
	require.NoError(t, err)
	assert.Equal(t, "All done.", resp.Content)
	assert.Empty(t, resp.ToolCalls)
}

func TestOpenAIProvider_Errors(t *testing.T) {
	t.Run("non-success status", func(t *testing.T) {
		srv := newChatServer(t, "/chat/completions", http.StatusBadRequest,
			`{"error":{"message":"bad request","type":"invalid_request_error"}}`, nil)
		provider := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})

		_, err := provider.Chat(context.Background(), Request{Model: "m", Messages: []Message{UserMessage("hi")}})
		require.Error(t, err)
		assert.ErrorIs(t, err, flowerr.ErrAPIClient)
		assert.Contains(t, err.Error(), "400")
	})

	t.Run("no choices", func(t *testing.T) {
		srv := newChatServer(t, "/chat/completions", http.StatusOK,
			`{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`, nil)
		provider := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})

		_, err := provider.Chat(context.Background(), Request{Model: "m", Messages: []Message{UserMessage("hi")}})
		assert.ErrorIs(t, err, flowerr.ErrParse)
	})

	t.Run("malformed arguments", func(t *testing.T) {
		body := `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"tool_calls",
		  "message":{"role":"assistant","content":"","tool_calls":[{"id":"c","type":"function","function":{"name":"echo","arguments":"{not json"}}]}}]}`
		srv := newChatServer(t, "/chat/completions", http.StatusOK, body, nil)
		provider := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "k"})

		_, err := provider.Chat(context.Background(), Request{Model: "m", Messages: []Message{UserMessage("hi")}})
		assert.ErrorIs(t, err, flowerr.ErrParse)
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		provider := NewOpenAIProvider(OpenAIConfig{BaseURL: url, APIKey: "k"})

		_, err := provider.Chat(context.Background(), Request{Model: "m", Messages: []Message{UserMessage("hi")}})
		assert.ErrorIs(t, err, flowerr.ErrNetwork)
	})
}
