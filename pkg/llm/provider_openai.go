package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/harun/agentflow/pkg/flowerr"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig configures an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	// Name is reported by Provider.Name and in metrics.
	Name       string
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// OpenAIProvider implements Provider for any OpenAI-compatible chat API.
type OpenAIProvider struct {
	name   string
	client openai.Client
}

// NewOpenAIProvider creates a provider for cfg. An empty BaseURL targets OpenAI.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	name := cfg.Name
	if name == "" {
		name = ProviderOpenAI
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAIProvider{name: name, client: openai.NewClient(opts...)}
}

// NewOllamaProvider targets a local Ollama server's OpenAI-compatible API.
func NewOllamaProvider(baseURL string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	return NewOpenAIProvider(OpenAIConfig{Name: ProviderOllama, BaseURL: baseURL, APIKey: "ollama"})
}

// NewOpenRouterProvider targets OpenRouter.
func NewOpenRouterProvider(apiKey string) *OpenAIProvider {
	return NewOpenAIProvider(OpenAIConfig{Name: ProviderOpenRouter, BaseURL: DefaultOpenRouterBaseURL, APIKey: apiKey})
}

func (p *OpenAIProvider) Name() string { return p.name }

// Chat makes a chat-completions call.
func (p *OpenAIProvider) Chat(ctx context.Context, req Request) (*Response, error) {
	const op = "llm.openai.chat"
	names := newToolNames(req.Tools)

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(msg.Content))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCall, 0, len(msg.ToolCalls))
			for _, tc := range msg.ToolCalls {
				args, err := json.Marshal(tc.Arguments)
				if err != nil {
					return nil, flowerr.Parse(op, "failed to marshal tool arguments", err)
				}
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunction{
						Name:      names.wire(tc.Name),
						Arguments: string(args),
					},
				})
			}
			assistant := openai.ChatCompletionMessage{
				Role:      "assistant",
				Content:   msg.Content,
				ToolCalls: toolCalls,
			}
			messages = append(messages, assistant.ToParam())
		case RoleTool:
			messages = append(messages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
		for _, tool := range req.Tools {
			tools = append(tools, openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        names.wire(tool.Name),
					Description: openai.String(tool.Description),
					Parameters:  openai.FunctionParameters(tool.Parameters),
				},
			})
		}
		params.Tools = tools
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, classify(op, apiErr.StatusCode, true, err)
		}
		return nil, classify(op, 0, false, err)
	}
	if len(completion.Choices) == 0 {
		return nil, flowerr.Parse(op, "no response choices returned", nil)
	}

	choice := completion.Choices[0]
	resp := &Response{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		args, err := parseArguments(tc.Function.Arguments)
		if err != nil {
			return nil, flowerr.Parse(op, "failed to parse tool arguments for "+tc.Function.Name, err)
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      names.catalog(tc.Function.Name),
			Arguments: args,
		})
	}
	return resp, nil
}

func parseArguments(raw string) (map[string]any, error) {
	args := map[string]any{}
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}
