// Package llm talks to chat-completion backends used for planning and
// synthesis.
//
// Two provider families are supported: OpenAI-compatible endpoints (OpenAI,
// Ollama, OpenRouter) through openai-go, and Anthropic through
// anthropic-sdk-go. Client adds the sampling temperature, metrics, and
// tracing on top of a Provider.
//
// Usage:
//
//	provider, err := llm.NewProvider(llm.ProviderConfig{Provider: llm.ProviderOllama})
//	client := llm.NewClient(provider, llm.OllamaQwen3_8B)
//	resp, err := client.Chat(ctx, []llm.Message{llm.UserMessage("hello")}, nil)
package llm
