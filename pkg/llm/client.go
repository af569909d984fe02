package llm

import (
	"context"

	"github.com/harun/agentflow/internal/observability"
	"github.com/harun/agentflow/internal/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "agentflow.llm"

// Client binds a Provider to a model and sampling settings. Client values are
// immutable; the With* methods return modified copies.
type Client struct {
	provider    Provider
	model       string
	temperature float64
	maxTokens   int
}

// NewClient returns a client using DefaultTemperature.
func NewClient(provider Provider, model string) *Client {
	return &Client{provider: provider, model: model, temperature: DefaultTemperature}
}

// WithTemperature returns a copy of c using temperature t.
func (c *Client) WithTemperature(t float64) *Client {
	cp := *c
	cp.temperature = t
	return &cp
}

// WithMaxTokens returns a copy of c capping completions at n tokens.
func (c *Client) WithMaxTokens(n int) *Client {
	cp := *c
	cp.maxTokens = n
	return &cp
}

func (c *Client) Model() string        { return c.model }
func (c *Client) Temperature() float64 { return c.temperature }
func (c *Client) ProviderName() string { return c.provider.Name() }

// Chat sends messages with the optional tool list and returns the reply.
func (c *Client) Chat(ctx context.Context, messages []Message, tools []Tool) (*Response, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "llm.chat",
		attribute.String("provider", c.provider.Name()),
		attribute.String("model", c.model),
		attribute.Int("tools", len(tools)),
	)

	resp, err := c.provider.Chat(ctx, Request{
		Model:       c.model,
		Messages:    messages,
		Tools:       tools,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	tracing.EndSpan(span, err)
	observability.RecordLLMRequest(c.provider.Name(), err == nil)

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	if err != nil {
		logger.Warn().Err(err).Str("provider", c.provider.Name()).Str("model", c.model).Msg("LLM request failed")
		return nil, err
	}

	logger.Debug().
		Str("provider", c.provider.Name()).
		Str("model", c.model).
		Int("tool_calls", len(resp.ToolCalls)).
		Int("input_tokens", resp.Usage.InputTokens).
		Int("output_tokens", resp.Usage.OutputTokens).
		Msg("LLM request completed")
	return resp, nil
}
