package planner

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/harun/agentflow/pkg/flowerr"
	"github.com/harun/agentflow/pkg/llm"
	"github.com/harun/agentflow/pkg/toolregistry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider replies with queued responses in order and records requests.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*llm.Response
	err       error
	requests  []llm.Request
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Chat(_ context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return &llm.Response{}, nil
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

func mockToolCall() *llm.Response {
	return &llm.Response{ToolCalls: []llm.ToolCall{{Name: "mock_tool", Arguments: map[string]any{"foo": "bar"}}}}
}

func catalog() []toolregistry.CatalogEntry {
	return []toolregistry.CatalogEntry{{
		Type: "function",
		Function: toolregistry.CatalogFunction{
			Name:        "mock_tool",
			Description: "A mock tool",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{"foo": map[string]any{"type": "string"}}},
		},
	}}
}

func TestPlanners_ProduceSteps(t *testing.T) {
	tests := []struct {
		name      string
		kind      string
		responses []*llm.Response
		wantCalls int
	}{
		{name: "multi step", kind: KindMultiStep, responses: []*llm.Response{mockToolCall()}, wantCalls: 1},
		{name: "chain of thought", kind: KindChainOfThought, responses: []*llm.Response{{Content: "think first"}, mockToolCall()}, wantCalls: 2},
		{name: "htn", kind: KindHTN, responses: []*llm.Response{{Content: "1. do the thing"}, mockToolCall()}, wantCalls: 2},
		{name: "monte carlo", kind: KindMonteCarlo, responses: []*llm.Response{mockToolCall(), mockToolCall(), mockToolCall()}, wantCalls: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &scriptedProvider{responses: tt.responses}
			p, err := New(tt.kind, llm.NewClient(provider, "test-model"), 0)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, p.Name())

			steps, err := p.Plan(context.Background(), "test task with bar param", catalog())
			require.NoError(t, err)
			require.Len(t, steps, 1)
			assert.Equal(t, "mock_tool", steps[0].ToolName)
			assert.Equal(t, "bar", steps[0].Params["foo"])
			assert.Len(t, provider.requests, tt.wantCalls)

			last := provider.requests[len(provider.requests)-1]
			require.Len(t, last.Tools, 1)
			assert.Equal(t, "mock_tool", last.Tools[0].Name)
		})
	}
}

func TestChainOfThought_SeedsPlanWithReasoning(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{{Content: "first fetch, then summarise"}, mockToolCall()}}
	p := NewChainOfThought(llm.NewClient(provider, "m"))

	_, err := p.Plan(context.Background(), "task", catalog())
	require.NoError(t, err)

	require.Len(t, provider.requests, 2)
	assert.Empty(t, provider.requests[0].Tools)
	assert.Contains(t, provider.requests[0].Messages[1].Content, "Task: task")
	assert.Contains(t, provider.requests[1].Messages[1].Content, "first fetch, then summarise")
}

func TestHTN_RefinesHierarchy(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{{Content: "- gather\n- report"}, mockToolCall()}}
	p := NewHTN(llm.NewClient(provider, "m"))

	_, err := p.Plan(context.Background(), "write report", catalog())
	require.NoError(t, err)

	require.Len(t, provider.requests, 2)
	assert.Empty(t, provider.requests[0].Tools)
	refine := provider.requests[1].Messages[1].Content
	assert.Contains(t, refine, "Task: write report")
	assert.Contains(t, refine, "- gather\n- report")
}

func TestMonteCarlo_KeepsShortestPlan(t *testing.T) {
	long := &llm.Response{ToolCalls: []llm.ToolCall{
		{Name: "a", Arguments: map[string]any{}},
		{Name: "b", Arguments: map[string]any{}},
		{Name: "c", Arguments: map[string]any{}},
	}}
	short := &llm.Response{ToolCalls: []llm.ToolCall{{Name: "a"}, {Name: "b"}}}
	provider := &scriptedProvider{responses: []*llm.Response{long, {}, short, long}}

	p := NewMonteCarlo(llm.NewClient(provider, "m"), 4)
	steps, err := p.Plan(context.Background(), "task", catalog())
	require.NoError(t, err)

	require.Len(t, steps, 2)
	assert.Equal(t, []string{"a", "b"}, []string{steps[0].ToolName, steps[1].ToolName})
	assert.Equal(t, map[string]any{}, steps[0].Params)

	require.Len(t, provider.requests, 4)
	for _, req := range provider.requests {
		assert.Equal(t, SimulationTemperature, req.Temperature)
	}
}

func TestMonteCarlo_DefaultSimulations(t *testing.T) {
	provider := &scriptedProvider{}
	p := NewMonteCarlo(llm.NewClient(provider, "m"), 0)

	steps, err := p.Plan(context.Background(), "task", nil)
	require.NoError(t, err)
	assert.Empty(t, steps)
	assert.Len(t, provider.requests, DefaultSimulations)
}

func TestPlanners_WrapLLMErrors(t *testing.T) {
	cause := flowerr.APIClient("llm", "API request failed with status: 500", errors.New("boom"))

	for _, kind := range []string{KindMultiStep, KindChainOfThought, KindHTN, KindMonteCarlo} {
		t.Run(kind, func(t *testing.T) {
			p, err := New(kind, llm.NewClient(&scriptedProvider{err: cause}, "m"), 2)
			require.NoError(t, err)

			_, err = p.Plan(context.Background(), "task", catalog())
			require.Error(t, err)
			assert.ErrorIs(t, err, flowerr.ErrPlanning)
			assert.ErrorIs(t, err, flowerr.ErrAPIClient)
		})
	}
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := New("genetic", llm.NewClient(&scriptedProvider{}, "m"), 0)
	assert.ErrorIs(t, err, flowerr.ErrConfig)
}

func TestScore(t *testing.T) {
	assert.Equal(t, 0.0, Score(nil))
	assert.Equal(t, 1.0, Score([]Step{{ToolName: "a"}}))
	assert.Equal(t, 0.25, Score(make([]Step, 4)))
}

func TestTools(t *testing.T) {
	assert.Nil(t, Tools(nil))
	tools := Tools(catalog())
	require.Len(t, tools, 1)
	assert.Equal(t, "A mock tool", tools[0].Description)
	assert.Equal(t, "object", tools[0].Parameters["type"])
}
