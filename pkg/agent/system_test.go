package agent

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/harun/agentflow/pkg/execctx"
	"github.com/harun/agentflow/pkg/flowerr"
	"github.com/harun/agentflow/pkg/llm"
	"github.com/harun/agentflow/pkg/mcp"
	"github.com/harun/agentflow/pkg/planner"
	"github.com/harun/agentflow/pkg/toolregistry"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helperEnv = "AGENTFLOW_AGENT_MCP_HELPER"

// TestAgentMCPHelper turns the test binary into a minimal MCP server with
// "shout" and "echo" tools when helperEnv is set.
func TestAgentMCPHelper(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		t.Skip("helper process")
	}

	server := sdk.NewServer(&sdk.Implementation{Name: "shouter", Version: "0.1.0"}, nil)
	handler := func(_ context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
		var args map[string]any
		_ = json.Unmarshal(req.Params.Arguments, &args)
		text, _ := args["text"].(string)
		return &sdk.CallToolResult{StructuredContent: map[string]any{"tool": req.Params.Name, "text": text + "!"}}, nil
	}
	server.AddTool(&sdk.Tool{Name: "shout", Description: "upper-cases text", InputSchema: map[string]any{
		"type":       "object",
		"properties": map[string]any{"text": map[string]any{"type": "string"}},
		"required":   []any{"text"},
	}}, handler)
	server.AddTool(&sdk.Tool{Name: "echo", Description: "remote echo", InputSchema: map[string]any{"type": "object"}}, handler)

	_ = server.Run(context.Background(), &sdk.StdioTransport{})
	os.Exit(0)
}

func helperBuilder(string, mcp.ServerConfig) (mcp.LaunchSpec, error) {
	return mcp.LaunchSpec{
		Command: os.Args[0],
		Args:    []string{"-test.run=^TestAgentMCPHelper$"},
		Env:     map[string]string{helperEnv: "1"},
	}, nil
}

// staticPlanner returns a fixed plan.
type staticPlanner struct {
	steps []planner.Step
	err   error
}

func (p staticPlanner) Name() string { return "static" }

func (p staticPlanner) Plan(context.Context, string, []toolregistry.CatalogEntry) ([]planner.Step, error) {
	return p.steps, p.err
}

// scriptedProvider replies with queued responses in order and records requests.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*llm.Response
	requests  []llm.Request
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Chat(_ context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if len(p.responses) == 0 {
		return &llm.Response{}, nil
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

func mockTools() []toolregistry.LocalTool {
	return []toolregistry.LocalTool{
		toolregistry.Func{
			ToolName:        "mock_tool",
			ToolDescription: "A mock tool for testing",
			Handler: func(context.Context, map[string]any, *execctx.Context) (any, error) {
				return "test successful step 1", nil
			},
		},
		toolregistry.Func{
			ToolName:        "mock_tool_follow_up",
			ToolDescription: "A follow-up mock tool",
			Handler: func(context.Context, map[string]any, *execctx.Context) (any, error) {
				return "test successful step 2", nil
			},
		},
		toolregistry.Func{
			ToolName:        "broken",
			ToolDescription: "Always fails",
			Handler: func(context.Context, map[string]any, *execctx.Context) (any, error) {
				return nil, errors.New("broken on purpose")
			},
		},
	}
}

func newSystem(t *testing.T, cfg Config) *System {
	t.Helper()
	if cfg.Tools == nil {
		cfg.Tools = mockTools()
	}
	sys, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sys.Shutdown(ctx)
	})
	return sys
}

func TestNew_RegistersTools(t *testing.T) {
	sys := newSystem(t, Config{})

	tools := sys.AvailableTools()
	assert.Contains(t, tools, "echo")
	assert.Contains(t, tools, "context_get")
	assert.Contains(t, tools, "mock_tool")
	assert.Contains(t, tools, "mock_tool_follow_up")
	assert.Len(t, sys.Catalog(), len(tools))
	assert.Empty(t, sys.PlannerName())
}

func TestNew_ServerStartFailureAborts(t *testing.T) {
	_, err := New(context.Background(), Config{
		Servers: map[string]mcp.ServerConfig{"files": {Type: mcp.ServerTypeModule, Module: "files"}},
		ManagerOptions: []mcp.ManagerOption{mcp.WithCommandBuilder(func(string, mcp.ServerConfig) (mcp.LaunchSpec, error) {
			return mcp.LaunchSpec{}, errors.New("no interpreter")
		})},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start server files")
}

func TestNew_UnknownPlanner(t *testing.T) {
	_, err := New(context.Background(), Config{
		Client:      llm.NewClient(&scriptedProvider{}, "test-model"),
		PlannerKind: "guesswork",
	})

	assert.ErrorIs(t, err, flowerr.ErrConfig)
}

func TestExecuteTool_EchoThroughPool(t *testing.T) {
	sys := newSystem(t, Config{})

	out, err := sys.ExecuteTool(context.Background(), "echo", map[string]any{"text": "hello"}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"text": "hello"}, out)

	_, err = sys.ExecuteTool(context.Background(), "missing", map[string]any{}, nil)
	assert.ErrorIs(t, err, flowerr.ErrToolNotFound)
}

func TestPlanAndExecute_Sequential(t *testing.T) {
	sys := newSystem(t, Config{Planner: staticPlanner{steps: []planner.Step{
		{ToolName: "mock_tool", Params: map[string]any{}},
		{ToolName: "mock_tool_follow_up", Params: map[string]any{}},
	}}})

	result, err := sys.PlanAndExecute(context.Background(), "execute mocking tool and follow up")
	require.NoError(t, err)

	assert.Contains(t, result.Output, "test successful step 1")
	assert.Contains(t, result.Output, "test successful step 2")
	assert.Equal(t, []string{"mock_tool", "mock_tool_follow_up"}, result.ToolsUsed())
	assert.Equal(t, []string{InstructionKey, "1: mock_tool", "2: mock_tool_follow_up"}, result.Context.Keys())
	assert.Equal(t, "static", result.Planner)
}

func TestPlanAndExecute_StepsShareContext(t *testing.T) {
	sys := newSystem(t, Config{Planner: staticPlanner{steps: []planner.Step{
		{ToolName: "echo", Params: map[string]any{"text": "remember me"}},
		{ToolName: "context_get", Params: map[string]any{"key": "1: echo"}},
	}}})

	result, err := sys.PlanAndExecute(context.Background(), "recall")
	require.NoError(t, err)

	require.Len(t, result.Steps, 2)
	assert.Equal(t, map[string]any{"text": "remember me"}, result.Steps[1].Value)
}

func TestPlanAndExecute_StopsOnFailure(t *testing.T) {
	sys := newSystem(t, Config{Planner: staticPlanner{steps: []planner.Step{
		{ToolName: "broken", Params: map[string]any{}},
		{ToolName: "mock_tool", Params: map[string]any{}},
	}}})

	result, err := sys.PlanAndExecute(context.Background(), "fail early")
	require.Error(t, err)

	assert.ErrorIs(t, err, flowerr.ErrTool)
	assert.Contains(t, err.Error(), "step 1 (broken)")
	require.NotNil(t, result)
	assert.Len(t, result.Steps, 1)
}

func TestPlanAndExecute_ContinueOnError(t *testing.T) {
	sys := newSystem(t, Config{
		ContinueOnError: true,
		Planner: staticPlanner{steps: []planner.Step{
			{ToolName: "broken", Params: map[string]any{}},
			{ToolName: "mock_tool", Params: map[string]any{}},
		}},
	})

	result, err := sys.PlanAndExecute(context.Background(), "keep going")
	require.NoError(t, err)

	require.Len(t, result.Steps, 2)
	assert.Len(t, result.Failures(), 1)

	recorded, ok := result.Context.Get("1: broken")
	require.True(t, ok)
	assert.Contains(t, recorded.(map[string]any)["error"], "broken on purpose")

	value, _ := result.Context.Get("2: mock_tool")
	assert.Equal(t, "test successful step 1", value)
}

func TestPlanAndExecute_Parallel(t *testing.T) {
	sys := newSystem(t, Config{
		Parallel: true,
		Workers:  3,
		Planner: staticPlanner{steps: []planner.Step{
			{ToolName: "echo", Params: map[string]any{"text": "one"}},
			{ToolName: "echo", Params: map[string]any{"text": "two"}},
			{ToolName: "echo", Params: map[string]any{"text": "three"}},
		}},
	})

	result, err := sys.PlanAndExecute(context.Background(), "fan out")
	require.NoError(t, err)

	var values []any
	for i, s := range result.Steps {
		assert.Equal(t, i+1, s.Step)
		values = append(values, s.Value)
	}
	assert.Equal(t, []any{
		map[string]any{"text": "one"},
		map[string]any{"text": "two"},
		map[string]any{"text": "three"},
	}, values)
	assert.Equal(t, []string{InstructionKey, "1: echo", "2: echo", "3: echo"}, result.Context.Keys())
}

func sleepingTool(name string, d time.Duration) toolregistry.LocalTool {
	return toolregistry.Func{
		ToolName: name,
		Handler: func(ctx context.Context, _ map[string]any, _ *execctx.Context) (any, error) {
			select {
			case <-time.After(d):
				return name, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
}

func TestExecuteTool_RunsConcurrentlyAcrossWorkers(t *testing.T) {
	sys := newSystem(t, Config{
		Workers: 4,
		Tools: []toolregistry.LocalTool{
			sleepingTool("nap_a", 300*time.Millisecond),
			sleepingTool("nap_b", 300*time.Millisecond),
		},
	})
	assert.Equal(t, 4, sys.tools.Len())

	start := time.Now()
	var wg sync.WaitGroup
	for _, name := range []string{"nap_a", "nap_b"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			out, err := sys.ExecuteTool(context.Background(), name, map[string]any{}, nil)
			assert.NoError(t, err)
			assert.Equal(t, name, out)
		}(name)
	}
	wg.Wait()

	assert.Less(t, time.Since(start), 550*time.Millisecond)
}

func TestPlanAndExecute_ParallelStepsOverlap(t *testing.T) {
	sys := newSystem(t, Config{
		Parallel: true,
		Workers:  3,
		Tools:    []toolregistry.LocalTool{sleepingTool("nap", 300*time.Millisecond)},
		Planner: staticPlanner{steps: []planner.Step{
			{ToolName: "nap", Params: map[string]any{}},
			{ToolName: "nap", Params: map[string]any{}},
			{ToolName: "nap", Params: map[string]any{}},
		}},
	})

	start := time.Now()
	result, err := sys.PlanAndExecute(context.Background(), "nap three times")
	require.NoError(t, err)
	require.Len(t, result.Steps, 3)
	assert.Less(t, time.Since(start), 800*time.Millisecond)
}

func TestExecuteTool_TaskTimeoutReachesTool(t *testing.T) {
	observed := make(chan error, 1)
	waiter := toolregistry.Func{
		ToolName: "waiter",
		Handler: func(ctx context.Context, _ map[string]any, _ *execctx.Context) (any, error) {
			select {
			case <-ctx.Done():
				observed <- ctx.Err()
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
				observed <- nil
				return "late", nil
			}
		},
	}
	sys := newSystem(t, Config{
		Workers:     1,
		TaskTimeout: 100 * time.Millisecond,
		Tools:       []toolregistry.LocalTool{waiter},
	})

	_, err := sys.ExecuteTool(context.Background(), "waiter", map[string]any{}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case err := <-observed:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("tool did not see the task timeout")
	}

	start := time.Now()
	out, err := sys.ExecuteTool(context.Background(), "echo", map[string]any{"text": "next"}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"text": "next"}, out)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestExecuteTool_CallerCancellationReachesTool(t *testing.T) {
	started := make(chan struct{})
	observed := make(chan error, 1)
	blocker := toolregistry.Func{
		ToolName: "blocker",
		Handler: func(ctx context.Context, _ map[string]any, _ *execctx.Context) (any, error) {
			close(started)
			<-ctx.Done()
			observed <- ctx.Err()
			return nil, ctx.Err()
		},
	}
	sys := newSystem(t, Config{Tools: []toolregistry.LocalTool{blocker}})

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := sys.ExecuteTool(ctx, "blocker", map[string]any{}, nil)
		errs <- err
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("tool never started")
	}
	cancel()

	select {
	case err := <-observed:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("tool did not see the cancellation")
	}
	assert.ErrorIs(t, <-errs, context.Canceled)
}

func TestPlanAndExecute_TruncatesToMaxSteps(t *testing.T) {
	steps := make([]planner.Step, 5)
	for i := range steps {
		steps[i] = planner.Step{ToolName: "mock_tool", Params: map[string]any{}}
	}
	sys := newSystem(t, Config{MaxSteps: 2, Planner: staticPlanner{steps: steps}})

	result, err := sys.PlanAndExecute(context.Background(), "too much")
	require.NoError(t, err)

	assert.Len(t, result.Plan, 2)
	assert.Len(t, result.Steps, 2)
}

func TestPlanAndExecute_PlanningErrors(t *testing.T) {
	t.Run("no planner", func(t *testing.T) {
		sys := newSystem(t, Config{})

		_, err := sys.PlanAndExecute(context.Background(), "anything")
		assert.ErrorIs(t, err, flowerr.ErrConfig)
	})

	t.Run("planner failure", func(t *testing.T) {
		sys := newSystem(t, Config{Planner: staticPlanner{
			err: flowerr.Planning("test.plan", "model unavailable", nil),
		}})

		result, err := sys.PlanAndExecute(context.Background(), "anything")
		assert.ErrorIs(t, err, flowerr.ErrPlanning)
		require.NotNil(t, result)
		assert.Empty(t, result.Steps)
	})
}

func TestPlanAndExecute_PlansAndSynthesizesWithLLM(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "echo", Arguments: map[string]any{"text": "hello"}}}},
		{Content: "The echo said hello."},
	}}
	sys := newSystem(t, Config{
		Client:     llm.NewClient(provider, "test-model"),
		Synthesize: true,
	})
	require.Equal(t, planner.KindMultiStep, sys.PlannerName())

	result, err := sys.PlanAndExecute(context.Background(), "say hello")
	require.NoError(t, err)

	assert.Equal(t, "The echo said hello.", result.Output)
	require.Len(t, provider.requests, 2)

	var offered []string
	for _, tool := range provider.requests[0].Tools {
		offered = append(offered, tool.Name)
	}
	assert.Contains(t, offered, "echo")

	synthesis := provider.requests[1]
	assert.Empty(t, synthesis.Tools)
	require.Len(t, synthesis.Messages, 2)
	assert.Contains(t, synthesis.Messages[1].Content, "say hello")
	assert.Contains(t, synthesis.Messages[1].Content, `"1: echo"`)
}

func TestPlanAndExecute_Timeout(t *testing.T) {
	slow := toolregistry.Func{
		ToolName: "slow",
		Handler: func(context.Context, map[string]any, *execctx.Context) (any, error) {
			time.Sleep(300 * time.Millisecond)
			return "late", nil
		},
	}
	sys := newSystem(t, Config{
		Tools:   []toolregistry.LocalTool{slow},
		Timeout: 50 * time.Millisecond,
		Planner: staticPlanner{steps: []planner.Step{{ToolName: "slow", Params: map[string]any{}}}},
	})

	_, err := sys.PlanAndExecute(context.Background(), "wait")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestShutdown(t *testing.T) {
	sys, err := New(context.Background(), Config{Tools: mockTools()})
	require.NoError(t, err)

	require.NoError(t, sys.Shutdown(context.Background()))
	require.NoError(t, sys.Shutdown(context.Background()))

	_, err = sys.ExecuteTool(context.Background(), "echo", map[string]any{"text": "late"}, nil)
	assert.ErrorIs(t, err, flowerr.ErrPoolShutDown)
}

func TestSystem_EndToEndWithMCPServer(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns a subprocess")
	}

	sys := newSystem(t, Config{
		Servers:        map[string]mcp.ServerConfig{"shouter": {Type: mcp.ServerTypeModule, Module: "shouter"}},
		ManagerOptions: []mcp.ManagerOption{mcp.WithCommandBuilder(helperBuilder)},
		Planner: staticPlanner{steps: []planner.Step{
			{ToolName: "shout", Params: map[string]any{"text": "hi"}},
			{ToolName: "shouter::echo", Params: map[string]any{"text": "remote"}},
			{ToolName: "echo", Params: map[string]any{"text": "local"}},
		}},
	})

	assert.Contains(t, sys.AvailableTools(), "shout")
	assert.Contains(t, sys.AvailableTools(), "shouter::echo")

	statuses := sys.ServerStatuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "shouter", statuses[0].Name)
	assert.Empty(t, sys.CheckHealth(context.Background()))

	result, err := sys.PlanAndExecute(context.Background(), "shout and echo")
	require.NoError(t, err)
	require.Len(t, result.Steps, 3)

	assert.Equal(t, map[string]any{"tool": "shout", "text": "hi!"}, result.Steps[0].Value)
	assert.Equal(t, map[string]any{"tool": "echo", "text": "remote!"}, result.Steps[1].Value)
	assert.Equal(t, map[string]any{"text": "local"}, result.Steps[2].Value)
}
