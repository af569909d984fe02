package planner

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/harun/agentflow/pkg/flowerr"
	"github.com/harun/agentflow/pkg/llm"
	"github.com/harun/agentflow/pkg/toolregistry"
	"github.com/rs/zerolog/log"
)

// Planner kinds accepted by New.
const (
	KindMultiStep      = "multi_step"
	KindChainOfThought = "chain_of_thought"
	KindHTN            = "htn"
	KindMonteCarlo     = "monte_carlo"
)

const (
	// DefaultSimulations is the Monte-Carlo sample count when none is given.
	DefaultSimulations = 3
	// SimulationTemperature widens sampling for Monte-Carlo simulations.
	SimulationTemperature = 0.9
)

// Step is one planned tool invocation.
type Step struct {
	ToolName string         `json:"tool_name"`
	Params   map[string]any `json:"params"`
}

func (s Step) String() string {
	return fmt.Sprintf("Step{tool: %s, params: %v}", s.ToolName, s.Params)
}

// Planner produces an ordered plan for task using tools from catalog.
type Planner interface {
	Plan(ctx context.Context, task string, catalog []toolregistry.CatalogEntry) ([]Step, error)
	Name() string
}

// New returns the planner for kind. simulations only applies to KindMonteCarlo.
func New(kind string, client *llm.Client, simulations int) (Planner, error) {
	switch strings.ToLower(kind) {
	case "", KindMultiStep:
		return NewMultiStep(client), nil
	case KindChainOfThought:
		return NewChainOfThought(client), nil
	case KindHTN:
		return NewHTN(client), nil
	case KindMonteCarlo:
		return NewMonteCarlo(client, simulations), nil
	default:
		return nil, flowerr.Config("planner.new", fmt.Sprintf("unknown planner: %s", kind), nil)
	}
}

// MultiStep asks for the whole plan in a single tool-calling request.
type MultiStep struct {
	client *llm.Client
}

func NewMultiStep(client *llm.Client) *MultiStep { return &MultiStep{client: client} }

func (p *MultiStep) Name() string { return KindMultiStep }

func (p *MultiStep) Plan(ctx context.Context, task string, catalog []toolregistry.CatalogEntry) ([]Step, error) {
	resp, err := p.client.Chat(ctx, []llm.Message{
		llm.SystemMessage("Analyze the task and create a multi-step plan."),
		llm.UserMessage(task),
	}, Tools(catalog))
	if err != nil {
		return nil, flowerr.Planning("planner.multi_step", "plan request failed", err)
	}
	return stepsFrom(resp), nil
}

// ChainOfThought reasons about the task before planning.
type ChainOfThought struct {
	client *llm.Client
}

func NewChainOfThought(client *llm.Client) *ChainOfThought { return &ChainOfThought{client: client} }

func (p *ChainOfThought) Name() string { return KindChainOfThought }

func (p *ChainOfThought) Plan(ctx context.Context, task string, catalog []toolregistry.CatalogEntry) ([]Step, error) {
	const op = "planner.chain_of_thought"

	thought, err := p.client.Chat(ctx, []llm.Message{
		llm.SystemMessage("Provide a detailed chain-of-thought analysis before forming a plan."),
		llm.UserMessage(fmt.Sprintf("Task: %s\nChain-of-Thought:", task)),
	}, nil)
	if err != nil {
		return nil, flowerr.Planning(op, "reasoning request failed", err)
	}

	prompt := fmt.Sprintf(
		"Based on the following chain-of-thought, generate a multi-step plan with tool calls in JSON format.\n\nChain-of-Thought:\n%s\n\nPlan:",
		thought.Content,
	)
	resp, err := p.client.Chat(ctx, []llm.Message{
		llm.SystemMessage("Generate a multi-step plan using the provided chain-of-thought."),
		llm.UserMessage(prompt),
	}, Tools(catalog))
	if err != nil {
		return nil, flowerr.Planning(op, "plan request failed", err)
	}
	return stepsFrom(resp), nil
}

// HTN decomposes the task into a hierarchy of subtasks, then refines the
// hierarchy into primitive tool calls.
type HTN struct {
	client *llm.Client
}

func NewHTN(client *llm.Client) *HTN { return &HTN{client: client} }

func (p *HTN) Name() string { return KindHTN }

func (p *HTN) Plan(ctx context.Context, task string, catalog []toolregistry.CatalogEntry) ([]Step, error) {
	const op = "planner.htn"

	hierarchy, err := p.client.Chat(ctx, []llm.Message{
		llm.SystemMessage("You are an HTN planner. Decompose the high-level task into logical subtasks."),
		llm.UserMessage(fmt.Sprintf("Task: %s\nDecompose this into a hierarchy of subtasks:", task)),
	}, nil)
	if err != nil {
		return nil, flowerr.Planning(op, "decomposition request failed", err)
	}

	resp, err := p.client.Chat(ctx, []llm.Message{
		llm.SystemMessage("Based on the task hierarchy, generate a concrete execution plan using available tools."),
		llm.UserMessage(fmt.Sprintf(
			"Task: %s\n\nTask Hierarchy:\n%s\n\nGenerate a detailed plan using tool calls that implements this hierarchy:",
			task, hierarchy.Content,
		)),
	}, Tools(catalog))
	if err != nil {
		return nil, flowerr.Planning(op, "refinement request failed", err)
	}
	return stepsFrom(resp), nil
}

// MonteCarlo samples several candidate plans and keeps the best by score.
// A plan scores 1/len(plan); an empty plan scores 0.
type MonteCarlo struct {
	client      *llm.Client
	simulations int
}

func NewMonteCarlo(client *llm.Client, simulations int) *MonteCarlo {
	if simulations <= 0 {
		simulations = DefaultSimulations
	}
	return &MonteCarlo{client: client.WithTemperature(SimulationTemperature), simulations: simulations}
}

func (p *MonteCarlo) Name() string { return KindMonteCarlo }

func (p *MonteCarlo) Plan(ctx context.Context, task string, catalog []toolregistry.CatalogEntry) ([]Step, error) {
	tools := Tools(catalog)

	var best []Step
	bestScore := math.Inf(-1)
	for i := 0; i < p.simulations; i++ {
		resp, err := p.client.Chat(ctx, []llm.Message{
			llm.SystemMessage("Simulate a potential plan for task execution using Monte Carlo Tree Search."),
			llm.UserMessage(fmt.Sprintf("Task: %s", task)),
		}, tools)
		if err != nil {
			return nil, flowerr.Planning("planner.monte_carlo", fmt.Sprintf("simulation %d failed", i+1), err)
		}

		steps := stepsFrom(resp)
		score := Score(steps)
		log.Debug().Int("simulation", i+1).Int("steps", len(steps)).Float64("score", score).Msg("Simulated plan")
		if score > bestScore {
			bestScore = score
			best = steps
		}
	}
	return best, nil
}

// Score rates a plan; shorter plans score higher.
func Score(steps []Step) float64 {
	if len(steps) == 0 {
		return 0
	}
	return 1 / float64(len(steps))
}

// Tools converts a registry catalog into LLM tool definitions.
func Tools(catalog []toolregistry.CatalogEntry) []llm.Tool {
	if len(catalog) == 0 {
		return nil
	}
	tools := make([]llm.Tool, 0, len(catalog))
	for _, entry := range catalog {
		tools = append(tools, llm.Tool{
			Name:        entry.Function.Name,
			Description: entry.Function.Description,
			Parameters:  entry.Function.Parameters,
		})
	}
	return tools
}

func stepsFrom(resp *llm.Response) []Step {
	steps := make([]Step, 0, len(resp.ToolCalls))
	for _, call := range resp.ToolCalls {
		params := call.Arguments
		if params == nil {
			params = map[string]any{}
		}
		steps = append(steps, Step{ToolName: call.Name, Params: params})
	}
	return steps
}
