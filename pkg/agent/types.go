package agent

import (
	"time"

	"github.com/harun/agentflow/pkg/execctx"
	"github.com/harun/agentflow/pkg/planner"
)

// StepResult is the outcome of one plan step.
type StepResult struct {
	Step     int
	ToolName string
	Params   map[string]any
	Value    any
	Err      error
	Duration time.Duration
}

// Failed reports whether the step returned an error.
func (s StepResult) Failed() bool { return s.Err != nil }

// RunResult is what PlanAndExecute returns. Output is the synthesized answer,
// or the execution context rendered as JSON when synthesis is off.
type RunResult struct {
	Task     string
	Planner  string
	Plan     []planner.Step
	Steps    []StepResult
	Context  *execctx.Context
	Output   string
	Duration time.Duration
}

// ToolsUsed returns the tool name of every executed step in plan order.
func (r RunResult) ToolsUsed() []string {
	out := make([]string, 0, len(r.Steps))
	for _, s := range r.Steps {
		out = append(out, s.ToolName)
	}
	return out
}

// Failures returns the steps that returned an error.
func (r RunResult) Failures() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if s.Failed() {
			out = append(out, s)
		}
	}
	return out
}
