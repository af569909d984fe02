package workerpool

import (
	"context"
	"time"

	"github.com/harun/agentflow/pkg/execctx"
)

// Executor runs one tool invocation.
type Executor interface {
	Execute(ctx context.Context, name string, params map[string]any, ec *execctx.Context) (any, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, name string, params map[string]any, ec *execctx.Context) (any, error)

func (f ExecutorFunc) Execute(ctx context.Context, name string, params map[string]any, ec *execctx.Context) (any, error) {
	return f(ctx, name, params, ec)
}

// Task is one plan step queued for execution. A nil Context gets a fresh
// execution context on the worker.
type Task struct {
	ID       string
	ToolName string
	Params   map[string]any
	Context  *execctx.Context
}

// Result is the outcome of a task. Err holds both handler errors and
// pool-level failures reported through SubmitMany.
type Result struct {
	TaskID   string
	ToolName string
	Value    any
	Err      error
	Duration time.Duration
}

// State is the lifecycle stage of a Pool.
type State int32

const (
	StateActive State = iota
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
