package actor

import (
	"context"

	"github.com/harun/agentflow/pkg/execctx"
)

// Executor runs a named tool.
type Executor interface {
	Execute(ctx context.Context, name string, params map[string]any, ec *execctx.Context) (any, error)
}

// ToolActor serves ExecuteTool through an Executor and always reports healthy.
type ToolActor struct {
	Base
	exec Executor
}

// NewToolActor creates a ToolActor backed by exec.
func NewToolActor(exec Executor) *ToolActor {
	return &ToolActor{exec: exec}
}

func (t *ToolActor) HandleMessage(ctx context.Context, msg Message) error {
	switch m := msg.(type) {
	case ExecuteTool:
		if m.Ctx != nil {
			ctx = m.Ctx
		}
		if err := ctx.Err(); err != nil {
			m.Reply.Send(ToolResult{Err: err})
			return err
		}
		out, err := t.exec.Execute(ctx, m.Name, m.Params, m.Context)
		m.Reply.Send(ToolResult{Value: out, Err: err})
		return err
	case HealthCheck:
		m.Reply.Send(true)
	case Shutdown:
	}
	return nil
}
