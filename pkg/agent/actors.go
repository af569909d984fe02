package agent

import (
	"context"

	"github.com/harun/agentflow/pkg/actor"
	"github.com/harun/agentflow/pkg/execctx"
)

// toolActors lends an idle tool actor to each pool task. The pool has as
// many workers as there are actors, so a worker only waits for an actor
// that is still busy with a call its caller already gave up on.
type toolActors struct {
	idle chan actor.Handle
}

func newToolActors(handles []actor.Handle) *toolActors {
	idle := make(chan actor.Handle, len(handles))
	for _, h := range handles {
		idle <- h
	}
	return &toolActors{idle: idle}
}

// Execute runs the tool on an idle actor under ctx.
func (g *toolActors) Execute(ctx context.Context, name string, params map[string]any, ec *execctx.Context) (any, error) {
	var h actor.Handle
	select {
	case h = <-g.idle:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	out, err := h.ExecuteTool(ctx, name, params, ec)
	if ctx.Err() == nil {
		g.idle <- h
		return out, err
	}

	// The actor may still be inside a tool that ignores ctx. A health check
	// queues behind it, so the actor is lent out again only once it is free.
	go func() {
		_, _ = h.HealthCheck(context.Background())
		g.idle <- h
	}()
	return out, err
}

// Len returns the number of actors in the group.
func (g *toolActors) Len() int { return cap(g.idle) }
