package actor

import (
	"context"

	"github.com/harun/agentflow/pkg/execctx"
	"github.com/harun/agentflow/pkg/flowerr"
	"github.com/harun/agentflow/pkg/oneshot"
)

// Handle is the send side of an actor's inbox. Copies share the same inbox.
type Handle struct {
	id      ActorID
	mb      *mailbox
	done    <-chan struct{}
	metrics Metrics
}

// ID returns the actor's identifier.
func (h Handle) ID() ActorID { return h.id }

// Send enqueues msg without waiting for it to be handled. It fails only when
// the inbox is closed, in which case msg's reply is dropped.
func (h Handle) Send(msg Message) error {
	if h.mb == nil {
		dropReply(msg)
		return flowerr.ErrInboxClosed
	}
	depth, err := h.mb.push(msg)
	if err != nil {
		dropReply(msg)
		return err
	}
	if h.metrics != nil {
		h.metrics.InboxDepth(h.id, depth)
	}
	return nil
}

// Done is closed when the actor loop has exited.
func (h Handle) Done() <-chan struct{} {
	if h.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return h.done
}

// Alive reports whether the inbox still accepts messages.
func (h Handle) Alive() bool {
	return h.mb != nil && !h.mb.isClosed()
}

// Stop sends Shutdown and waits for the loop to exit.
func (h Handle) Stop(ctx context.Context) error {
	_ = h.Send(Shutdown{})
	select {
	case <-h.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call sends the message built around a fresh reply and waits for the answer.
func Call[T any](ctx context.Context, h Handle, build func(reply *oneshot.Reply[T]) Message) (T, error) {
	reply := oneshot.New[T]()
	if err := h.Send(build(reply)); err != nil {
		var zero T
		return zero, err
	}
	return reply.Wait(ctx)
}

// HealthCheck asks the actor whether it is healthy.
func (h Handle) HealthCheck(ctx context.Context) (bool, error) {
	return Call(ctx, h, func(reply *oneshot.Reply[bool]) Message {
		return HealthCheck{Reply: reply}
	})
}

// ExecuteTool asks the actor to run a tool and returns the tool's output.
func (h Handle) ExecuteTool(ctx context.Context, name string, params map[string]any, ec *execctx.Context) (any, error) {
	res, err := Call(ctx, h, func(reply *oneshot.Reply[ToolResult]) Message {
		return ExecuteTool{Ctx: ctx, Name: name, Params: params, Context: ec, Reply: reply}
	})
	if err != nil {
		return nil, err
	}
	return res.Value, res.Err
}
