package actor

import (
	"context"

	"github.com/harun/agentflow/pkg/execctx"
	"github.com/harun/agentflow/pkg/oneshot"
)

// Message is the closed set of messages an actor accepts.
type Message interface {
	isMessage()
}

// ToolResult is the reply payload of ExecuteTool. Err carries the tool's own
// failure; transport failures are reported by Call.
type ToolResult struct {
	Value any
	Err   error
}

// ExecuteTool asks the actor to run a named tool. Ctx is the caller's
// context; the tool runs under it so deadlines and cancellation reach the
// handler. A nil Ctx falls back to the actor's own context.
type ExecuteTool struct {
	Ctx     context.Context
	Name    string
	Params  map[string]any
	Context *execctx.Context
	Reply   *oneshot.Reply[ToolResult]
}

// HealthCheck asks the actor to report liveness.
type HealthCheck struct {
	Reply *oneshot.Reply[bool]
}

// Shutdown ends the actor loop after all earlier messages are handled.
type Shutdown struct{}

func (ExecuteTool) isMessage() {}
func (HealthCheck) isMessage() {}
func (Shutdown) isMessage()    {}

func messageType(msg Message) string {
	switch msg.(type) {
	case ExecuteTool:
		return "execute_tool"
	case HealthCheck:
		return "health_check"
	case Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// dropReply drops the reply carried by msg, if any. Completed replies are untouched.
func dropReply(msg Message) {
	switch m := msg.(type) {
	case ExecuteTool:
		m.Reply.Drop()
	case HealthCheck:
		m.Reply.Drop()
	case Shutdown:
	}
}
