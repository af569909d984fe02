package toolregistry

import (
	"context"

	"github.com/harun/agentflow/pkg/execctx"
	"github.com/harun/agentflow/pkg/mcp"
)

// LocalTool is an in-process tool.
type LocalTool interface {
	Name() string
	Description() string
	ParameterSchema() map[string]any
	Execute(ctx context.Context, params map[string]any, ec *execctx.Context) (any, error)
}

// HandlerFunc is the signature of a function-backed local tool.
type HandlerFunc func(ctx context.Context, params map[string]any, ec *execctx.Context) (any, error)

// Func adapts a function and its metadata into a LocalTool.
type Func struct {
	ToolName        string
	ToolDescription string
	Schema          map[string]any
	Handler         HandlerFunc
}

func (f Func) Name() string                    { return f.ToolName }
func (f Func) Description() string             { return f.ToolDescription }
func (f Func) ParameterSchema() map[string]any { return f.Schema }

func (f Func) Execute(ctx context.Context, params map[string]any, ec *execctx.Context) (any, error) {
	return f.Handler(ctx, params, ec)
}

// Remote is the call-through target for tools served by MCP servers.
type Remote interface {
	ActiveServerNames() []string
	ListTools(ctx context.Context, server string) ([]mcp.Tool, error)
	CallTool(ctx context.Context, server, tool string, params map[string]any) (any, error)
}

var _ Remote = (*mcp.Manager)(nil)

// Descriptor describes one entry of the namespace.
type Descriptor interface {
	Key() string
	isDescriptor()
}

// LocalDescriptor describes an in-process tool.
type LocalDescriptor struct {
	Name        string
	Description string
	Schema      map[string]any
}

// RemoteDescriptor describes a tool served by an MCP server. Name is the
// registry key, ToolName the server-side name.
type RemoteDescriptor struct {
	Name        string
	Description string
	Schema      map[string]any
	ServerName  string
	ToolName    string
}

func (d LocalDescriptor) Key() string  { return d.Name }
func (d RemoteDescriptor) Key() string { return d.Name }

func (LocalDescriptor) isDescriptor()  {}
func (RemoteDescriptor) isDescriptor() {}

// CatalogEntry is the planner-facing function description.
type CatalogEntry struct {
	Type     string          `json:"type"`
	Function CatalogFunction `json:"function"`
}

type CatalogFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

func catalogEntry(d Descriptor) CatalogEntry {
	var fn CatalogFunction
	switch v := d.(type) {
	case LocalDescriptor:
		fn = CatalogFunction{Name: v.Name, Description: v.Description, Parameters: v.Schema}
	case RemoteDescriptor:
		fn = CatalogFunction{Name: v.Name, Description: v.Description, Parameters: v.Schema}
	}
	if fn.Parameters == nil {
		fn.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return CatalogEntry{Type: "function", Function: fn}
}
