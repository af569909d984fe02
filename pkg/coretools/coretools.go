// Package coretools provides the built-in local tools.
package coretools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/harun/agentflow/pkg/execctx"
	"github.com/harun/agentflow/pkg/toolregistry"
)

const (
	// DefaultMaxReadBytes caps read_file output when the caller sets no limit.
	DefaultMaxReadBytes = 200000
	// MaxReadBytesLimit is the largest max_bytes read_file honours.
	MaxReadBytesLimit = 10 << 20
)

// Options configures core tool registration.
type Options struct {
	// WorkspaceRoot enables read_file, scoped to this directory.
	WorkspaceRoot string
}

// Tools returns the built-in tools for opts.
func Tools(opts Options) []toolregistry.LocalTool {
	tools := []toolregistry.LocalTool{EchoTool(), ContextGetTool()}
	if opts.WorkspaceRoot != "" {
		tools = append(tools, ReadFileTool(opts.WorkspaceRoot))
	}
	return tools
}

// Register adds the built-in tools to reg.
func Register(reg *toolregistry.Registry, opts Options) error {
	if reg == nil {
		return errors.New("tool registry is required")
	}
	for _, tool := range Tools(opts) {
		reg.RegisterLocal(tool)
	}
	return nil
}

// EchoTool returns its parameters unchanged.
func EchoTool() toolregistry.LocalTool {
	return toolregistry.Func{
		ToolName:        "echo",
		ToolDescription: "Echo the given text back.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string", "description": "Text to echo"},
			},
			"required": []any{"text"},
		},
		Handler: func(_ context.Context, params map[string]any, _ *execctx.Context) (any, error) {
			return params, nil
		},
	}
}

// ContextGetTool reads a value recorded earlier in the request's execution
// context, for example the output of step "1: echo".
func ContextGetTool() toolregistry.LocalTool {
	return toolregistry.Func{
		ToolName:        "context_get",
		ToolDescription: "Read a value recorded by an earlier step. Keys look like \"1: tool_name\".",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"key": map[string]any{"type": "string", "description": "Execution context key"},
			},
			"required": []any{"key"},
		},
		Handler: func(_ context.Context, params map[string]any, ec *execctx.Context) (any, error) {
			key, _ := params["key"].(string)
			if ec == nil {
				return nil, fmt.Errorf("no execution context available")
			}
			value, ok := ec.Get(key)
			if !ok {
				return nil, fmt.Errorf("context key %q not found (known keys: %s)", key, strings.Join(ec.Keys(), ", "))
			}
			return value, nil
		},
	}
}

// ReadFileTool reads a file under workspaceRoot.
func ReadFileTool(workspaceRoot string) toolregistry.LocalTool {
	return toolregistry.Func{
		ToolName:        "read_file",
		ToolDescription: "Read a file from the workspace.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":      map[string]any{"type": "string", "description": "Relative file path"},
				"max_bytes": map[string]any{"type": "integer", "minimum": 1, "description": "Maximum bytes to read (default 200000)"},
			},
			"required": []any{"path"},
		},
		Handler: func(_ context.Context, params map[string]any, _ *execctx.Context) (any, error) {
			pathValue, _ := params["path"].(string)
			target, err := resolvePathInWorkspace(workspaceRoot, pathValue)
			if err != nil {
				return nil, err
			}

			maxBytes := readLimit(params["max_bytes"])

			data, truncated, err := readFileWithLimit(target, maxBytes)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"path":      pathValue,
				"content":   string(data),
				"truncated": truncated,
				"bytes":     len(data),
			}, nil
		},
	}
}

// readLimit turns a caller-supplied max_bytes into a limit in
// [1, MaxReadBytesLimit]. Missing or non-numeric values use the default.
func readLimit(raw any) int64 {
	var n float64
	switch v := raw.(type) {
	case float64:
		n = v
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	default:
		return DefaultMaxReadBytes
	}
	switch {
	case math.IsNaN(n) || n < 1:
		return DefaultMaxReadBytes
	case n > MaxReadBytesLimit:
		return MaxReadBytesLimit
	default:
		return int64(n)
	}
}

func readFileWithLimit(path string, limit int64) ([]byte, bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > limit {
		return data[:limit], true, nil
	}
	return data, false, nil
}

func resolvePathInWorkspace(workspaceRoot, pathValue string) (string, error) {
	pathValue = strings.TrimSpace(pathValue)
	if pathValue == "" {
		return "", fmt.Errorf("path is required")
	}
	if strings.Contains(pathValue, "://") {
		return "", fmt.Errorf("path must be a local file")
	}

	root := filepath.Clean(workspaceRoot)
	candidate := pathValue
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(root, candidate)
	}
	candidate = filepath.Clean(candidate)

	if !within(root, candidate) {
		return "", fmt.Errorf("path %q is outside workspace root", pathValue)
	}

	// Symlinks inside the root must not lead out of it.
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", err
	}
	realCandidate, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		return "", err
	}
	if !within(realRoot, realCandidate) {
		return "", fmt.Errorf("path %q is outside workspace root", pathValue)
	}
	return realCandidate, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
