package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ClientInfo identifies this client when opening an MCP session.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ServerInfo describes the connected MCP server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Tool describes one tool advertised by tools/list.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

func toolFromSDK(t *sdk.Tool) (Tool, error) {
	out := Tool{Name: t.Name, Description: t.Description}
	if t.InputSchema == nil {
		return out, nil
	}
	raw, err := json.Marshal(t.InputSchema)
	if err != nil {
		return Tool{}, fmt.Errorf("encode input schema of %s: %w", t.Name, err)
	}
	if err := json.Unmarshal(raw, &out.InputSchema); err != nil {
		return Tool{}, fmt.Errorf("input schema of %s is not an object: %w", t.Name, err)
	}
	return out, nil
}

// resultEmpty reports whether the result carries no payload at all.
func resultEmpty(r *sdk.CallToolResult) bool {
	return len(r.Content) == 0 && r.StructuredContent == nil
}

// resultText concatenates the text blocks of the result.
func resultText(r *sdk.CallToolResult) string {
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		if tc, ok := c.(*sdk.TextContent); ok && tc.Text != "" {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// resultValue converts a result into the value handed back to tool callers:
// structured content when present, otherwise the joined text blocks,
// otherwise the content blocks in their JSON form.
func resultValue(r *sdk.CallToolResult) (any, error) {
	if r.StructuredContent != nil {
		return r.StructuredContent, nil
	}
	if len(r.Content) == 0 {
		return nil, nil
	}
	allText := true
	for _, c := range r.Content {
		if _, ok := c.(*sdk.TextContent); !ok {
			allText = false
			break
		}
	}
	if allText {
		return resultText(r), nil
	}

	raw, err := json.Marshal(r.Content)
	if err != nil {
		return nil, fmt.Errorf("encode content blocks: %w", err)
	}
	var blocks []any
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, fmt.Errorf("decode content blocks: %w", err)
	}
	return blocks, nil
}
