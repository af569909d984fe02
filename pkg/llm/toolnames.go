package llm

import (
	"fmt"
	"strings"
)

// maxToolNameLen is the longest function name both OpenAI and Anthropic accept.
const maxToolNameLen = 64

// toolNames maps catalog tool names to names the provider APIs accept
// (letters, digits, '_' and '-', at most 64 characters) and back again.
// Names that already qualify are sent unchanged.
type toolNames struct {
	toWire   map[string]string
	fromWire map[string]string
}

func newToolNames(tools []Tool) *toolNames {
	n := &toolNames{
		toWire:   make(map[string]string, len(tools)),
		fromWire: make(map[string]string, len(tools)),
	}
	// Valid names claim their wire form first so encoded names never take it.
	for _, tool := range tools {
		if validToolName(tool.Name) {
			n.add(tool.Name, tool.Name)
		}
	}
	for _, tool := range tools {
		if _, done := n.toWire[tool.Name]; done {
			continue
		}
		base := sanitizeToolName(tool.Name)
		wire := base
		for i := 2; n.fromWire[wire] != ""; i++ {
			suffix := fmt.Sprintf("_%d", i)
			wire = truncateName(base, maxToolNameLen-len(suffix)) + suffix
		}
		n.add(tool.Name, wire)
	}
	return n
}

func (n *toolNames) add(name, wire string) {
	n.toWire[name] = wire
	n.fromWire[wire] = name
}

// wire returns the name to send for a catalog name.
func (n *toolNames) wire(name string) string {
	if w, ok := n.toWire[name]; ok {
		return w
	}
	return sanitizeToolName(name)
}

// catalog returns the catalog name for a name the model sent back.
func (n *toolNames) catalog(wire string) string {
	if name, ok := n.fromWire[wire]; ok {
		return name
	}
	return wire
}

func validToolName(name string) bool {
	if name == "" || len(name) > maxToolNameLen {
		return false
	}
	for _, r := range name {
		if !toolNameRune(r) {
			return false
		}
	}
	return true
}

func toolNameRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-'
}

// sanitizeToolName turns "server::tool" into "server__tool" and replaces any
// other character the APIs reject with '_'.
func sanitizeToolName(name string) string {
	name = strings.ReplaceAll(name, "::", "__")
	var b strings.Builder
	for _, r := range name {
		if toolNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" {
		out = "tool"
	}
	return truncateName(out, maxToolNameLen)
}

func truncateName(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
