// Package execctx holds the shared results of a single top-level request.
//
// Invariants:
// - Set overwrites an existing value but keeps its first-insertion position.
// - All methods are safe for concurrent use.
//
// Usage:
//
//	ec := execctx.New()
//	ec.Record(1, "echo", map[string]any{"text": "hi"})
//	v, ok := ec.Get("1: echo")
package execctx

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Context is an ordered, concurrency-safe string-keyed value store.
type Context struct {
	mu     sync.RWMutex
	values map[string]any
	order  []string
}

// New creates an empty Context.
func New() *Context {
	return &Context{values: make(map[string]any)}
}

// StepKey returns the conventional key for a plan step result.
func StepKey(step int, toolName string) string {
	return fmt.Sprintf("%d: %s", step, toolName)
}

// Set stores value under key.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.values[key]; !exists {
		c.order = append(c.order, key)
	}
	c.values[key] = value
}

// Record stores a step result under StepKey(step, toolName).
func (c *Context) Record(step int, toolName string, value any) {
	c.Set(StepKey(step, toolName), value)
}

// Get returns the value stored under key.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.values[key]
	return v, ok
}

// Keys returns keys in first-insertion order.
func (c *Context) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Len returns the number of stored keys.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Entry is one key/value pair of a Snapshot.
type Entry struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Snapshot returns a copy of all entries in first-insertion order.
func (c *Context) Snapshot() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, Entry{Key: k, Value: c.values[k]})
	}
	return out
}

// Map returns an unordered copy of the stored values.
func (c *Context) Map() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the context as an ordered array of entries.
func (c *Context) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Snapshot())
}
