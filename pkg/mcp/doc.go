// Package mcp launches Model Context Protocol servers as subprocesses and
// holds one client session per server over stdio, built on the MCP Go SDK.
//
// Invariants:
// - A server is recorded as running only after its handshake succeeds.
// - Stopping a server closes stdin, waits a grace period, then kills and reaps it.
// - A server turns errored only when its session ends unexpectedly or a
//   health check fails; a failed request leaves it connected.
// - Requests on one connection are serialized; every request is bounded by
//   the server's call timeout and the caller's context.
// - The manager's lock is never held across subprocess I/O.
//
// Usage:
//
//	m := mcp.NewManager(map[string]mcp.ServerConfig{
//		"search": {Type: mcp.ServerTypeModule, Module: "mcp_server_search"},
//	})
//	if err := m.StartServer(ctx, "search"); err != nil {
//		return err
//	}
//	defer m.StopAll(context.Background())
//	out, err := m.CallTool(ctx, "search", "query", map[string]any{"q": "go"})
package mcp
