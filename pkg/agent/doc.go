// Package agent wires the dispatch runtime into a plan-and-execute system.
//
// A System owns one MCP manager, one tool registry, one tool actor and one
// worker pool. Every tool invocation, planned or direct, flows
// pool → actor → registry → local handler or MCP server.
//
// Invariants:
// - Servers are started before the registry is refreshed; a server that fails
//   to start aborts New and stops the ones already running.
// - Each PlanAndExecute call gets its own execution context.
// - Shutdown stops intake first, then the actor, then the servers.
//
// Usage:
//
//	sys, _ := agent.New(ctx, agent.Config{
//		Servers: servers,
//		Client:  llm.NewClient(provider, llm.OllamaQwen3_8B),
//	})
//	defer sys.Shutdown(context.Background())
//	result, _ := sys.PlanAndExecute(ctx, "list the files in the repo")
//	fmt.Println(result.Output)
package agent
