// Package planner turns a task description into an ordered list of tool
// invocations by asking an LLM to call tools from the registry catalog.
//
// Planners:
// - MultiStep: one tool-calling request.
// - ChainOfThought: free-form reasoning first, then a tool-calling request seeded with it.
// - HTN: hierarchical decomposition first, then refinement into tool calls.
// - MonteCarlo: samples several plans at a higher temperature and keeps the shortest.
//
// Usage:
//
//	p, err := planner.New(planner.KindMultiStep, client, 0)
//	steps, err := p.Plan(ctx, "summarise today's tickets", registry.Catalog())
package planner
