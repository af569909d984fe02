// Package toolregistry merges local tools and MCP server tools into one namespace.
//
// Invariants:
// - Every name maps to exactly one descriptor.
// - Local tools shadow remote tools of the same name.
// - A remote tool whose name is already taken is re-keyed "{server}::{tool}";
//   servers are visited in sorted order so the outcome is deterministic.
// - Handlers run outside the registry lock.
//
// Usage:
//
//	reg := toolregistry.New()
//	reg.RegisterLocal(coretools.Echo())
//	if err := reg.RefreshRemote(ctx, manager); err != nil {
//		return err
//	}
//	out, err := reg.Execute(ctx, "echo", map[string]any{"text": "hi"}, execctx.New())
package toolregistry
