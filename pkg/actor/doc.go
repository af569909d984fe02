// Package actor runs long-lived components behind private, ordered inboxes.
//
// Invariants:
// - Messages sent to one actor are handled in send order.
// - A processed Shutdown ends the loop; later messages are never handled and
//   their replies are dropped.
// - Every reply carried by a message is completed or dropped once the actor
//   is done with it, so callers never hang on a dead actor.
// - Spawn never hands out a handle for an actor whose Initialize failed.
//
// Usage:
//
//	sys := actor.NewSystem()
//	h, err := sys.Spawn(ctx, actor.NewToolActor(registry))
//	if err != nil {
//		return err
//	}
//	out, err := h.ExecuteTool(ctx, "echo", map[string]any{"text": "hi"}, execctx.New())
//	_ = sys.ShutdownAll(ctx)
package actor
