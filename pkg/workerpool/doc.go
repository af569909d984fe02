// Package workerpool executes tool invocations on a fixed set of workers fed
// by one bounded queue.
//
// Invariants:
// - Each task is consumed by exactly one worker and answered exactly once.
// - Submit blocks while the queue is full (backpressure) and honours ctx.
// - SubmitMany returns results in input order.
// - Shutdown stops intake, lets queued tasks drain, and joins every worker.
//
// Usage:
//
//	pool := workerpool.New(4, 100, executor)
//	defer pool.Shutdown(ctx)
//	results := pool.SubmitMany(ctx, []workerpool.Task{{ToolName: "echo", Params: params}})
package workerpool
