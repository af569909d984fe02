// Package oneshot provides single-use reply channels.
//
// Invariants:
// - A Reply is completed at most once: either one value is sent or it is dropped.
// - A receiver blocked on a dropped Reply observes flowerr.ErrReplyDropped, never a hang.
//
// Usage:
//
//	r := oneshot.New[int]()
//	go func() { r.Send(42) }()
//	v, err := r.Wait(ctx)
package oneshot

import (
	"context"
	"sync"

	"github.com/harun/agentflow/pkg/flowerr"
)

// Reply is a single-use channel carrying one value of type T.
type Reply[T any] struct {
	ch   chan T
	once sync.Once
}

// New creates an open Reply.
func New[T any]() *Reply[T] {
	return &Reply[T]{ch: make(chan T, 1)}
}

// Send completes the reply with v. It reports false if the reply was already
// completed or dropped. Send never blocks and is a no-op on a nil Reply.
func (r *Reply[T]) Send(v T) bool {
	if r == nil {
		return false
	}
	sent := false
	r.once.Do(func() {
		r.ch <- v
		close(r.ch)
		sent = true
	})
	return sent
}

// Drop completes the reply without a value. Dropping an already completed
// reply is a no-op.
func (r *Reply[T]) Drop() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		close(r.ch)
	})
}

// Wait blocks until a value arrives, the reply is dropped, or ctx is done.
func (r *Reply[T]) Wait(ctx context.Context) (T, error) {
	var zero T
	select {
	case v, ok := <-r.ch:
		if !ok {
			return zero, flowerr.ErrReplyDropped
		}
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
