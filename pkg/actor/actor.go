package actor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"
)

// Actor is a component driven by messages from its inbox.
type Actor interface {
	Initialize(ctx context.Context) error
	HandleMessage(ctx context.Context, msg Message) error
	Shutdown(ctx context.Context) error
}

// Base provides no-op lifecycle hooks for embedding.
type Base struct{}

func (Base) Initialize(context.Context) error { return nil }
func (Base) Shutdown(context.Context) error   { return nil }

// run is the actor goroutine. ready receives the Initialize outcome exactly once.
func (s *System) run(ctx context.Context, id ActorID, a Actor, mb *mailbox, ready chan<- error, done chan struct{}) {
	defer close(done)

	if err := a.Initialize(ctx); err != nil {
		mb.close()
		ready <- err
		return
	}
	ready <- nil

	defer func() {
		pending := mb.close()
		for _, msg := range pending {
			dropReply(msg)
		}
		s.metrics.InboxDepth(id, 0)
		s.remove(id)
		log.Debug().Str("actor_id", string(id)).Int("dropped", len(pending)).Msg("Actor stopped")
	}()

	for {
		msg, depth := mb.pop()
		s.metrics.InboxDepth(id, depth)

		if _, ok := msg.(Shutdown); ok {
			if err := a.Shutdown(ctx); err != nil {
				log.Warn().Err(err).Str("actor_id", string(id)).Msg("Actor shutdown hook failed")
			}
			return
		}

		s.dispatch(ctx, id, a, msg)
	}
}

// dispatch handles one message with panic containment. The message's reply is
// dropped afterwards unless the handler completed it.
func (s *System) dispatch(ctx context.Context, id ActorID, a Actor, msg Message) {
	msgType := messageType(msg)
	start := time.Now()
	success := false

	defer func() {
		if r := recover(); r != nil {
			s.metrics.MessagePanic(msgType)
			log.Error().
				Str("actor_id", string(id)).
				Str("message_type", msgType).
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("Actor handler panicked")
		}
		dropReply(msg)
		s.metrics.MessageProcessed(msgType, time.Since(start), success)
	}()

	if err := a.HandleMessage(ctx, msg); err != nil {
		log.Warn().
			Err(err).
			Str("actor_id", string(id)).
			Str("message_type", msgType).
			Msg("Actor handler returned error")
		return
	}
	success = true
}
