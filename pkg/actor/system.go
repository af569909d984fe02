package actor

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ActorID identifies a spawned actor for the lifetime of the process.
type ActorID string

// Option configures a System.
type Option func(*System)

// WithMetrics sets the metrics sink used by all actors of the system.
func WithMetrics(m Metrics) Option {
	return func(s *System) {
		if m != nil {
			s.metrics = m
		}
	}
}

// System owns spawned actors and their lifecycle.
type System struct {
	mu      sync.RWMutex
	actors  map[ActorID]Handle
	metrics Metrics
}

// NewSystem creates an empty actor system.
func NewSystem(opts ...Option) *System {
	s := &System{
		actors:  make(map[ActorID]Handle),
		metrics: NopMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Spawn starts a and waits for its Initialize to finish. If Initialize fails
// the actor is not registered and the error is returned.
func (s *System) Spawn(ctx context.Context, a Actor) (Handle, error) {
	if a == nil {
		return Handle{}, fmt.Errorf("actor is required")
	}

	id := ActorID(uuid.NewString())
	mb := newMailbox()
	done := make(chan struct{})
	ready := make(chan error, 1)

	go s.run(context.WithoutCancel(ctx), id, a, mb, ready, done)

	if err := <-ready; err != nil {
		<-done
		return Handle{}, fmt.Errorf("failed to initialize actor %s: %w", id, err)
	}

	h := Handle{id: id, mb: mb, done: done, metrics: s.metrics}

	// The loop cannot exit before the handle is published.
	s.mu.Lock()
	s.actors[id] = h
	s.mu.Unlock()

	log.Debug().Str("actor_id", string(id)).Msg("Actor spawned")
	return h, nil
}

// Get returns the handle registered under id.
func (s *System) Get(id ActorID) (Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.actors[id]
	return h, ok
}

// Len returns the number of live actors.
func (s *System) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.actors)
}

func (s *System) remove(id ActorID) {
	s.mu.Lock()
	delete(s.actors, id)
	s.mu.Unlock()
}

// ShutdownAll sends Shutdown to every actor and waits for each loop to exit
// or ctx to end, whichever comes first.
func (s *System) ShutdownAll(ctx context.Context) error {
	s.mu.Lock()
	handles := make([]Handle, 0, len(s.actors))
	for _, h := range s.actors {
		handles = append(handles, h)
	}
	s.actors = make(map[ActorID]Handle)
	s.mu.Unlock()

	for _, h := range handles {
		// A closed inbox means the actor is already stopping.
		_ = h.Send(Shutdown{})
	}

	for _, h := range handles {
		select {
		case <-h.Done():
		case <-ctx.Done():
			return fmt.Errorf("waiting for actor %s: %w", h.ID(), ctx.Err())
		}
	}

	log.Info().Int("actors", len(handles)).Msg("Actor system shut down")
	return nil
}
