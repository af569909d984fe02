package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/harun/agentflow/internal/observability"
	"github.com/harun/agentflow/pkg/actor"
	"github.com/harun/agentflow/pkg/coretools"
	"github.com/harun/agentflow/pkg/execctx"
	"github.com/harun/agentflow/pkg/llm"
	"github.com/harun/agentflow/pkg/mcp"
	"github.com/harun/agentflow/pkg/planner"
	"github.com/harun/agentflow/pkg/toolregistry"
	"github.com/harun/agentflow/pkg/workerpool"
	"github.com/rs/zerolog/log"
)

const (
	tracerName = "agentflow.agent"
	poolName   = "agent"

	DefaultMaxSteps = 10
	DefaultTimeout  = 30 * time.Second
	DefaultWorkers  = 4
)

// Config holds everything New needs. Zero values fall back to the defaults
// above and to workerpool.DefaultCapacity.
type Config struct {
	// Servers are started in name order by New.
	Servers map[string]mcp.ServerConfig

	// Client is used for planning and synthesis. Planner overrides the
	// planner built from PlannerKind and Simulations.
	Client      *llm.Client
	Planner     planner.Planner
	PlannerKind string
	Simulations int

	// Tools are registered after the built-in core tools.
	Tools         []toolregistry.LocalTool
	WorkspaceRoot string

	MaxSteps        int
	Timeout         time.Duration
	ContinueOnError bool
	Parallel        bool
	Synthesize      bool

	Workers     int
	Capacity    int
	TaskTimeout time.Duration

	// HealthInterval enables periodic server health checks when positive.
	HealthInterval time.Duration

	ManagerOptions []mcp.ManagerOption
}

func (c Config) withDefaults() Config {
	if c.MaxSteps <= 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	if c.Timeout < 0 {
		c.Timeout = 0
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Capacity <= 0 {
		c.Capacity = workerpool.DefaultCapacity
	}
	if c.PlannerKind == "" {
		c.PlannerKind = planner.KindMultiStep
	}
	return c
}

// System is a running agent: servers started, tools registered, workers up.
type System struct {
	cfg Config

	manager  *mcp.Manager
	registry *toolregistry.Registry
	actors   *actor.System
	tools    *toolActors
	pool     *workerpool.Pool
	planner  planner.Planner
	client   *llm.Client
	health   *mcp.HealthMonitor

	shutdownOnce sync.Once
	shutdownErr  error
}

// New starts the configured servers, builds the tool namespace and spawns
// one tool actor per pool worker. On error everything already started is
// torn down again.
func New(ctx context.Context, cfg Config) (*System, error) {
	observability.EnsureRegistered()
	cfg = cfg.withDefaults()

	p := cfg.Planner
	if p == nil && cfg.Client != nil {
		var err error
		p, err = planner.New(cfg.PlannerKind, cfg.Client, cfg.Simulations)
		if err != nil {
			return nil, err
		}
	}

	s := &System{
		cfg:      cfg,
		manager:  mcp.NewManager(cfg.Servers, cfg.ManagerOptions...),
		registry: toolregistry.New(),
		actors:   actor.NewSystem(actor.WithMetrics(observability.NewActorMetrics())),
		planner:  p,
		client:   cfg.Client,
	}
	s.health = mcp.NewHealthMonitor(s.manager, cfg.HealthInterval)

	if err := s.startServers(ctx); err != nil {
		s.abort(ctx)
		return nil, err
	}

	if err := coretools.Register(s.registry, coretools.Options{WorkspaceRoot: cfg.WorkspaceRoot}); err != nil {
		s.abort(ctx)
		return nil, err
	}
	for _, tool := range cfg.Tools {
		s.registry.RegisterLocal(tool)
	}
	if err := s.registry.RefreshRemote(ctx, s.manager); err != nil {
		s.abort(ctx)
		return nil, err
	}

	handles := make([]actor.Handle, 0, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		handle, err := s.actors.Spawn(ctx, actor.NewToolActor(s.registry))
		if err != nil {
			s.abort(ctx)
			return nil, err
		}
		handles = append(handles, handle)
	}
	s.tools = newToolActors(handles)

	s.pool = workerpool.New(cfg.Workers, cfg.Capacity, s.tools,
		workerpool.WithName(poolName),
		workerpool.WithTaskTimeout(cfg.TaskTimeout),
	)

	if cfg.HealthInterval > 0 && len(s.manager.RunningServerNames()) > 0 {
		if err := s.health.Start(); err != nil {
			log.Warn().Err(err).Msg("Health monitor not started")
		}
	}

	log.Info().
		Int("servers", len(s.manager.RunningServerNames())).
		Int("tools", len(s.registry.ToolNames())).
		Int("workers", cfg.Workers).
		Msg("Agent system ready")
	return s, nil
}

func (s *System) startServers(ctx context.Context) error {
	for _, name := range s.manager.ConfiguredServerNames() {
		if err := s.manager.StartServer(ctx, name); err != nil {
			return fmt.Errorf("failed to start server %s: %w", name, err)
		}
	}
	return nil
}

func (s *System) abort(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if err := s.actors.ShutdownAll(ctx); err != nil {
		log.Warn().Err(err).Msg("Actor shutdown failed during abort")
	}
	if err := s.manager.StopAll(ctx); err != nil {
		log.Warn().Err(err).Msg("Server shutdown failed during abort")
	}
}

// ExecuteTool runs one tool through the worker pool. A nil ec gets a fresh
// execution context.
func (s *System) ExecuteTool(ctx context.Context, name string, params map[string]any, ec *execctx.Context) (any, error) {
	res, err := s.pool.Submit(ctx, workerpool.Task{ToolName: name, Params: params, Context: ec})
	if err != nil {
		return nil, err
	}
	return res.Value, res.Err
}

// RefreshTools re-lists tools from every running server.
func (s *System) RefreshTools(ctx context.Context) error {
	return s.registry.RefreshRemote(ctx, s.manager)
}

// AvailableTools returns every tool name in catalog order.
func (s *System) AvailableTools() []string { return s.registry.ToolNames() }

// Catalog returns the planner-facing tool catalog.
func (s *System) Catalog() []toolregistry.CatalogEntry { return s.registry.Catalog() }

// Descriptors returns the registry's descriptors, including server routing.
func (s *System) Descriptors() []toolregistry.Descriptor { return s.registry.Descriptors() }

// ServerStatuses reports every configured server.
func (s *System) ServerStatuses() []mcp.ServerStatus { return s.manager.Statuses() }

// CheckHealth pings every running server now.
func (s *System) CheckHealth(ctx context.Context) map[string]error {
	return s.health.CheckNow(ctx)
}

// PlannerName returns the configured planner, or "" when none is set.
func (s *System) PlannerName() string {
	if s.planner == nil {
		return ""
	}
	return s.planner.Name()
}

// Shutdown stops health checks, drains the pool, stops the tool actor and
// every server. Repeated calls return the first result.
func (s *System) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		var errs []error
		if err := s.health.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("health monitor: %w", err))
		}
		if err := s.pool.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := s.actors.ShutdownAll(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := s.manager.StopAll(ctx); err != nil {
			errs = append(errs, err)
		}
		s.shutdownErr = errors.Join(errs...)
		log.Info().Err(s.shutdownErr).Msg("Agent system stopped")
	})
	return s.shutdownErr
}
