package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/harun/agentflow/internal/config"
	"github.com/harun/agentflow/internal/logger"
	"github.com/harun/agentflow/internal/observability"
	"github.com/harun/agentflow/internal/tracing"
	"github.com/harun/agentflow/pkg/agent"
	"github.com/harun/agentflow/pkg/llm"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// session is the per-command process state: config, logging, and the
// optional metrics endpoint and tracer.
type session struct {
	cfg     *config.Config
	log     *logger.Logger
	metrics *http.Server
	tracing bool
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
		Output:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	s := &session{cfg: cfg, log: lg}

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cmd.Context(), tracing.Config{
			ServiceName:    cfg.Tracing.ServiceName,
			ServiceVersion: version,
			Endpoint:       cfg.Tracing.Endpoint,
			Insecure:       cfg.Tracing.Insecure,
			SampleRatio:    cfg.Tracing.SampleRatio,
		}); err != nil {
			log.Warn().Err(err).Msg("Tracing disabled")
		} else {
			s.tracing = true
		}
	}
	if cfg.Metrics.AuditFile != "" {
		if err := observability.InitAuditLogger(cfg.Metrics.AuditFile); err != nil {
			log.Warn().Err(err).Str("path", cfg.Metrics.AuditFile).Msg("Audit log disabled")
		}
	}
	if cfg.Metrics.Enabled {
		srv, err := serveMetrics(cfg.Metrics.Addr)
		if err != nil {
			s.close(context.Background())
			return nil, err
		}
		s.metrics = srv
	}
	return s, nil
}

func (s *session) close(ctx context.Context) {
	if s.metrics != nil {
		if err := s.metrics.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}
	if s.tracing {
		if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
			log.Warn().Err(err).Msg("Tracer shutdown failed")
		}
	}
	_ = observability.GetAuditLogger().Close()
	_ = s.log.Close()
}

// newLLMClient builds the configured backend. No request is made here.
func newLLMClient(cfg *config.Config) (*llm.Client, error) {
	provider, err := llm.NewProvider(llm.ProviderConfig{
		Provider:  cfg.LLM.Provider,
		BaseURL:   cfg.LLM.BaseURL,
		APIKeyEnv: cfg.LLM.APIKeyEnv,
	})
	if err != nil {
		return nil, err
	}
	client := llm.NewClient(provider, cfg.LLM.Model).WithTemperature(cfg.LLM.Temperature)
	if cfg.LLM.MaxTokens > 0 {
		client = client.WithMaxTokens(cfg.LLM.MaxTokens)
	}
	return client, nil
}

func agentConfig(cfg *config.Config, client *llm.Client) agent.Config {
	ac := agent.Config{
		Servers:         cfg.ServerConfigs(),
		Client:          client,
		PlannerKind:     cfg.Agent.Planner,
		Simulations:     cfg.Agent.Simulations,
		WorkspaceRoot:   cfg.WorkspacePath,
		MaxSteps:        cfg.Agent.MaxSteps,
		Timeout:         seconds(cfg.Agent.TimeoutSeconds),
		ContinueOnError: cfg.Agent.ContinueOnError,
		Parallel:        cfg.Agent.Parallel,
		Synthesize:      cfg.Agent.Synthesize,
		Workers:         cfg.Pool.Workers,
		Capacity:        cfg.Pool.Capacity,
		TaskTimeout:     seconds(cfg.Pool.TaskTimeoutSeconds),
	}
	if cfg.Health.Enabled {
		ac.HealthInterval = seconds(cfg.Health.IntervalSeconds)
	}
	return ac
}

// startSystem starts servers and tools. withLLM is false for commands that
// never plan, so they work without a reachable model.
func startSystem(ctx context.Context, s *session, withLLM bool) (*agent.System, error) {
	var client *llm.Client
	if withLLM {
		c, err := newLLMClient(s.cfg)
		if err != nil {
			return nil, err
		}
		client = c
	}
	return agent.New(ctx, agentConfig(s.cfg, client))
}

func stopSystem(sys *agent.System) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sys.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Shutdown incomplete")
	}
}

func serveMetrics(addr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("Metrics endpoint listening")
	return srv, nil
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
