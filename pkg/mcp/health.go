package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// HealthChecker is the part of Manager the monitor needs.
type HealthChecker interface {
	RunningServerNames() []string
	HealthCheck(ctx context.Context, name string) error
}

// HealthMonitor pings every running server on a fixed interval.
type HealthMonitor struct {
	checker  HealthChecker
	interval time.Duration

	mu      sync.Mutex
	cron    *cron.Cron
	results map[string]error
	lastRun time.Time
}

// NewHealthMonitor creates a monitor. Intervals below one second are raised to one second.
func NewHealthMonitor(checker HealthChecker, interval time.Duration) *HealthMonitor {
	if interval < time.Second {
		interval = time.Second
	}
	return &HealthMonitor{
		checker:  checker,
		interval: interval,
		results:  make(map[string]error),
	}
}

// Start schedules periodic checks. Calling Start twice is an error.
func (h *HealthMonitor) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cron != nil {
		return fmt.Errorf("health monitor already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", h.interval), func() {
		h.CheckNow(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to schedule health checks: %w", err)
	}
	c.Start()
	h.cron = c

	log.Info().Dur("interval", h.interval).Msg("MCP health monitor started")
	return nil
}

// Stop cancels future checks and waits for a running check to finish or ctx to end.
func (h *HealthMonitor) Stop(ctx context.Context) error {
	h.mu.Lock()
	c := h.cron
	h.cron = nil
	h.mu.Unlock()

	if c == nil {
		return nil
	}

	done := c.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CheckNow checks every running server once and returns the failures by name.
func (h *HealthMonitor) CheckNow(ctx context.Context) map[string]error {
	failures := make(map[string]error)
	results := make(map[string]error)

	for _, name := range h.checker.RunningServerNames() {
		err := h.checker.HealthCheck(ctx, name)
		results[name] = err
		if err != nil {
			failures[name] = err
			log.Warn().Err(err).Str("server", name).Msg("MCP server health check failed")
		}
	}

	h.mu.Lock()
	h.results = results
	h.lastRun = time.Now()
	h.mu.Unlock()

	return failures
}

// LastResults returns the outcome of the most recent check round and when it ran.
func (h *HealthMonitor) LastResults() (map[string]error, time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]error, len(h.results))
	for k, v := range h.results {
		out[k] = v
	}
	return out, h.lastRun
}
