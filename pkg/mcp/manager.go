package mcp

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/harun/agentflow/internal/observability"
	"github.com/harun/agentflow/internal/tracing"
	"github.com/harun/agentflow/pkg/flowerr"
	"github.com/rs/zerolog/log"
)

// connection is one running server owned by the Manager.
type connection struct {
	name      string
	cfg       ServerConfig
	client    *Client
	startedAt time.Time

	mu     sync.Mutex
	status Status
}

func (c *connection) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func (c *connection) currentStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.State == StateConnected {
		if err := c.client.Err(); err != nil {
			c.status = Errored(err.Error())
		}
	}
	return c.status
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCommandBuilder replaces BuildCommand.
func WithCommandBuilder(b CommandBuilder) ManagerOption {
	return func(m *Manager) {
		if b != nil {
			m.builder = b
		}
	}
}

// WithClientInfo sets the identity sent during the initialize handshake.
func WithClientInfo(info ClientInfo) ManagerOption {
	return func(m *Manager) { m.clientInfo = info }
}

// WithGracePeriod sets how long StopServer waits before killing a server.
func WithGracePeriod(d time.Duration) ManagerOption {
	return func(m *Manager) { m.grace = d }
}

// Manager starts, stops and talks to MCP server subprocesses.
type Manager struct {
	mu      sync.RWMutex
	configs map[string]ServerConfig
	conns   map[string]*connection

	builder    CommandBuilder
	clientInfo ClientInfo
	grace      time.Duration
}

// NewManager creates a Manager for the given server configs.
func NewManager(configs map[string]ServerConfig, opts ...ManagerOption) *Manager {
	observability.EnsureRegistered()

	m := &Manager{
		configs: make(map[string]ServerConfig, len(configs)),
		conns:   make(map[string]*connection),
		builder: BuildCommand,
		grace:   defaultGracePeriod,
	}
	for name, cfg := range configs {
		m.configs[name] = cfg
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddServer registers or replaces a server config. A running server keeps
// its old config until restarted.
func (m *Manager) AddServer(name string, cfg ServerConfig) {
	m.mu.Lock()
	m.configs[name] = cfg
	m.mu.Unlock()
}

// ConfiguredServerNames returns all configured server names, sorted.
func (m *Manager) ConfiguredServerNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.configs))
	for name := range m.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartServer launches the named server and completes the handshake. On any
// failure the process is stopped and nothing is recorded. Starting a server
// that is already connected is a no-op.
func (m *Manager) StartServer(ctx context.Context, name string) error {
	m.mu.RLock()
	cfg, ok := m.configs[name]
	existing := m.conns[name]
	m.mu.RUnlock()

	if !ok {
		return flowerr.Tool("mcp.start_server", fmt.Sprintf("server config not found: %s", name), nil)
	}
	if existing != nil && existing.currentStatus().State == StateConnected {
		log.Debug().Str("server", name).Msg("MCP server already running")
		return nil
	}
	if existing != nil {
		// Replace a dead connection.
		_ = m.StopServer(ctx, name)
	}

	conn, err := m.launch(ctx, name, cfg)
	if err != nil {
		observability.RecordServerAudit(ctx, name, "server_started", false, map[string]interface{}{"error": err.Error()})
		return err
	}

	m.mu.Lock()
	if raced := m.conns[name]; raced != nil {
		m.mu.Unlock()
		_ = conn.client.Close(context.WithoutCancel(ctx))
		return nil
	}
	m.conns[name] = conn
	active := len(m.conns)
	m.mu.Unlock()

	observability.SetActiveServers(active)
	observability.SetServerHealthy(name, true)
	observability.RecordServerAudit(ctx, name, "server_started", true, map[string]interface{}{
		"server_name":    conn.client.ServerInfo().Name,
		"server_version": conn.client.ServerInfo().Version,
	})

	log.Info().
		Str("server", name).
		Str("type", string(cfg.Type)).
		Str("remote_name", conn.client.ServerInfo().Name).
		Str("protocol", conn.client.ProtocolVersion()).
		Msg("MCP server started")
	return nil
}

func (m *Manager) launch(ctx context.Context, name string, cfg ServerConfig) (*connection, error) {
	spec, err := m.builder(name, cfg)
	if err != nil {
		return nil, flowerr.Tool("mcp.start_server", fmt.Sprintf("invalid config for server %s", name), err)
	}

	if len(spec.Install) > 0 {
		log.Info().Str("server", name).Strs("command", spec.Install).Msg("Installing MCP server")
		// #nosec G204 -- install command is derived from operator configuration.
		install := exec.CommandContext(ctx, spec.Install[0], spec.Install[1:]...)
		if out, err := install.CombinedOutput(); err != nil {
			return nil, flowerr.Tool("mcp.start_server",
				fmt.Sprintf("failed to install server %s: %s", name, truncate(string(out), 512)), err)
		}
	}

	cmd, err := newCommand(name, spec, m.grace)
	if err != nil {
		return nil, flowerr.Tool("mcp.start_server", fmt.Sprintf("failed to start server %s", name), err)
	}

	initCtx, cancel := context.WithTimeout(ctx, cfg.startTimeout())
	defer cancel()
	client, err := Connect(initCtx, ClientConfig{
		ServerName:  name,
		ClientInfo:  m.clientInfo,
		Command:     cmd,
		GracePeriod: m.grace,
	})
	if err != nil {
		return nil, flowerr.Tool("mcp.start_server", fmt.Sprintf("handshake with server %s failed", name), err)
	}

	return &connection{
		name:      name,
		cfg:       cfg,
		client:    client,
		startedAt: time.Now(),
		status:    Connected(),
	}, nil
}

// StopServer stops the named server. Stopping an unknown or stopped server is a no-op.
func (m *Manager) StopServer(ctx context.Context, name string) error {
	m.mu.Lock()
	conn, ok := m.conns[name]
	delete(m.conns, name)
	active := len(m.conns)
	m.mu.Unlock()

	if !ok {
		return nil
	}

	observability.SetActiveServers(active)
	observability.SetServerHealthy(name, false)

	conn.setStatus(Disconnected())
	if err := conn.client.Close(ctx); err != nil {
		observability.RecordServerAudit(ctx, name, "server_stopped", false, map[string]interface{}{"error": err.Error()})
		return flowerr.Tool("mcp.stop_server", fmt.Sprintf("failed to stop server '%s'", name), err)
	}

	observability.RecordServerAudit(ctx, name, "server_stopped", true, nil)
	log.Info().Str("server", name).Msg("MCP server stopped")
	return nil
}

// StopAll stops every running server.
func (m *Manager) StopAll(ctx context.Context) error {
	var errs []error
	for _, name := range m.RunningServerNames() {
		if err := m.StopServer(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) get(op, name string) (*connection, error) {
	m.mu.RLock()
	conn, ok := m.conns[name]
	m.mu.RUnlock()
	if !ok {
		return nil, flowerr.ServerNotFound(op, name)
	}
	return conn, nil
}

// ListTools returns the tools advertised by the named server.
func (m *Manager) ListTools(ctx context.Context, name string) ([]Tool, error) {
	conn, err := m.get("mcp.list_tools", name)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(tracing.WithServer(ctx, name), conn.cfg.callTimeout())
	defer cancel()

	tools, err := conn.client.ListTools(ctx)
	if err != nil {
		return nil, flowerr.Tool("mcp.list_tools", fmt.Sprintf("failed to list tools on server '%s'", name), err)
	}
	return tools, nil
}

// CallTool invokes tool on the named server. An empty result yields nil; a
// result flagged isError becomes a tool error carrying the server's text.
// A failed call leaves the server's status alone: only the session ending
// marks it errored.
func (m *Manager) CallTool(ctx context.Context, name, tool string, params map[string]any) (any, error) {
	conn, err := m.get("mcp.call_tool", name)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(tracing.WithServer(ctx, name), conn.cfg.callTimeout())
	defer cancel()

	result, err := conn.client.CallTool(ctx, tool, params)
	if err != nil {
		return nil, flowerr.Tool("mcp.call_tool",
			fmt.Sprintf("remote tool '%s' on server '%s' failed", tool, name), err)
	}
	if result.IsError {
		msg := resultText(result)
		if msg == "" {
			msg = "remote tool reported an error"
		}
		return nil, flowerr.Tool("mcp.call_tool", fmt.Sprintf("remote tool '%s': %s", tool, msg), nil)
	}
	if resultEmpty(result) {
		return nil, nil
	}
	value, err := resultValue(result)
	if err != nil {
		return nil, flowerr.Tool("mcp.call_tool", fmt.Sprintf("remote tool '%s' on server '%s' returned unreadable content", tool, name), err)
	}
	return value, nil
}

// HealthCheck pings the named server and records the outcome in its status.
func (m *Manager) HealthCheck(ctx context.Context, name string) error {
	conn, err := m.get("mcp.health_check", name)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(tracing.WithServer(ctx, name), conn.cfg.callTimeout())
	defer cancel()

	if err := conn.client.Ping(ctx); err != nil {
		conn.setStatus(Errored(err.Error()))
		observability.SetServerHealthy(name, false)
		return flowerr.Network("mcp.health_check", fmt.Sprintf("server '%s' did not answer ping", name), err)
	}

	conn.setStatus(Connected())
	observability.SetServerHealthy(name, true)
	return nil
}

// ActiveServerNames returns the names of connected servers, sorted.
func (m *Manager) ActiveServerNames() []string {
	m.mu.RLock()
	conns := make([]*connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	names := make([]string, 0, len(conns))
	for _, c := range conns {
		if c.currentStatus().State == StateConnected {
			names = append(names, c.name)
		}
	}
	sort.Strings(names)
	return names
}

// RunningServerNames returns every started server regardless of health, sorted.
func (m *Manager) RunningServerNames() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.conns))
	for name := range m.conns {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Status reports the state of the named server. Servers that are not running
// are Disconnected.
func (m *Manager) Status(name string) Status {
	m.mu.RLock()
	conn, ok := m.conns[name]
	m.mu.RUnlock()
	if !ok {
		return Disconnected()
	}
	return conn.currentStatus()
}

// ServerStatus describes a configured server for status reporting.
type ServerStatus struct {
	Name      string     `json:"name"`
	Type      ServerType `json:"type"`
	Status    Status     `json:"status"`
	Remote    ServerInfo `json:"remote,omitempty"`
	StartedAt time.Time  `json:"started_at,omitempty"`
}

// Statuses reports every configured or running server, sorted by name.
func (m *Manager) Statuses() []ServerStatus {
	m.mu.RLock()
	seen := make(map[string]bool, len(m.configs)+len(m.conns))
	out := make([]ServerStatus, 0, len(m.configs)+len(m.conns))
	for name, cfg := range m.configs {
		seen[name] = true
		st := ServerStatus{Name: name, Type: cfg.Type, Status: Disconnected()}
		if conn, ok := m.conns[name]; ok {
			st.Remote = conn.client.ServerInfo()
			st.StartedAt = conn.startedAt
		}
		out = append(out, st)
	}
	for name, conn := range m.conns {
		if !seen[name] {
			out = append(out, ServerStatus{Name: name, Type: conn.cfg.Type, Remote: conn.client.ServerInfo(), StartedAt: conn.startedAt})
		}
	}
	m.mu.RUnlock()

	for i := range out {
		out[i].Status = m.Status(out[i].Name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
