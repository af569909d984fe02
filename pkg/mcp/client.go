package mcp

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harun/agentflow/internal/observability"
	"github.com/harun/agentflow/internal/tracing"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultClientName    = "agentflow"
	defaultClientVersion = "dev"
	tracerName           = "agentflow.mcp"
)

// ErrSessionEnded is reported once a server's session ended without Close.
var ErrSessionEnded = errors.New("mcp: server session ended")

// ClientConfig configures Connect.
type ClientConfig struct {
	// ServerName labels logs, metrics and spans.
	ServerName string
	ClientInfo ClientInfo
	// Command is the unstarted server process.
	Command *exec.Cmd
	// GracePeriod is how long Close waits for the process to exit after
	// closing its stdin before killing it.
	GracePeriod time.Duration
}

// Client is one MCP session with a subprocess server. Requests on one
// client are serialized.
type Client struct {
	session *sdk.ClientSession
	cmd     *exec.Cmd
	server  string
	grace   time.Duration
	info    ServerInfo
	version string

	callMu sync.Mutex

	closing   atomic.Bool
	ended     chan struct{}
	endErr    error
	closeOnce sync.Once
	closed    chan struct{}
}

// Connect starts the server process and completes the initialize handshake.
// ctx bounds the handshake only.
func Connect(ctx context.Context, cfg ClientConfig) (c *Client, err error) {
	if cfg.Command == nil {
		return nil, errors.New("mcp: server command is required")
	}
	if cfg.ClientInfo.Name == "" {
		cfg.ClientInfo.Name = defaultClientName
	}
	if cfg.ClientInfo.Version == "" {
		cfg.ClientInfo.Version = defaultClientVersion
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = defaultGracePeriod
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "mcp.initialize",
		attribute.String("server", cfg.ServerName),
		attribute.String("method", "initialize"),
	)
	start := time.Now()
	defer func() {
		observability.RecordMCPCall(cfg.ServerName, "initialize", time.Since(start), err == nil)
		tracing.EndSpan(span, err)
	}()

	client := sdk.NewClient(&sdk.Implementation{Name: cfg.ClientInfo.Name, Version: cfg.ClientInfo.Version}, nil)
	session, err := client.Connect(ctx, &sdk.CommandTransport{Command: cfg.Command}, nil)
	if err != nil {
		if cfg.Command.Process != nil {
			_ = cfg.Command.Process.Kill()
		}
		return nil, withContextErr(ctx, fmt.Errorf("mcp: initialize: %w", err))
	}

	c = &Client{
		session: session,
		cmd:     cfg.Command,
		server:  cfg.ServerName,
		grace:   cfg.GracePeriod,
		ended:   make(chan struct{}),
		closed:  make(chan struct{}),
	}
	if res := session.InitializeResult(); res != nil {
		c.version = res.ProtocolVersion
		if res.ServerInfo != nil {
			c.info = ServerInfo{Name: res.ServerInfo.Name, Version: res.ServerInfo.Version}
		}
	}

	if cfg.Command.Process != nil {
		log.Debug().
			Str("server", c.server).
			Str("command", cfg.Command.Path).
			Strs("args", cfg.Command.Args[1:]).
			Int("pid", cfg.Command.Process.Pid).
			Msg("MCP server process started")
	}

	go c.watch()
	return c, nil
}

// watch records why the session ended when nobody asked it to.
func (c *Client) watch() {
	err := c.session.Wait()
	if !c.closing.Load() {
		if err != nil {
			c.endErr = fmt.Errorf("%w: %v", ErrSessionEnded, err)
		} else {
			c.endErr = ErrSessionEnded
		}
		log.Warn().Err(err).Str("server", c.server).Msg("MCP server session ended unexpectedly")
	}
	close(c.ended)
}

// ServerInfo returns the identity the server sent during the handshake.
func (c *Client) ServerInfo() ServerInfo { return c.info }

// ProtocolVersion returns the negotiated protocol version.
func (c *Client) ProtocolVersion() string { return c.version }

// Err returns the failure that ended the session, or nil while it is alive
// or after a deliberate Close.
func (c *Client) Err() error {
	select {
	case <-c.ended:
		return c.endErr
	default:
		return nil
	}
}

// ListTools returns every tool the server advertises, following pagination cursors.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var tools []Tool
	err := c.call(ctx, "tools/list", func(ctx context.Context) error {
		cursor := ""
		for {
			page, err := c.session.ListTools(ctx, &sdk.ListToolsParams{Cursor: cursor})
			if err != nil {
				return err
			}
			for _, t := range page.Tools {
				tool, err := toolFromSDK(t)
				if err != nil {
					return err
				}
				tools = append(tools, tool)
			}
			if page.NextCursor == "" || page.NextCursor == cursor {
				return nil
			}
			cursor = page.NextCursor
		}
	})
	if err != nil {
		return nil, err
	}
	return tools, nil
}

// CallTool executes a tool by name with arguments.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*sdk.CallToolResult, error) {
	params := &sdk.CallToolParams{Name: name}
	if args != nil {
		params.Arguments = args
	}
	var result *sdk.CallToolResult
	err := c.call(ctx, "tools/call", func(ctx context.Context) error {
		var err error
		result, err = c.session.CallTool(ctx, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Ping checks that the server answers requests.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", func(ctx context.Context) error {
		return c.session.Ping(ctx, &sdk.PingParams{})
	})
}

func (c *Client) call(ctx context.Context, method string, fn func(context.Context) error) (err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "mcp."+method,
		attribute.String("server", c.server),
		attribute.String("method", method),
	)
	start := time.Now()
	defer func() {
		observability.RecordMCPCall(c.server, method, time.Since(start), err == nil)
		tracing.EndSpan(span, err)
	}()

	c.callMu.Lock()
	defer c.callMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.Err(); err != nil {
		return fmt.Errorf("mcp: %s: %w", method, err)
	}
	if err := fn(ctx); err != nil {
		return withContextErr(ctx, fmt.Errorf("mcp: %s: %w", method, err))
	}
	return nil
}

// Close ends the session: stdin is closed, the process gets GracePeriod to
// exit and is killed if it has not. It waits until the session is torn down
// or ctx ends.
func (c *Client) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		go func() {
			if err := c.session.Close(); err != nil {
				log.Debug().Err(err).Str("server", c.server).Msg("MCP session close")
			}
			close(c.closed)
		}()
	})

	timer := time.NewTimer(c.grace)
	defer timer.Stop()

	select {
	case <-c.closed:
		return nil
	case <-timer.C:
		log.Debug().Str("server", c.server).Msg("MCP server did not exit after stdin closed, killing")
	case <-ctx.Done():
	}
	c.kill()

	select {
	case <-c.closed:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mcp: waiting for server %s to exit: %w", c.server, ctx.Err())
	}
}

func (c *Client) kill() {
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
}

// withContextErr makes ctx's error visible to errors.Is when the SDK
// reported the failure in its own words.
func withContextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return errors.Join(ctxErr, err)
	}
	return err
}
