package config

import (
	"encoding/json"
	"errors"
	"sort"

	"github.com/harun/agentflow/pkg/mcp"
)

// Config is the agentflow configuration.
type Config struct {
	// Servers maps a server name to its launch configuration.
	Servers map[string]mcp.ServerConfig `json:"servers" yaml:"servers" mapstructure:"servers"`

	// EnabledServers limits startup to these servers. Empty starts all.
	EnabledServers []string `json:"enabled_servers" yaml:"enabled_servers" mapstructure:"enabled_servers"`

	LLM     LLMConfig     `json:"llm" yaml:"llm" mapstructure:"llm"`
	Agent   AgentConfig   `json:"agent" yaml:"agent" mapstructure:"agent"`
	Pool    PoolConfig    `json:"pool" yaml:"pool" mapstructure:"pool"`
	Health  HealthConfig  `json:"health" yaml:"health" mapstructure:"health"`
	Logging LoggingConfig `json:"logging" yaml:"logging" mapstructure:"logging"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics" mapstructure:"metrics"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing" mapstructure:"tracing"`

	// Data directory
	DataDir string `json:"data_dir" yaml:"data_dir" mapstructure:"data_dir"`

	// WorkspacePath enables the read_file tool rooted here.
	WorkspacePath string `json:"workspace_path" yaml:"workspace_path" mapstructure:"workspace_path"`
}

// LLMConfig selects the language model backend.
type LLMConfig struct {
	Provider    string  `json:"provider" yaml:"provider" mapstructure:"provider"` // ollama, openrouter, openai, anthropic
	Model       string  `json:"model" yaml:"model" mapstructure:"model"`
	BaseURL     string  `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`
	APIKeyEnv   string  `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty" mapstructure:"api_key_env"`
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty" mapstructure:"max_tokens"`
}

// AgentConfig controls plan-and-execute.
type AgentConfig struct {
	MaxSteps        int    `json:"max_steps" yaml:"max_steps" mapstructure:"max_steps"`
	TimeoutSeconds  int    `json:"timeout_seconds" yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	Planner         string `json:"planner" yaml:"planner" mapstructure:"planner"` // multi_step, chain_of_thought, htn, monte_carlo
	Simulations     int    `json:"simulations" yaml:"simulations" mapstructure:"simulations"`
	ContinueOnError bool   `json:"continue_on_error" yaml:"continue_on_error" mapstructure:"continue_on_error"`
	Parallel        bool   `json:"parallel" yaml:"parallel" mapstructure:"parallel"`
	Synthesize      bool   `json:"synthesize" yaml:"synthesize" mapstructure:"synthesize"`
}

// PoolConfig sizes the worker pool.
type PoolConfig struct {
	Workers            int `json:"workers" yaml:"workers" mapstructure:"workers"`
	Capacity           int `json:"capacity" yaml:"capacity" mapstructure:"capacity"`
	TaskTimeoutSeconds int `json:"task_timeout_seconds" yaml:"task_timeout_seconds" mapstructure:"task_timeout_seconds"`
}

// HealthConfig controls periodic server health checks.
type HealthConfig struct {
	Enabled         bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	IntervalSeconds int  `json:"interval_seconds" yaml:"interval_seconds" mapstructure:"interval_seconds"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" yaml:"level" mapstructure:"level"`
	File      string `json:"file" yaml:"file" mapstructure:"file"`
	Console   bool   `json:"console" yaml:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" yaml:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" yaml:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" yaml:"max_age" mapstructure:"max_age"`    // days
	Compress  bool   `json:"compress" yaml:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" yaml:"redaction" mapstructure:"redaction"`
}

// MetricsConfig controls the Prometheus endpoint and audit trail.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Addr      string `json:"addr" yaml:"addr" mapstructure:"addr"`
	AuditFile string `json:"audit_file,omitempty" yaml:"audit_file,omitempty" mapstructure:"audit_file"`
}

// TracingConfig controls OpenTelemetry.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" yaml:"service_name" mapstructure:"service_name"`
	Endpoint    string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty" mapstructure:"endpoint"` // OTLP/HTTP host:port
	Insecure    bool    `json:"insecure,omitempty" yaml:"insecure,omitempty" mapstructure:"insecure"`
	SampleRatio float64 `json:"sample_ratio,omitempty" yaml:"sample_ratio,omitempty" mapstructure:"sample_ratio"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Servers:        map[string]mcp.ServerConfig{},
		EnabledServers: []string{},
		LLM: LLMConfig{
			Provider:    "ollama",
			Model:       "qwen3:8b",
			Temperature: 0.7,
		},
		Agent: AgentConfig{
			MaxSteps:       10,
			TimeoutSeconds: 30,
			Planner:        "multi_step",
			Simulations:    3,
			Synthesize:     true,
		},
		Pool: PoolConfig{
			Workers:  4,
			Capacity: 100,
		},
		Health: HealthConfig{
			Enabled:         true,
			IntervalSeconds: 30,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "agentflow",
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate runs every check and joins the failures.
func (c *Config) Validate() error {
	return errors.Join(NewValidator().ValidateConfig(c)...)
}

// ServerConfigs returns the servers that should be started. When
// EnabledServers is empty every configured server is returned.
func (c *Config) ServerConfigs() map[string]mcp.ServerConfig {
	out := make(map[string]mcp.ServerConfig, len(c.Servers))
	if len(c.EnabledServers) == 0 {
		for name, sc := range c.Servers {
			out[name] = sc
		}
		return out
	}
	for _, name := range c.EnabledServers {
		if sc, ok := c.Servers[name]; ok {
			out[name] = sc
		}
	}
	return out
}

// ServerNames returns the configured server names, sorted.
func (c *Config) ServerNames() []string {
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
