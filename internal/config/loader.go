package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harun/agentflow/pkg/mcp"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. AGENTFLOW_LLM_MODEL.
const EnvPrefix = "AGENTFLOW"

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// DefaultDataDir returns ~/.agentflow.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".agentflow"), nil
}

// Load reads the config file, if present, and applies AGENTFLOW_* overrides.
// A missing file yields the defaults.
func (l *Loader) Load() (*Config, error) {
	configPath, err := l.resolvePath()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	fileExists := false
	if _, err := os.Stat(configPath); err == nil {
		fileExists = true
		v.SetConfigFile(configPath)
		v.SetConfigType(formatFor(configPath))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Servers == nil {
		cfg.Servers = DefaultConfig().Servers
	}
	if fileExists && len(cfg.Servers) > 0 {
		if err := restoreKeyCase(configPath, cfg); err != nil {
			return nil, err
		}
	}

	if cfg.DataDir == "" {
		dir, err := DefaultDataDir()
		if err != nil {
			return nil, err
		}
		cfg.DataDir = dir
	}

	return cfg, nil
}

// Save writes cfg as JSON, or YAML when the path ends in .yaml/.yml.
func (l *Loader) Save(cfg *Config) error {
	configPath, err := l.resolvePath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var data []byte
	switch formatFor(configPath) {
	case "yaml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	path, err := l.resolvePath()
	if err != nil {
		return ""
	}
	return path
}

func (l *Loader) resolvePath() (string, error) {
	if l.configPath != "" {
		return l.configPath, nil
	}
	dir, err := DefaultDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "agentflow.json"), nil
}

// restoreKeyCase re-applies the file's spelling of server names and server
// env keys, which viper lowercases.
func restoreKeyCase(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var raw struct {
		Servers map[string]struct {
			Env map[string]any `json:"env" yaml:"env"`
		} `json:"servers" yaml:"servers"`
	}
	switch formatFor(path) {
	case "yaml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return fmt.Errorf("failed to parse servers: %w", err)
	}

	servers := make(map[string]mcp.ServerConfig, len(cfg.Servers))
	for name, sc := range cfg.Servers {
		servers[name] = sc
	}
	for name, body := range raw.Servers {
		lower := strings.ToLower(name)
		sc, ok := servers[lower]
		if !ok {
			continue
		}
		if len(sc.Env) > 0 {
			env := make(map[string]string, len(sc.Env))
			for key := range body.Env {
				if value, ok := sc.Env[strings.ToLower(key)]; ok {
					env[key] = value
				}
			}
			sc.Env = env
		}
		delete(servers, lower)
		servers[name] = sc
	}
	cfg.Servers = servers
	return nil
}

func formatFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// setDefaults registers every scalar key so AutomaticEnv can override it
// even when the file does not mention it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.api_key_env", d.LLM.APIKeyEnv)
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)

	v.SetDefault("agent.max_steps", d.Agent.MaxSteps)
	v.SetDefault("agent.timeout_seconds", d.Agent.TimeoutSeconds)
	v.SetDefault("agent.planner", d.Agent.Planner)
	v.SetDefault("agent.simulations", d.Agent.Simulations)
	v.SetDefault("agent.continue_on_error", d.Agent.ContinueOnError)
	v.SetDefault("agent.parallel", d.Agent.Parallel)
	v.SetDefault("agent.synthesize", d.Agent.Synthesize)

	v.SetDefault("pool.workers", d.Pool.Workers)
	v.SetDefault("pool.capacity", d.Pool.Capacity)
	v.SetDefault("pool.task_timeout_seconds", d.Pool.TaskTimeoutSeconds)

	v.SetDefault("health.enabled", d.Health.Enabled)
	v.SetDefault("health.interval_seconds", d.Health.IntervalSeconds)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.console", d.Logging.Console)
	v.SetDefault("logging.pretty", d.Logging.Pretty)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.compress", d.Logging.Compress)
	v.SetDefault("logging.redaction", d.Logging.Redaction)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("metrics.audit_file", d.Metrics.AuditFile)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.insecure", d.Tracing.Insecure)
	v.SetDefault("tracing.sample_ratio", d.Tracing.SampleRatio)

	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("workspace_path", d.WorkspacePath)
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
