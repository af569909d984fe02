package mcp

import (
	"fmt"
	"strings"
	"time"
)

// ServerType selects how a server process is launched.
type ServerType string

const (
	// ServerTypeModule runs a Python module: python -m <module>.
	ServerTypeModule ServerType = "module"
	// ServerTypePackage runs a Node package: npx [-y] <package>.
	ServerTypePackage ServerType = "package"
)

// DefaultCallTimeout bounds every remote request unless configured otherwise.
const DefaultCallTimeout = 60 * time.Second

// ServerConfig describes one launchable MCP server.
type ServerConfig struct {
	Type        ServerType        `json:"type" yaml:"type" mapstructure:"type"`
	Module      string            `json:"module,omitempty" yaml:"module,omitempty" mapstructure:"module"`
	Package     string            `json:"package,omitempty" yaml:"package,omitempty" mapstructure:"package"`
	AutoInstall bool              `json:"auto_install,omitempty" yaml:"auto_install,omitempty" mapstructure:"auto_install"`
	Interpreter string            `json:"interpreter,omitempty" yaml:"interpreter,omitempty" mapstructure:"interpreter"`
	Args        []string          `json:"args,omitempty" yaml:"args,omitempty" mapstructure:"args"`
	Env         map[string]string `json:"env,omitempty" yaml:"env,omitempty" mapstructure:"env"`
	Dir         string            `json:"dir,omitempty" yaml:"dir,omitempty" mapstructure:"dir"`
	CallTimeout time.Duration     `json:"call_timeout,omitempty" yaml:"call_timeout,omitempty" mapstructure:"call_timeout"`
}

// Validate checks that the config names what it launches.
func (c ServerConfig) Validate() error {
	switch c.Type {
	case ServerTypeModule:
		if strings.TrimSpace(c.Module) == "" {
			return fmt.Errorf("module name is required for server type %q", c.Type)
		}
	case ServerTypePackage:
		if strings.TrimSpace(c.Package) == "" {
			return fmt.Errorf("package name is required for server type %q", c.Type)
		}
	default:
		return fmt.Errorf("unknown server type %q (want %q or %q)", c.Type, ServerTypeModule, ServerTypePackage)
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("call_timeout must not be negative")
	}
	return nil
}

// minStartTimeout is the least time a handshake gets, since it includes
// process startup.
const minStartTimeout = 10 * time.Second

func (c ServerConfig) startTimeout() time.Duration {
	return max(c.callTimeout(), minStartTimeout)
}

func (c ServerConfig) callTimeout() time.Duration {
	if c.CallTimeout > 0 {
		return c.CallTimeout
	}
	return DefaultCallTimeout
}

// LaunchSpec is the concrete command line for a server.
type LaunchSpec struct {
	Command string
	Args    []string
	Env     map[string]string
	Dir     string
	// Install, when set, runs to completion before the server is launched.
	Install []string
}

// CommandBuilder turns a server config into a LaunchSpec.
type CommandBuilder func(name string, cfg ServerConfig) (LaunchSpec, error)

// BuildCommand is the default CommandBuilder.
func BuildCommand(name string, cfg ServerConfig) (LaunchSpec, error) {
	if err := cfg.Validate(); err != nil {
		return LaunchSpec{}, fmt.Errorf("server %s: %w", name, err)
	}

	spec := LaunchSpec{Env: cfg.Env, Dir: cfg.Dir}
	switch cfg.Type {
	case ServerTypeModule:
		spec.Command = cfg.Interpreter
		if spec.Command == "" {
			spec.Command = "python"
		}
		spec.Args = append([]string{"-m", cfg.Module}, cfg.Args...)
		if cfg.AutoInstall {
			spec.Install = []string{spec.Command, "-m", "pip", "install", cfg.Module}
		}
	case ServerTypePackage:
		spec.Command = cfg.Interpreter
		if spec.Command == "" {
			spec.Command = "npx"
		}
		if cfg.AutoInstall {
			spec.Args = append(spec.Args, "-y")
		}
		spec.Args = append(spec.Args, cfg.Package)
		spec.Args = append(spec.Args, cfg.Args...)
	}
	return spec, nil
}
