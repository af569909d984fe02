package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

var (
	validProviders = []string{"ollama", "openrouter", "openai", "anthropic"}
	validPlanners  = []string{"multi_step", "chain_of_thought", "htn", "monte_carlo"}
	validLevels    = []string{"debug", "info", "warn", "error"}
)

func oneOf(value string, valid []string) bool {
	for _, v := range valid {
		if value == v {
			return true
		}
	}
	return false
}

// ValidateProvider validates an LLM provider name
func (v *Validator) ValidateProvider(provider string) error {
	if !oneOf(provider, validProviders) {
		return fmt.Errorf("invalid llm provider: %s (must be one of: %s)", provider, strings.Join(validProviders, ", "))
	}
	return nil
}

// ValidatePlanner validates a planner kind
func (v *Validator) ValidatePlanner(planner string) error {
	if !oneOf(planner, validPlanners) {
		return fmt.Errorf("invalid planner: %s (must be one of: %s)", planner, strings.Join(validPlanners, ", "))
	}
	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", temp)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	if !oneOf(level, validLevels) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error

	for _, name := range cfg.ServerNames() {
		if strings.Contains(name, "::") {
			errs = append(errs, fmt.Errorf("server %s: name must not contain \"::\"", name))
		}
		if err := cfg.Servers[name].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("server %s: %w", name, err))
		}
	}
	for _, name := range cfg.EnabledServers {
		if _, ok := cfg.Servers[name]; !ok {
			errs = append(errs, fmt.Errorf("enabled server %s is not configured", name))
		}
	}

	if err := v.ValidateProvider(cfg.LLM.Provider); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(cfg.LLM.Model) == "" {
		errs = append(errs, fmt.Errorf("llm model is required"))
	}
	if err := v.ValidateTemperature(cfg.LLM.Temperature); err != nil {
		errs = append(errs, err)
	}
	if cfg.LLM.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("llm max_tokens must be >= 0"))
	}

	if err := v.ValidatePlanner(cfg.Agent.Planner); err != nil {
		errs = append(errs, err)
	}
	if cfg.Agent.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("agent max_steps must be > 0"))
	}
	if cfg.Agent.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("agent timeout_seconds must be >= 0"))
	}
	if cfg.Agent.Simulations < 0 {
		errs = append(errs, fmt.Errorf("agent simulations must be >= 0"))
	}

	if cfg.Pool.Workers <= 0 {
		errs = append(errs, fmt.Errorf("pool workers must be > 0"))
	}
	if cfg.Pool.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("pool capacity must be > 0"))
	}
	if cfg.Pool.TaskTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("pool task_timeout_seconds must be >= 0"))
	}

	if cfg.Health.Enabled && cfg.Health.IntervalSeconds <= 0 {
		errs = append(errs, fmt.Errorf("health interval_seconds must be > 0 when enabled"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if cfg.Metrics.Enabled && strings.TrimSpace(cfg.Metrics.Addr) == "" {
		errs = append(errs, fmt.Errorf("metrics addr is required when metrics are enabled"))
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing sample_ratio must be between 0 and 1"))
	}

	return errs
}
