package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/harun/agentflow/pkg/flowerr"
	"github.com/rs/zerolog/log"
)

// ProviderConfig selects and configures a backend.
type ProviderConfig struct {
	Provider string
	BaseURL  string
	APIKey   string
	// APIKeyEnv names the environment variable holding the key when APIKey is empty.
	APIKeyEnv string
}

// NewProvider builds the provider named by cfg.Provider.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	key := resolveAPIKey(cfg)

	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOllama:
		return NewOllamaProvider(cfg.BaseURL), nil
	case ProviderOpenRouter:
		p := NewOpenRouterProvider(key)
		if cfg.BaseURL != "" {
			p = NewOpenAIProvider(OpenAIConfig{Name: ProviderOpenRouter, BaseURL: cfg.BaseURL, APIKey: key})
		}
		return p, nil
	case ProviderOpenAI:
		return NewOpenAIProvider(OpenAIConfig{Name: ProviderOpenAI, BaseURL: cfg.BaseURL, APIKey: key}), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(AnthropicConfig{BaseURL: cfg.BaseURL, APIKey: key}), nil
	default:
		return nil, flowerr.Config("llm.new_provider", fmt.Sprintf("unsupported provider: %s", cfg.Provider), nil)
	}
}

func resolveAPIKey(cfg ProviderConfig) string {
	if cfg.APIKey != "" {
		return cfg.APIKey
	}
	env := cfg.APIKeyEnv
	if env == "" && strings.EqualFold(cfg.Provider, ProviderOpenRouter) {
		env = DefaultOpenRouterKeyEnv
	}
	if env == "" {
		return ""
	}
	key := os.Getenv(env)
	if key == "" {
		log.Warn().Str("env", env).Str("provider", cfg.Provider).Msg("API key environment variable is not set")
	}
	return key
}

// classify maps an SDK failure onto the error taxonomy. Non-2xx responses are
// API client errors; anything else that is not a ctx error is a network error.
func classify(op string, status int, isAPIErr bool, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if isAPIErr {
		return flowerr.APIClient(op, fmt.Sprintf("API request failed with status: %d", status), err)
	}
	return flowerr.Network(op, "failed to send request", err)
}
