package generation

import (
	"fmt"
	"os"
	"time"

	"plotloom/internal/config"
)

// Provider identifies a text-generation backend.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// NewClient builds an LLMClient from the LLM config section. The API key
// falls back to the provider's conventional environment variable when the
// config leaves it empty.
func NewClient(cfg config.LLMConfig) (LLMClient, error) {
	provider := Provider(cfg.Provider)
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = envKeyFor(provider)
	}
	if provider == "" {
		detected, err := DetectProvider()
		if err != nil {
			return nil, err
		}
		provider, apiKey = detected.Provider, detected.APIKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %q", provider)
	}

	// Per-call deadlines come from the pipeline; the transport timeout is a
	// backstop for connections that hang past any caller deadline.
	timeout := 2 * config.ParseDuration(cfg.Timeout, 45*time.Second)

	switch provider {
	case ProviderOpenAI:
		c := DefaultOpenAIConfig(apiKey)
		c.Timeout = timeout
		if cfg.BaseURL != "" {
			c.BaseURL = cfg.BaseURL
		}
		if cfg.Model != "" {
			c.Model = cfg.Model
		}
		return NewOpenAIClientWithConfig(c), nil
	case ProviderAnthropic:
		c := DefaultAnthropicConfig(apiKey)
		c.Timeout = timeout
		if cfg.BaseURL != "" {
			c.BaseURL = cfg.BaseURL
		}
		if cfg.Model != "" {
			c.Model = cfg.Model
		}
		return NewAnthropicClientWithConfig(c), nil
	case ProviderGemini:
		c := DefaultGeminiConfig(apiKey)
		c.Timeout = timeout
		if cfg.BaseURL != "" {
			c.BaseURL = cfg.BaseURL
		}
		if cfg.Model != "" {
			c.Model = cfg.Model
		}
		return NewGeminiClientWithConfig(c), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// ProviderConfig holds a detected provider and API key.
type ProviderConfig struct {
	Provider Provider
	APIKey   string
}

// DetectProvider checks environment variables in priority order:
// ANTHROPIC > OPENAI > GEMINI.
func DetectProvider() (*ProviderConfig, error) {
	providers := []struct {
		envVar   string
		provider Provider
	}{
		{"ANTHROPIC_API_KEY", ProviderAnthropic},
		{"OPENAI_API_KEY", ProviderOpenAI},
		{"GEMINI_API_KEY", ProviderGemini},
	}
	for _, p := range providers {
		if key := os.Getenv(p.envVar); key != "" {
			return &ProviderConfig{Provider: p.provider, APIKey: key}, nil
		}
	}
	return nil, fmt.Errorf("no API key found; set ANTHROPIC_API_KEY, OPENAI_API_KEY or GEMINI_API_KEY")
}

func envKeyFor(p Provider) string {
	switch p {
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case ProviderGemini:
		return os.Getenv("GEMINI_API_KEY")
	}
	return ""
}
