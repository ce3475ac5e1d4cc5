package llm

import (
	"context"
	"sort"

	"vetrag/config"
	"vetrag/internal/domain"
	"vetrag/internal/port"
)

// Factory builds a completion client from configuration.
type Factory func(ctx context.Context, cfg config.LLMConfig) (port.LLM, error)

var registry = map[string]Factory{
	"none": func(context.Context, config.LLMConfig) (port.LLM, error) {
		return nil, nil
	},
	"openai": func(_ context.Context, cfg config.LLMConfig) (port.LLM, error) {
		return NewOpenAIClientFromEnv(cfg.APIKeyEnv, openAIOptions(cfg))
	},
	"ollama": func(_ context.Context, cfg config.LLMConfig) (port.LLM, error) {
		return NewOllamaClient(openAIOptions(cfg))
	},
	"gemini": func(ctx context.Context, cfg config.LLMConfig) (port.LLM, error) {
		return NewGeminiClient(ctx, cfg.APIKeyEnv, cfg.Model, cfg.Temperature, cfg.Timeout)
	},
}

func openAIOptions(cfg config.LLMConfig) OpenAIOptions {
	return OpenAIOptions{
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
		MaxRetries:  cfg.MaxRetries,
	}
}

// Providers lists the registered provider tags.
func Providers() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check reports whether provider is registered. An empty tag means "none".
func Check(provider string) error {
	if provider == "" {
		return nil
	}
	if _, ok := registry[provider]; !ok {
		return &domain.UnsupportedProviderError{Kind: "llm", Provider: provider, Known: Providers()}
	}
	return nil
}

// New builds the configured client. It returns nil, nil for "none".
func New(ctx context.Context, cfg config.LLMConfig) (port.LLM, error) {
	if err := Check(cfg.Provider); err != nil {
		return nil, err
	}
	if cfg.Provider == "" {
		return nil, nil
	}
	return registry[cfg.Provider](ctx, cfg)
}
