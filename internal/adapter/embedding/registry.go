package embedding

import (
	"context"
	"log/slog"
	"sort"

	"vetrag/config"
	"vetrag/internal/domain"
)

// Factory builds a backend from configuration.
type Factory func(ctx context.Context, cfg config.EmbeddingConfig) (Backend, error)

var registry = map[string]Factory{
	"hash": func(_ context.Context, cfg config.EmbeddingConfig) (Backend, error) {
		return NewHashEmbedder(cfg.Dimension), nil
	},
	"openai": func(_ context.Context, cfg config.EmbeddingConfig) (Backend, error) {
		return NewOpenAIEmbedder(cfg.APIKeyEnv, cfg.Model, cfg.BaseURL, cfg.Dimension)
	},
	"ollama": func(_ context.Context, cfg config.EmbeddingConfig) (Backend, error) {
		return NewOllamaEmbedder(cfg.Model, cfg.BaseURL, cfg.Dimension), nil
	},
	"gemini": func(ctx context.Context, cfg config.EmbeddingConfig) (Backend, error) {
		return NewGeminiEmbedder(ctx, cfg.APIKeyEnv, cfg.Model, cfg.Dimension)
	},
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

// Check reports whether provider is registered.
func Check(provider string) error {
	if _, ok := registry[provider]; !ok {
		return &domain.UnsupportedProviderError{Kind: "embedding", Provider: provider, Known: Providers()}
	}
	return nil
}

// New builds the configured embedding provider.
func New(ctx context.Context, cfg config.EmbeddingConfig, logger *slog.Logger) (*Provider, error) {
	if err := Check(cfg.Provider); err != nil {
		return nil, err
	}
	backend, err := registry[cfg.Provider](ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewProvider(backend, cfg.Dimension, cfg.CacheSize, logger), nil
}
