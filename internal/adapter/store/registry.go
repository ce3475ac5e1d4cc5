package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"vetrag/config"
	"vetrag/internal/domain"
	"vetrag/internal/port"
)

// Options is the resolved connection descriptor for a store.
type Options struct {
	Provider       string
	Path           string
	URI            string
	Token          string
	Collection     string
	ConnectRetries int
	ConnectTimeout time.Duration
}

// OptionsFromConfig resolves the provider, the local path against dir and
// the remote token from the environment.
func OptionsFromConfig(cfg *config.Config, dir string) Options {
	opts := Options{
		Provider:       cfg.StoreProvider(),
		Path:           cfg.StorePath(dir),
		URI:            cfg.Store.URI,
		Collection:     cfg.Store.Collection,
		ConnectRetries: cfg.Store.ConnectRetries,
		ConnectTimeout: cfg.Store.ConnectTimeout,
	}
	if cfg.Store.TokenEnv != "" {
		opts.Token = os.Getenv(cfg.Store.TokenEnv)
	}
	return opts
}

// Factory opens a store for one collection.
type Factory func(ctx context.Context, opts Options, embedder port.Embedder, logger *slog.Logger) (port.VectorStore, error)

var registry = map[string]Factory{
	"bolt": func(_ context.Context, opts Options, embedder port.Embedder, logger *slog.Logger) (port.VectorStore, error) {
		return NewBoltVectorStore(opts.Path, opts.Collection, opts.ConnectTimeout, embedder, logger)
	},
	"pgvector": func(ctx context.Context, opts Options, embedder port.Embedder, logger *slog.Logger) (port.VectorStore, error) {
		return NewPgVectorStore(ctx, PgOptions{
			URI:            opts.URI,
			Token:          opts.Token,
			Collection:     opts.Collection,
			ConnectRetries: opts.ConnectRetries,
			ConnectTimeout: opts.ConnectTimeout,
		}, embedder, logger)
	},
	"memory": func(_ context.Context, opts Options, embedder port.Embedder, logger *slog.Logger) (port.VectorStore, error) {
		return NewMemoryStore(opts.Collection, embedder, logger), nil
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
		return &domain.UnsupportedProviderError{Kind: "store", Provider: provider, Known: Providers()}
	}
	return nil
}

// Open connects to the store described by opts.
func Open(ctx context.Context, opts Options, embedder port.Embedder, logger *slog.Logger) (port.VectorStore, error) {
	if err := Check(opts.Provider); err != nil {
		return nil, err
	}
	if opts.Collection == "" {
		return nil, fmt.Errorf("%w: no collection name", domain.ErrStoreUnavailable)
	}
	return registry[opts.Provider](ctx, opts, embedder, logger)
}
