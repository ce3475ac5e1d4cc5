// Package container wires configuration into ready-to-use services.
package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"vetrag/config"
	"vetrag/internal/adapter/embedding"
	"vetrag/internal/adapter/fs"
	"vetrag/internal/adapter/llm"
	"vetrag/internal/adapter/reranker"
	"vetrag/internal/adapter/store"
	"vetrag/internal/domain"
	"vetrag/internal/port"
	"vetrag/internal/usecase"
)

// Container holds the wired services. Nothing touches the store until the
// first Startup, Ask or Insert.
type Container struct {
	Ask    *usecase.AskUseCase
	Ingest *usecase.IngestUseCase

	Embedder port.Embedder
	LLM      port.LLM
	Reranker port.Reranker

	logger *slog.Logger
}

// Check validates every provider tag against its registry.
func Check(cfg *config.Config) error {
	return errors.Join(
		store.Check(cfg.StoreProvider()),
		embedding.Check(cfg.Embedding.Provider),
		llm.Check(cfg.LLM.Provider),
		reranker.Check(cfg.Rerank.Strategy),
	)
}

// New builds the services for cfg. dir resolves relative store paths.
func New(ctx context.Context, cfg *config.Config, dir string, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := Check(cfg); err != nil {
		return nil, err
	}

	embedder, err := embedding.New(ctx, cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}

	completion, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}

	rr, err := reranker.New(cfg.Rerank, embedder, completion, logger)
	if err != nil {
		return nil, fmt.Errorf("reranker: %w", err)
	}

	storeOpts := store.OptionsFromConfig(cfg, dir)
	open := func(ctx context.Context) (port.VectorStore, error) {
		return store.Open(ctx, storeOpts, embedder, logger)
	}

	schema := domain.CollectionSchema{
		Name:      cfg.Store.Collection,
		Dimension: cfg.Embedding.Dimension,
		Metric:    domain.MetricInnerProduct,
	}
	ask := usecase.NewAskUseCase(open, embedder, rr, usecase.NewSynthesizer(), schema, cfg.Retrieve.TopK, logger)

	walker := fs.NewWalker(cfg.Ingest.Includes, cfg.Ingest.Excludes)
	ingest := usecase.NewIngestUseCase(ask, walker, cfg.Ingest.BatchSize, logger)

	logger.Debug("services wired",
		"store", storeOpts.Provider,
		"embedding", cfg.Embedding.Provider,
		"llm", cfg.LLM.Provider,
		"reranker", rr.Name(),
	)

	return &Container{
		Ask:      ask,
		Ingest:   ingest,
		Embedder: embedder,
		LLM:      completion,
		Reranker: rr,
		logger:   logger,
	}, nil
}

// Close shuts the orchestrator down and releases the store.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Ask == nil {
		return nil
	}
	return c.Ask.Shutdown(ctx)
}

// Logger returns the container logger.
func (c *Container) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}
