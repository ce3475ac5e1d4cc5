// Package reranker reorders retrieved candidates by query relevance. Every
// strategy returns a permutation of its input.
package reranker

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"vetrag/config"
	"vetrag/internal/domain"
	"vetrag/internal/port"
)

// withScores returns docs re-scored and sorted by descending score. The sort
// is stable so equal scores keep retrieval order.
func withScores(docs []domain.ScoredChunk, scores []float64) []domain.ScoredChunk {
	out := make([]domain.ScoredChunk, len(docs))
	for i, d := range docs {
		out[i] = domain.ScoredChunk{Chunk: d.Chunk, Score: scores[i]}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// Unranked returns candidates in retrieval order.
type Unranked struct{}

func (Unranked) Rerank(_ context.Context, _ string, docs []domain.ScoredChunk) ([]domain.ScoredChunk, error) {
	return append([]domain.ScoredChunk{}, docs...), nil
}

func (Unranked) Name() string { return "unranked" }

// New builds the configured strategy wrapped in its fallback chain:
// model > similarity > unranked, or similarity > unranked.
func New(cfg config.RerankConfig, embedder port.Embedder, llm port.LLM, logger *slog.Logger) (port.Reranker, error) {
	if err := Check(cfg.Strategy); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	similarity := NewSimilarityReranker(embedder, cfg.MaxConcurrency, logger)
	switch cfg.Strategy {
	case "model":
		if llm == nil {
			return nil, errors.New(`rerank strategy "model" requires an llm provider`)
		}
		model := NewModelReranker(llm, ModelOptions{
			MaxDocChars:    cfg.MaxDocChars,
			DefaultScore:   cfg.DefaultScore,
			MaxConcurrency: cfg.MaxConcurrency,
			Timeout:        cfg.Timeout,
		}, logger)
		return NewFallbackReranker(logger, model, similarity), nil
	default:
		return NewFallbackReranker(logger, similarity), nil
	}
}

// Strategies lists the configurable strategy names.
func Strategies() []string {
	return []string{"model", "similarity"}
}

// Check reports whether strategy is known. Empty means "similarity".
func Check(strategy string) error {
	switch strings.TrimSpace(strategy) {
	case "", "similarity", "model":
		return nil
	}
	return &domain.UnsupportedProviderError{Kind: "rerank", Provider: strategy, Known: Strategies()}
}
