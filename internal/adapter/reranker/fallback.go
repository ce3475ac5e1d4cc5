package reranker

import (
	"context"
	"log/slog"
	"strings"

	"vetrag/internal/domain"
	"vetrag/internal/port"
)

// FallbackReranker tries strategies in order and returns the first success.
// When every strategy fails the candidates come back in retrieval order.
type FallbackReranker struct {
	strategies []port.Reranker
	logger     *slog.Logger
}

func NewFallbackReranker(logger *slog.Logger, strategies ...port.Reranker) *FallbackReranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackReranker{strategies: strategies, logger: logger}
}

func (r *FallbackReranker) Name() string {
	names := make([]string, 0, len(r.strategies)+1)
	for _, s := range r.strategies {
		names = append(names, s.Name())
	}
	names = append(names, Unranked{}.Name())
	return strings.Join(names, ">")
}

func (r *FallbackReranker) Rerank(ctx context.Context, query string, docs []domain.ScoredChunk) ([]domain.ScoredChunk, error) {
	for _, s := range r.strategies {
		out, err := s.Rerank(ctx, query, docs)
		if err == nil {
			return out, nil
		}
		r.logger.Warn("rerank strategy failed, falling back", "strategy", s.Name(), "error", err)
	}
	return Unranked{}.Rerank(ctx, query, docs)
}
