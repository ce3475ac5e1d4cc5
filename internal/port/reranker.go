package port

import (
	"context"

	"vetrag/internal/domain"
)

// Reranker reorders candidates by a relevance signal. The result is always a
// permutation of the input.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []domain.ScoredChunk) ([]domain.ScoredChunk, error)

	// Name identifies the strategy in logs.
	Name() string
}

// Synthesizer assembles the final answer text from ranked chunks.
type Synthesizer interface {
	Synthesize(query string, docs []domain.ScoredChunk) string
}
