package reranker

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"vetrag/internal/adapter/embedding"
	"vetrag/internal/domain"
	"vetrag/internal/port"
)

// SimilarityReranker scores each candidate by the cosine similarity between
// the query and the candidate's text embeddings.
type SimilarityReranker struct {
	embedder    port.Embedder
	concurrency int
	logger      *slog.Logger
}

func NewSimilarityReranker(embedder port.Embedder, concurrency int, logger *slog.Logger) *SimilarityReranker {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SimilarityReranker{embedder: embedder, concurrency: concurrency, logger: logger}
}

func (r *SimilarityReranker) Name() string { return "similarity" }

// Rerank fails only when the query cannot be embedded. A candidate whose
// text cannot be embedded scores 0 and stays in the result.
func (r *SimilarityReranker) Rerank(ctx context.Context, query string, docs []domain.ScoredChunk) ([]domain.ScoredChunk, error) {
	if len(docs) == 0 {
		return []domain.ScoredChunk{}, nil
	}
	if r.embedder == nil {
		return nil, fmt.Errorf("%w: no embedder configured", domain.ErrScoring)
	}

	queryVec, err := r.embedder.Encode(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", domain.ErrScoring, err)
	}

	scores := make([]float64, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(r.concurrency, len(docs)))
	for i := range docs {
		g.Go(func() error {
			vec, err := r.embedder.Encode(gctx, docs[i].Chunk.SectionText)
			if err != nil {
				r.logger.Warn("document embedding failed", "chunk_id", docs[i].Chunk.ChunkID, "error", err)
				return nil
			}
			scores[i] = embedding.Cosine(queryVec, vec)
			return nil
		})
	}
	_ = g.Wait()

	return withScores(docs, scores), nil
}
