package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"vetrag/internal/domain"
	"vetrag/internal/port"
)

// OverFetch is how many candidates are requested per result the caller
// wants, leaving the reranker room to reorder.
const OverFetch = 2

// SemanticRetriever embeds the query and asks the vector store for its
// nearest chunks.
type SemanticRetriever struct {
	vectorStore port.VectorStore
	embedder    port.Embedder
	logger      *slog.Logger
}

func NewSemanticRetriever(vectorStore port.VectorStore, embedder port.Embedder, logger *slog.Logger) *SemanticRetriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &SemanticRetriever{
		vectorStore: vectorStore,
		embedder:    embedder,
		logger:      logger,
	}
}

// Retrieve returns up to OverFetch*topK candidates in the store's order. An
// empty result is not an error.
func (r *SemanticRetriever) Retrieve(ctx context.Context, query string, topK int) ([]domain.ScoredChunk, error) {
	if r.vectorStore == nil || r.embedder == nil {
		return nil, errors.New("semantic search not available: store or embedder not configured")
	}
	if topK <= 0 {
		return []domain.ScoredChunk{}, nil
	}

	vec, err := r.embedder.Encode(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := r.vectorStore.Search(ctx, vec, OverFetch*topK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	r.logger.Debug("retrieved candidates", "requested", OverFetch*topK, "found", len(results))
	return results, nil
}
