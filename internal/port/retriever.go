package port

import (
	"context"

	"vetrag/internal/domain"
)

// Retriever fetches candidate chunks for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]domain.ScoredChunk, error)
}
