package port

import (
	"context"

	"vetrag/internal/domain"
)

// VectorStore persists chunks with their vectors and answers nearest-neighbor
// queries by inner product.
type VectorStore interface {
	// EnsureCollection creates the collection if missing. It never drops data.
	EnsureCollection(ctx context.Context, schema domain.CollectionSchema) error

	// Insert upserts chunks by ChunkID, skipping malformed records.
	Insert(ctx context.Context, chunks []domain.Chunk) (InsertResult, error)

	// Search returns up to k chunks ordered by descending inner product.
	Search(ctx context.Context, vector []float32, k int) ([]domain.ScoredChunk, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// DropCollection destroys the collection and all its chunks.
	DropCollection(ctx context.Context) error

	Close() error
}

// InsertResult reports what an Insert call wrote.
type InsertResult struct {
	Written int             `json:"written"`
	Skipped []SkippedRecord `json:"skipped,omitempty"`
}

type SkippedRecord struct {
	Index   int    `json:"index"`
	ChunkID string `json:"chunk_id"`
	Reason  string `json:"reason"`
}
