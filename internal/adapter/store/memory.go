package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"vetrag/internal/domain"
	"vetrag/internal/port"
)

// MemoryStore is an ephemeral port.VectorStore for tests and one-shot runs.
type MemoryStore struct {
	collection string
	embedder   port.Embedder
	logger     *slog.Logger

	mu      sync.RWMutex
	meta    *collectionMeta
	ensured bool
	chunks  map[string]domain.Chunk
}

func NewMemoryStore(collection string, embedder port.Embedder, logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{
		collection: collection,
		embedder:   embedder,
		logger:     logger.With("store", "memory", "collection", collection),
		chunks:     make(map[string]domain.Chunk),
	}
}

func (s *MemoryStore) EnsureCollection(_ context.Context, schema domain.CollectionSchema) error {
	schema, err := normalizeSchema(schema, s.collection)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := CheckMigration(s.meta, schema)
	if err != nil {
		return err
	}
	if s.ensured && !result.Create && !result.NeedsMigration {
		return nil
	}
	if result.Create {
		s.meta = &collectionMeta{
			Name:      schema.Name,
			Version:   schema.Version,
			Dimension: schema.Dimension,
			Metric:    schema.Metric,
			Fields:    domain.ChunkFields,
			CreatedAt: time.Now().UTC(),
		}
	}
	// in-memory chunks are already in the current layout
	s.meta.Version = schema.Version
	s.ensured = true
	return nil
}

func (s *MemoryStore) Insert(ctx context.Context, chunks []domain.Chunk) (port.InsertResult, error) {
	s.mu.RLock()
	meta := s.meta
	s.mu.RUnlock()
	if meta == nil {
		return port.InsertResult{}, fmt.Errorf("%w: collection %q not ensured", domain.ErrInsertion, s.collection)
	}

	valid, skipped := prepareChunks(ctx, chunks, meta.Dimension, s.embedder, s.logger)

	s.mu.Lock()
	for _, c := range valid {
		s.chunks[c.ChunkID] = c
	}
	s.mu.Unlock()

	return insertOutcome(len(chunks), len(valid), skipped)
}

func (s *MemoryStore) Search(_ context.Context, vector []float32, k int) ([]domain.ScoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.meta == nil {
		return nil, fmt.Errorf("%w: collection %q not ensured", domain.ErrSearch, s.collection)
	}
	if err := checkQuery(vector, s.meta.Dimension); err != nil {
		return nil, err
	}

	all := make([]domain.Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		all = append(all, c)
	}
	return rankByInnerProduct(vector, all, k), nil
}

func (s *MemoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

func (s *MemoryStore) DropCollection(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = nil
	s.ensured = false
	s.chunks = make(map[string]domain.Chunk)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
