package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"vetrag/internal/domain"
	"vetrag/internal/platform/async"
	"vetrag/internal/port"
)

var bucketCollections = []byte("collections")

func collectionBucket(name string) []byte {
	return []byte("chunks:" + name)
}

// BoltVectorStore implements port.VectorStore on a local bbolt file. Chunks
// are persisted as JSON records and mirrored in memory; search is an exact
// inner-product scan over that mirror.
type BoltVectorStore struct {
	db         *bbolt.DB
	collection string
	embedder   port.Embedder
	logger     *slog.Logger

	mu        sync.RWMutex
	ensured   bool
	dimension int
	chunks    map[string]domain.Chunk
}

// NewBoltVectorStore opens (or creates) the bolt file at path. timeout bounds
// the wait for the file lock held by another process.
func NewBoltVectorStore(path, collection string, timeout time.Duration, embedder port.Embedder, logger *slog.Logger) (*BoltVectorStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open bolt db %s: %w", domain.ErrStoreUnavailable, path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCollections)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to create collections bucket: %w", domain.ErrStoreUnavailable, err)
	}

	return &BoltVectorStore{
		db:         db,
		collection: collection,
		embedder:   embedder,
		logger:     logger.With("store", "bolt", "collection", collection),
	}, nil
}

// EnsureCollection creates or migrates the collection and loads it into
// memory. Later calls are no-ops until the collection is dropped.
func (s *BoltVectorStore) EnsureCollection(ctx context.Context, schema domain.CollectionSchema) error {
	schema, err := normalizeSchema(schema, s.collection)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ensured {
		if schema.Dimension != s.dimension {
			return &domain.SchemaMismatchError{
				Collection: s.collection,
				Reason:     fmt.Sprintf("dimension %d, expected %d", s.dimension, schema.Dimension),
			}
		}
		return nil
	}

	chunks, err := async.Do(ctx, func() (map[string]domain.Chunk, error) {
		return s.ensure(schema)
	})
	if err != nil {
		return err
	}

	s.chunks = chunks
	s.dimension = schema.Dimension
	s.ensured = true
	s.logger.Info("collection ready", "dimension", schema.Dimension, "chunks", len(chunks))
	return nil
}

func (s *BoltVectorStore) ensure(schema domain.CollectionSchema) (map[string]domain.Chunk, error) {
	chunks := make(map[string]domain.Chunk)

	err := s.db.Update(func(tx *bbolt.Tx) error {
		metaBucket := tx.Bucket(bucketCollections)

		var existing *collectionMeta
		if data := metaBucket.Get([]byte(schema.Name)); data != nil {
			existing = &collectionMeta{}
			if err := json.Unmarshal(data, existing); err != nil {
				return fmt.Errorf("%w: unreadable collection metadata: %w", domain.ErrStoreUnavailable, err)
			}
		}

		result, err := CheckMigration(existing, schema)
		if err != nil {
			return err
		}

		b, err := tx.CreateBucketIfNotExists(collectionBucket(schema.Name))
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}

		switch {
		case result.Create:
			meta := collectionMeta{
				Name:      schema.Name,
				Version:   schema.Version,
				Dimension: schema.Dimension,
				Metric:    schema.Metric,
				Fields:    domain.ChunkFields,
				CreatedAt: time.Now().UTC(),
			}
			if err := putMeta(metaBucket, meta); err != nil {
				return err
			}
			s.logger.Info("created collection", "version", schema.Version)
		case result.NeedsMigration:
			s.logger.Info("migrating collection", "reason", result.Reason)
			if err := migrateBolt(b, result.OldVersion, result.NewVersion); err != nil {
				return err
			}
			existing.Version = result.NewVersion
			if err := putMeta(metaBucket, *existing); err != nil {
				return err
			}
		}

		return b.ForEach(func(k, v []byte) error {
			var rec domain.ChunkRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				s.logger.Warn("skipping unreadable record", "chunk_id", string(k), "error", err)
				return nil
			}
			chunks[string(k)] = rec.Chunk()
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

func putMeta(b *bbolt.Bucket, meta collectionMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return b.Put([]byte(meta.Name), data)
}

// Insert upserts chunks by ChunkID.
func (s *BoltVectorStore) Insert(ctx context.Context, chunks []domain.Chunk) (port.InsertResult, error) {
	s.mu.RLock()
	ensured, dimension := s.ensured, s.dimension
	s.mu.RUnlock()
	if !ensured {
		return port.InsertResult{}, fmt.Errorf("%w: collection %q not ensured", domain.ErrInsertion, s.collection)
	}

	valid, skipped := prepareChunks(ctx, chunks, dimension, s.embedder, s.logger)
	if len(valid) == 0 {
		return insertOutcome(len(chunks), 0, skipped)
	}

	if err := ctx.Err(); err != nil {
		return port.InsertResult{Skipped: skipped}, fmt.Errorf("%w: %w", domain.ErrInsertion, err)
	}

	// Once started the write runs to completion so the mirror and the file
	// agree. The lock orders concurrent writers of the same chunk ID.
	err := async.Run(context.WithoutCancel(ctx), func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		err := s.db.Update(func(tx *bbolt.Tx) error {
			b := tx.Bucket(collectionBucket(s.collection))
			if b == nil {
				return fmt.Errorf("collection bucket %q missing", s.collection)
			}
			for _, c := range valid {
				data, err := json.Marshal(domain.RecordFromChunk(c))
				if err != nil {
					return err
				}
				if err := b.Put([]byte(c.ChunkID), data); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		if s.chunks != nil {
			for _, c := range valid {
				s.chunks[c.ChunkID] = c
			}
		}
		return nil
	})
	if err != nil {
		return port.InsertResult{Skipped: skipped}, fmt.Errorf("%w: %w", domain.ErrInsertion, err)
	}

	s.logger.Debug("inserted chunks", "written", len(valid), "skipped", len(skipped))
	return insertOutcome(len(chunks), len(valid), skipped)
}

// Search scans all chunks by inner product.
func (s *BoltVectorStore) Search(ctx context.Context, vector []float32, k int) ([]domain.ScoredChunk, error) {
	s.mu.RLock()
	if !s.ensured {
		s.mu.RUnlock()
		return nil, fmt.Errorf("%w: collection %q not ensured", domain.ErrSearch, s.collection)
	}
	if err := checkQuery(vector, s.dimension); err != nil {
		s.mu.RUnlock()
		return nil, err
	}
	snapshot := make([]domain.Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		snapshot = append(snapshot, c)
	}
	s.mu.RUnlock()

	return async.Do(ctx, func() ([]domain.ScoredChunk, error) {
		return rankByInnerProduct(vector, snapshot, k), nil
	})
}

// Count returns the number of stored chunks.
func (s *BoltVectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	if s.ensured {
		n := len(s.chunks)
		s.mu.RUnlock()
		return n, nil
	}
	s.mu.RUnlock()

	return async.Do(ctx, func() (int, error) {
		var n int
		err := s.db.View(func(tx *bbolt.Tx) error {
			if b := tx.Bucket(collectionBucket(s.collection)); b != nil {
				n = b.Stats().KeyN
			}
			return nil
		})
		return n, err
	})
}

// DropCollection deletes the collection and its metadata.
func (s *BoltVectorStore) DropCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := async.Run(ctx, func() error {
		return s.db.Update(func(tx *bbolt.Tx) error {
			if err := tx.DeleteBucket(collectionBucket(s.collection)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
				return err
			}
			return tx.Bucket(bucketCollections).Delete([]byte(s.collection))
		})
	})
	if err != nil {
		return fmt.Errorf("%w: drop collection %q: %w", domain.ErrStoreUnavailable, s.collection, err)
	}

	s.ensured = false
	s.chunks = nil
	s.logger.Info("dropped collection")
	return nil
}

func (s *BoltVectorStore) Close() error {
	return s.db.Close()
}
