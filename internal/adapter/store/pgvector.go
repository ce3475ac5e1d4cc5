package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"vetrag/internal/domain"
	"vetrag/internal/port"
)

const (
	collectionsTable       = "rag_collections"
	undefinedTable         = "42P01"
	createExtension        = `CREATE EXTENSION IF NOT EXISTS vector`
	createCollectionsTable = `CREATE TABLE IF NOT EXISTS ` + collectionsTable + ` (
		name       TEXT PRIMARY KEY,
		version    INTEGER NOT NULL,
		dimension  INTEGER NOT NULL,
		metric     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
)

// PgOptions describes how to reach PostgreSQL.
type PgOptions struct {
	URI            string
	Token          string // used as the password when set
	Collection     string
	ConnectRetries int
	ConnectTimeout time.Duration
}

// PgVectorStore implements port.VectorStore on PostgreSQL with the pgvector
// extension. Each collection is one table with an HNSW inner-product index.
type PgVectorStore struct {
	pool       *pgxpool.Pool
	collection string
	table      string
	embedder   port.Embedder
	logger     *slog.Logger

	mu        sync.RWMutex
	ensured   bool
	dimension int
}

// NewPgVectorStore connects with bounded exponential backoff.
func NewPgVectorStore(ctx context.Context, opts PgOptions, embedder port.Embedder, logger *slog.Logger) (*PgVectorStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.URI == "" {
		return nil, fmt.Errorf("%w: no connection uri", domain.ErrStoreUnavailable)
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}

	cfg, err := pgxpool.ParseConfig(opts.URI)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid connection uri: %w", domain.ErrStoreUnavailable, err)
	}
	if opts.Token != "" {
		cfg.ConnConfig.Password = opts.Token
	}
	cfg.ConnConfig.ConnectTimeout = opts.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create connection pool: %w", domain.ErrStoreUnavailable, err)
	}

	log := logger.With("store", "pgvector", "collection", opts.Collection)
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(max(opts.ConnectRetries, 0))),
		ctx,
	)
	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
		return pool.Ping(pingCtx)
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("store not reachable, retrying", "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(ping, policy, notify); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %w", domain.ErrStoreUnavailable, err)
	}

	return &PgVectorStore{
		pool:       pool,
		collection: opts.Collection,
		table:      pgx.Identifier{opts.Collection}.Sanitize(),
		embedder:   embedder,
		logger:     log,
	}, nil
}

func (s *PgVectorStore) EnsureCollection(ctx context.Context, schema domain.CollectionSchema) error {
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

	if err := s.ensure(ctx, schema); err != nil {
		return err
	}
	s.dimension = schema.Dimension
	s.ensured = true
	return nil
}

func (s *PgVectorStore) ensure(ctx context.Context, schema domain.CollectionSchema) error {
	for _, stmt := range []string{createExtension, createCollectionsTable} {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
	}

	var existing *collectionMeta
	var meta collectionMeta
	err := s.pool.QueryRow(ctx,
		`SELECT name, version, dimension, metric, created_at FROM `+collectionsTable+` WHERE name = $1`,
		schema.Name,
	).Scan(&meta.Name, &meta.Version, &meta.Dimension, &meta.Metric, &meta.CreatedAt)
	switch {
	case err == nil:
		existing = &meta
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return fmt.Errorf("%w: collection introspection failed: %w", domain.ErrStoreUnavailable, err)
	}

	result, err := CheckMigration(existing, schema)
	if err != nil {
		return err
	}

	switch {
	case result.Create:
		return s.create(ctx, schema)
	case result.NeedsMigration:
		s.logger.Info("migrating collection", "reason", result.Reason)
		return s.migrate(ctx, result.OldVersion, result.NewVersion)
	}
	return nil
}

func (s *PgVectorStore) create(ctx context.Context, schema domain.CollectionSchema) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		stmts := []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				chunk_id     TEXT PRIMARY KEY,
				document_id  TEXT NOT NULL DEFAULT '',
				disease_type TEXT NOT NULL DEFAULT '',
				disease_name TEXT NOT NULL DEFAULT '',
				disease_id   TEXT NOT NULL DEFAULT '',
				chunk_index  INTEGER NOT NULL DEFAULT 0,
				section_type TEXT NOT NULL DEFAULT '',
				page_number  INTEGER NOT NULL DEFAULT 0,
				section_text VARCHAR(%d) NOT NULL DEFAULT '',
				dense_vector vector(%d) NOT NULL
			)`, s.table, domain.MaxSectionTextLen, schema.Dimension),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (dense_vector vector_ip_ops)`,
				pgx.Identifier{s.collection + "_dense_vector_idx"}.Sanitize(), s.table),
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("%w: create collection: %w", domain.ErrStoreUnavailable, err)
			}
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO `+collectionsTable+` (name, version, dimension, metric) VALUES ($1, $2, $3, $4)`,
			schema.Name, schema.Version, schema.Dimension, schema.Metric,
		)
		if err != nil {
			return fmt.Errorf("%w: record collection: %w", domain.ErrStoreUnavailable, err)
		}
		s.logger.Info("created collection", "version", schema.Version, "dimension", schema.Dimension)
		return nil
	})
}

func (s *PgVectorStore) migrate(ctx context.Context, from, to int) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for v := from; v < to; v++ {
			for _, stmt := range pgMigrations[v] {
				if _, err := tx.Exec(ctx, fmt.Sprintf(stmt, s.table)); err != nil {
					return fmt.Errorf("migration from v%d to v%d failed: %w", v, v+1, err)
				}
			}
		}
		_, err := tx.Exec(ctx, `UPDATE `+collectionsTable+` SET version = $1 WHERE name = $2`, to, s.collection)
		return err
	})
}

func (s *PgVectorStore) Insert(ctx context.Context, chunks []domain.Chunk) (port.InsertResult, error) {
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

	query := fmt.Sprintf(`INSERT INTO %s (
			chunk_id, document_id, disease_type, disease_name, disease_id,
			chunk_index, section_type, page_number, section_text, dense_vector
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (chunk_id) DO UPDATE SET
			document_id  = EXCLUDED.document_id,
			disease_type = EXCLUDED.disease_type,
			disease_name = EXCLUDED.disease_name,
			disease_id   = EXCLUDED.disease_id,
			chunk_index  = EXCLUDED.chunk_index,
			section_type = EXCLUDED.section_type,
			page_number  = EXCLUDED.page_number,
			section_text = EXCLUDED.section_text,
			dense_vector = EXCLUDED.dense_vector`, s.table)

	args := func(c domain.Chunk) []any {
		return []any{
			c.ChunkID, c.DocumentID, c.DiseaseType, c.DiseaseName, c.DiseaseID,
			c.ChunkIndex, c.SectionType, c.PageNumber, c.SectionText, pgvector.NewVector(c.Vector),
		}
	}

	batch := &pgx.Batch{}
	for _, c := range valid {
		batch.Queue(query, args(c)...)
	}
	err := s.pool.SendBatch(ctx, batch).Close()
	if err == nil {
		s.logger.Debug("inserted chunks", "written", len(valid), "skipped", len(skipped))
		return insertOutcome(len(chunks), len(valid), skipped)
	}

	// The batch runs as one implicit transaction, so a single bad row rolls
	// back the rest. Retry row by row and skip only the rows that fail.
	s.logger.Warn("batch insert failed, retrying rows individually", "rows", len(valid), "error", err)
	index := make(map[string]int, len(chunks))
	for i, c := range chunks {
		index[c.ChunkID] = i
	}
	written := 0
	for _, c := range valid {
		if _, err := s.pool.Exec(ctx, query, args(c)...); err != nil {
			s.logger.Warn("skipping chunk", "index", index[c.ChunkID], "chunk_id", c.ChunkID, "reason", err.Error())
			skipped = append(skipped, port.SkippedRecord{Index: index[c.ChunkID], ChunkID: c.ChunkID, Reason: err.Error()})
			continue
		}
		written++
	}
	sort.SliceStable(skipped, func(a, b int) bool { return skipped[a].Index < skipped[b].Index })

	s.logger.Debug("inserted chunks", "written", written, "skipped", len(skipped))
	return insertOutcome(len(chunks), written, skipped)
}

// Search orders by the negated inner product operator, so the best match
// comes first; the score is flipped back to a plain inner product.
func (s *PgVectorStore) Search(ctx context.Context, vector []float32, k int) ([]domain.ScoredChunk, error) {
	s.mu.RLock()
	ensured, dimension := s.ensured, s.dimension
	s.mu.RUnlock()
	if !ensured {
		return nil, fmt.Errorf("%w: collection %q not ensured", domain.ErrSearch, s.collection)
	}
	if err := checkQuery(vector, dimension); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []domain.ScoredChunk{}, nil
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT chunk_id, document_id, disease_type, disease_name, disease_id,
		       chunk_index, section_type, page_number, section_text,
		       (dense_vector <#> $1) * -1 AS score
		FROM %s
		ORDER BY dense_vector <#> $1, chunk_id
		LIMIT $2`, s.table),
		pgvector.NewVector(vector), k,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSearch, err)
	}
	defer rows.Close()

	results := make([]domain.ScoredChunk, 0, k)
	for rows.Next() {
		var sc domain.ScoredChunk
		c := &sc.Chunk
		if err := rows.Scan(
			&c.ChunkID, &c.DocumentID, &c.DiseaseType, &c.DiseaseName, &c.DiseaseID,
			&c.ChunkIndex, &c.SectionType, &c.PageNumber, &c.SectionText, &sc.Score,
		); err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrSearch, err)
		}
		results = append(results, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSearch, err)
	}
	return results, nil
}

func (s *PgVectorStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM `+s.table).Scan(&n)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return n, nil
}

func (s *PgVectorStore) DropCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, stmt := range []string{createCollectionsTable, `DROP TABLE IF EXISTS ` + s.table} {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `DELETE FROM `+collectionsTable+` WHERE name = $1`, s.collection)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: drop collection %q: %w", domain.ErrStoreUnavailable, s.collection, err)
	}

	s.ensured = false
	s.logger.Info("dropped collection")
	return nil
}

func (s *PgVectorStore) Close() error {
	s.pool.Close()
	return nil
}
