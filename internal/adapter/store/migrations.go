package store

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"vetrag/internal/domain"
)

// CurrentSchemaVersion is the collection layout version this build writes.
// Increment this when making breaking changes to the storage format.
//
//	v1: chunk_index and page_number stored as strings
//	v2: chunk_index and page_number stored as integers
const CurrentSchemaVersion = 2

// collectionMeta is persisted next to every collection.
type collectionMeta struct {
	Name      string    `json:"name"`
	Version   int       `json:"version"`
	Dimension int       `json:"dimension"`
	Metric    string    `json:"metric"`
	Fields    []string  `json:"fields,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MigrationResult describes what EnsureCollection has to do.
type MigrationResult struct {
	Create         bool
	NeedsMigration bool
	OldVersion     int
	NewVersion     int
	Reason         string
}

// normalizeSchema fills defaults and binds the schema to collection.
func normalizeSchema(schema domain.CollectionSchema, collection string) (domain.CollectionSchema, error) {
	if schema.Name == "" {
		schema.Name = collection
	}
	if schema.Name != collection {
		return schema, fmt.Errorf("%w: store is bound to collection %q, not %q", domain.ErrStoreUnavailable, collection, schema.Name)
	}
	if schema.Metric == "" {
		schema.Metric = domain.MetricInnerProduct
	}
	if schema.Metric != domain.MetricInnerProduct {
		return schema, &domain.SchemaMismatchError{Collection: collection, Reason: fmt.Sprintf("unsupported metric %q", schema.Metric)}
	}
	if schema.Version == 0 {
		schema.Version = CurrentSchemaVersion
	}
	if schema.Dimension <= 0 {
		return schema, &domain.SchemaMismatchError{Collection: collection, Reason: fmt.Sprintf("invalid dimension %d", schema.Dimension)}
	}
	return schema, nil
}

// CheckMigration compares an existing collection against the wanted schema.
// A nil existing collection means it has to be created. Incompatible layouts
// are reported as *domain.SchemaMismatchError and are never rebuilt here.
func CheckMigration(existing *collectionMeta, schema domain.CollectionSchema) (*MigrationResult, error) {
	result := &MigrationResult{NewVersion: schema.Version}
	if existing == nil {
		result.Create = true
		result.Reason = "creating collection"
		return result, nil
	}

	result.OldVersion = existing.Version
	switch {
	case existing.Version > schema.Version:
		return result, &domain.SchemaMismatchError{
			Collection: schema.Name,
			Reason:     fmt.Sprintf("created by newer version (v%d > v%d)", existing.Version, schema.Version),
		}
	case existing.Dimension != schema.Dimension:
		return result, &domain.SchemaMismatchError{
			Collection: schema.Name,
			Reason:     fmt.Sprintf("dimension %d, expected %d", existing.Dimension, schema.Dimension),
		}
	case existing.Metric != "" && existing.Metric != schema.Metric:
		return result, &domain.SchemaMismatchError{
			Collection: schema.Name,
			Reason:     fmt.Sprintf("metric %s, expected %s", existing.Metric, schema.Metric),
		}
	case existing.Version < schema.Version:
		result.NeedsMigration = true
		result.Reason = fmt.Sprintf("schema upgrade from v%d to v%d", existing.Version, schema.Version)
	}
	return result, nil
}

// migrateBolt upgrades the records of one bolt collection bucket in place.
func migrateBolt(b *bbolt.Bucket, from, to int) error {
	for v := from; v < to; v++ {
		if err := runBoltMigration(b, v, v+1); err != nil {
			return fmt.Errorf("migration from v%d to v%d failed: %w", v, v+1, err)
		}
	}
	return nil
}

func runBoltMigration(b *bbolt.Bucket, from, to int) error {
	switch {
	case from == 0 && to == 1:
		// v0 collections had no recorded version; the layout is the same as v1
		return nil
	case from == 1 && to == 2:
		// ChunkRecord accepts string integers and writes numbers back
		type rewrite struct {
			key  []byte
			data []byte
		}
		var rewrites []rewrite
		err := b.ForEach(func(k, v []byte) error {
			var rec domain.ChunkRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("record %s: %w", k, err)
			}
			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			rewrites = append(rewrites, rewrite{key: append([]byte(nil), k...), data: data})
			return nil
		})
		if err != nil {
			return err
		}
		for _, r := range rewrites {
			if err := b.Put(r.key, r.data); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}

// pgMigrations holds the statements upgrading a pgvector collection table,
// keyed by the version they upgrade from. %[1]s is the quoted table name.
var pgMigrations = map[int][]string{
	1: {
		`ALTER TABLE %[1]s ALTER COLUMN chunk_index DROP DEFAULT, ALTER COLUMN page_number DROP DEFAULT`,
		`ALTER TABLE %[1]s ALTER COLUMN chunk_index TYPE INTEGER USING (CASE WHEN chunk_index ~ '^[0-9]+$' THEN chunk_index::integer ELSE 0 END)`,
		`ALTER TABLE %[1]s ALTER COLUMN page_number TYPE INTEGER USING (CASE WHEN page_number ~ '^[0-9]+$' THEN page_number::integer ELSE 0 END)`,
		`ALTER TABLE %[1]s ALTER COLUMN chunk_index SET DEFAULT 0, ALTER COLUMN page_number SET DEFAULT 0`,
	},
}
