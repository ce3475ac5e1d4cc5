package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vetrag/internal/domain"
)

func TestCheckMigration(t *testing.T) {
	schema := domain.CollectionSchema{Name: "c", Dimension: 384, Metric: domain.MetricInnerProduct, Version: CurrentSchemaVersion}

	tests := []struct {
		name         string
		existing     *collectionMeta
		wantCreate   bool
		wantMigrate  bool
		wantMismatch bool
	}{
		{"missing collection", nil, true, false, false},
		{"same layout", &collectionMeta{Version: CurrentSchemaVersion, Dimension: 384, Metric: "IP"}, false, false, false},
		{"older version", &collectionMeta{Version: 1, Dimension: 384, Metric: "IP"}, false, true, false},
		{"unversioned", &collectionMeta{Dimension: 384}, false, true, false},
		{"newer version", &collectionMeta{Version: CurrentSchemaVersion + 1, Dimension: 384, Metric: "IP"}, false, false, true},
		{"other dimension", &collectionMeta{Version: CurrentSchemaVersion, Dimension: 768, Metric: "IP"}, false, false, true},
		{"other metric", &collectionMeta{Version: CurrentSchemaVersion, Dimension: 384, Metric: "COSINE"}, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := CheckMigration(tt.existing, schema)
			if tt.wantMismatch {
				var mismatch *domain.SchemaMismatchError
				require.ErrorAs(t, err, &mismatch)
				assert.Equal(t, "c", mismatch.Collection)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCreate, result.Create)
			assert.Equal(t, tt.wantMigrate, result.NeedsMigration)
		})
	}
}

func TestNormalizeSchema(t *testing.T) {
	schema, err := normalizeSchema(domain.CollectionSchema{Dimension: 8}, "Docs")
	require.NoError(t, err)
	assert.Equal(t, "Docs", schema.Name)
	assert.Equal(t, domain.MetricInnerProduct, schema.Metric)
	assert.Equal(t, CurrentSchemaVersion, schema.Version)

	_, err = normalizeSchema(domain.CollectionSchema{Name: "Other", Dimension: 8}, "Docs")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = normalizeSchema(domain.CollectionSchema{Dimension: 0}, "Docs")
	var mismatch *domain.SchemaMismatchError
	assert.ErrorAs(t, err, &mismatch)
}
