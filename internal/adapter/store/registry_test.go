package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vetrag/config"
	"vetrag/internal/domain"
	"vetrag/internal/platform/logger"
)

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"bolt", "memory", "pgvector"}, Providers())

	err := Check("milvus")
	var unsupported *domain.UnsupportedProviderError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "store", unsupported.Kind)
	assert.Equal(t, "milvus", unsupported.Provider)
}

func TestOptionsFromConfig(t *testing.T) {
	t.Setenv("VETRAG_TEST_STORE_TOKEN", "s3cret")

	cfg := config.DefaultConfig()
	cfg.Store.TokenEnv = "VETRAG_TEST_STORE_TOKEN"

	opts := OptionsFromConfig(cfg, "/srv/kb")
	assert.Equal(t, "bolt", opts.Provider)
	assert.Equal(t, filepath.Join("/srv/kb", ".rag", "vectors.db"), opts.Path)
	assert.Equal(t, "s3cret", opts.Token)

	cfg.Store.URI = "postgres://db:5432/rag"
	opts = OptionsFromConfig(cfg, "/srv/kb")
	assert.Equal(t, "pgvector", opts.Provider)
	assert.Equal(t, "BoviCareDocuments", opts.Collection)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{Provider: "memory", Collection: "Docs"}, nil, logger.Discard())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, Options{Provider: "bolt", Collection: "Docs", Path: filepath.Join(t.TempDir(), "v.db")}, nil, logger.Discard())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Options{Provider: "memory"}, nil, logger.Discard())
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = Open(ctx, Options{Provider: "pgvector", Collection: "Docs"}, nil, logger.Discard())
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
