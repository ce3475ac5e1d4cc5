package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vetrag/internal/adapter/embedding"
	"vetrag/internal/domain"
	"vetrag/internal/platform/logger"
	"vetrag/internal/port"
)

const testDim = 64

func testEmbedder() *embedding.Provider {
	return embedding.NewProvider(embedding.NewHashEmbedder(testDim), testDim, 0, logger.Discard())
}

func oneHot(i int) []float32 {
	v := make([]float32, testDim)
	v[i%testDim] = 1
	return v
}

func testSchema() domain.CollectionSchema {
	return domain.CollectionSchema{Name: "TestCollection", Dimension: testDim, Metric: domain.MetricInnerProduct}
}

// backends returns constructors for every store that runs without external
// services.
func backends() map[string]func(t *testing.T) port.VectorStore {
	return map[string]func(t *testing.T) port.VectorStore{
		"bolt": func(t *testing.T) port.VectorStore {
			s, err := NewBoltVectorStore(filepath.Join(t.TempDir(), "vectors.db"), "TestCollection", time.Second, testEmbedder(), logger.Discard())
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
		"memory": func(t *testing.T) port.VectorStore {
			return NewMemoryStore("TestCollection", testEmbedder(), logger.Discard())
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s port.VectorStore)) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			require.NoError(t, s.EnsureCollection(context.Background(), testSchema()))
			fn(t, s)
		})
	}
}

func TestStore_EnsureCollectionIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s port.VectorStore) {
		ctx := context.Background()
		_, err := s.Insert(ctx, []domain.Chunk{{ChunkID: "c1", Vector: oneHot(1)}})
		require.NoError(t, err)

		require.NoError(t, s.EnsureCollection(ctx, testSchema()))
		require.NoError(t, s.EnsureCollection(ctx, testSchema()))

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestStore_InsertThenSearchRanksFirst(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s port.VectorStore) {
		ctx := context.Background()
		var chunks []domain.Chunk
		for i := 0; i < 5; i++ {
			chunks = append(chunks, domain.Chunk{
				ChunkID:     string(rune('a' + i)),
				DiseaseName: "Disease",
				SectionText: "text",
				Vector:      oneHot(i),
			})
		}
		res, err := s.Insert(ctx, chunks)
		require.NoError(t, err)
		assert.Equal(t, 5, res.Written)
		assert.Empty(t, res.Skipped)

		hits, err := s.Search(ctx, oneHot(3), 2)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, "d", hits[0].Chunk.ChunkID)
		assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
		assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
	})
}

func TestStore_SearchReturnsAtMostK(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s port.VectorStore) {
		ctx := context.Background()
		_, err := s.Insert(ctx, []domain.Chunk{
			{ChunkID: "a", Vector: oneHot(0)},
			{ChunkID: "b", Vector: oneHot(1)},
		})
		require.NoError(t, err)

		hits, err := s.Search(ctx, oneHot(0), 10)
		require.NoError(t, err)
		assert.Len(t, hits, 2)

		hits, err = s.Search(ctx, oneHot(0), 0)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestStore_UpsertOverwrites(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s port.VectorStore) {
		ctx := context.Background()
		_, err := s.Insert(ctx, []domain.Chunk{{ChunkID: "c1", SectionText: "old", Vector: oneHot(1)}})
		require.NoError(t, err)
		_, err = s.Insert(ctx, []domain.Chunk{{ChunkID: "c1", SectionText: "new", Vector: oneHot(1)}})
		require.NoError(t, err)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		hits, err := s.Search(ctx, oneHot(1), 1)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, "new", hits[0].Chunk.SectionText)
	})
}

func TestStore_SkipsMalformedRecords(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s port.VectorStore) {
		nan := oneHot(2)
		nan[5] = float32(math.NaN())

		res, err := s.Insert(context.Background(), []domain.Chunk{
			{ChunkID: "", Vector: oneHot(0)},
			{ChunkID: "short", Vector: []float32{1, 0}},
			{ChunkID: "nan", Vector: nan},
			{ChunkID: "ok", Vector: oneHot(3)},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Written)
		require.Len(t, res.Skipped, 3)
		assert.Equal(t, 0, res.Skipped[0].Index)
		assert.Equal(t, "short", res.Skipped[1].ChunkID)
		assert.Equal(t, "nan", res.Skipped[2].ChunkID)
	})
}

func TestStore_SkipsUnstorableText(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s port.VectorStore) {
		ctx := context.Background()
		res, err := s.Insert(ctx, []domain.Chunk{
			{ChunkID: "nul", SectionText: "udder\x00swelling", Vector: oneHot(0)},
			{ChunkID: "ok", SectionText: "udder swelling", Vector: oneHot(1)},
			{ChunkID: "bad-utf8", DiseaseName: "Mast\xffitis", Vector: oneHot(2)},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Written)
		require.Len(t, res.Skipped, 2)
		assert.Equal(t, 0, res.Skipped[0].Index)
		assert.Equal(t, 2, res.Skipped[1].Index)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestStore_InsertFailsWhenNothingWritten(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s port.VectorStore) {
		ctx := context.Background()

		_, err := s.Insert(ctx, nil)
		assert.ErrorIs(t, err, domain.ErrInsertion)

		res, err := s.Insert(ctx, []domain.Chunk{{ChunkID: "", Vector: oneHot(0)}})
		assert.ErrorIs(t, err, domain.ErrInsertion)
		assert.Len(t, res.Skipped, 1)
	})
}

func TestStore_EmbedsChunksWithoutVectors(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s port.VectorStore) {
		ctx := context.Background()
		_, err := s.Insert(ctx, []domain.Chunk{
			{ChunkID: "bvd", DiseaseName: "BVD", SectionText: "Bovine viral diarrhea virus infection in cattle herds"},
			{ChunkID: "mastitis", DiseaseName: "Mastitis", SectionText: "Mastitis is an inflammation of the mammary gland in dairy cows"},
			{ChunkID: "empty", SectionText: "   "},
		})
		require.NoError(t, err)

		query, err := testEmbedder().Encode(ctx, "mastitis in cows")
		require.NoError(t, err)

		hits, err := s.Search(ctx, query, 3)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, "mastitis", hits[0].Chunk.ChunkID)
	})
}

func TestStore_EmptyCollectionSearch(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s port.VectorStore) {
		hits, err := s.Search(context.Background(), oneHot(0), 5)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestStore_QueryDimensionMismatch(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s port.VectorStore) {
		_, err := s.Search(context.Background(), []float32{1, 0, 0}, 5)
		assert.ErrorIs(t, err, domain.ErrSearch)
	})
}

func TestStore_DropThenEnsure(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s port.VectorStore) {
		ctx := context.Background()
		_, err := s.Insert(ctx, []domain.Chunk{{ChunkID: "c1", Vector: oneHot(1)}})
		require.NoError(t, err)

		require.NoError(t, s.DropCollection(ctx))
		_, err = s.Search(ctx, oneHot(1), 1)
		assert.ErrorIs(t, err, domain.ErrSearch)

		require.NoError(t, s.EnsureCollection(ctx, testSchema()))
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

func TestStore_RequiresEnsure(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			_, err := s.Search(context.Background(), oneHot(0), 1)
			assert.ErrorIs(t, err, domain.ErrSearch)
			_, err = s.Insert(context.Background(), []domain.Chunk{{ChunkID: "a", Vector: oneHot(0)}})
			assert.ErrorIs(t, err, domain.ErrInsertion)
		})
	}
}

func TestStore_EnsureRejectsOtherDimension(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s port.VectorStore) {
		schema := testSchema()
		schema.Dimension = testDim * 2

		err := s.EnsureCollection(context.Background(), schema)
		var mismatch *domain.SchemaMismatchError
		assert.ErrorAs(t, err, &mismatch)
	})
}

func TestStore_EnsureRejectsOtherMetric(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			schema := testSchema()
			schema.Metric = "L2"

			err := open(t).EnsureCollection(context.Background(), schema)
			var mismatch *domain.SchemaMismatchError
			assert.ErrorAs(t, err, &mismatch)
		})
	}
}
