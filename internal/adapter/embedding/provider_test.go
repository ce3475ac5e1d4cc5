package embedding

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vetrag/config"
	"vetrag/internal/domain"
	"vetrag/internal/platform/logger"
)

type fakeBackend struct {
	calls atomic.Int32
	vec   []float32
	err   error
}

func (b *fakeBackend) Embed(_ context.Context, texts []string) ([][]float32, error) {
	b.calls.Add(1)
	if b.err != nil {
		return nil, b.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = append([]float32(nil), b.vec...)
	}
	return out, nil
}

func (b *fakeBackend) ModelName() string { return "fake" }

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestProvider_BlankInputIsZeroVector(t *testing.T) {
	backend := &fakeBackend{vec: []float32{1, 2, 3}}
	p := NewProvider(backend, 3, 0, logger.Discard())

	for _, text := range []string{"", "   ", "\n\t"} {
		vec, err := p.Encode(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 0, 0}, vec)
	}
	assert.Equal(t, int32(0), backend.calls.Load())
}

func TestProvider_Normalizes(t *testing.T) {
	p := NewProvider(&fakeBackend{vec: []float32{3, 4}}, 2, 0, logger.Discard())

	vec, err := p.Encode(context.Background(), "mastitis")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, norm(vec), 1e-6)
	assert.InDelta(t, 0.6, vec[0], 1e-6)
	assert.InDelta(t, 0.8, vec[1], 1e-6)
}

func TestProvider_DimensionMismatch(t *testing.T) {
	p := NewProvider(&fakeBackend{vec: []float32{1, 2}}, 3, 0, logger.Discard())

	_, err := p.Encode(context.Background(), "bvd")
	assert.ErrorIs(t, err, domain.ErrEmbedding)
}

func TestProvider_BackendError(t *testing.T) {
	boom := errors.New("connection refused")
	p := NewProvider(&fakeBackend{err: boom}, 2, 0, logger.Discard())

	_, err := p.Encode(context.Background(), "bvd")
	assert.ErrorIs(t, err, domain.ErrEmbedding)
	assert.ErrorIs(t, err, boom)
}

func TestProvider_CacheAvoidsBackend(t *testing.T) {
	backend := &fakeBackend{vec: []float32{1, 0}}
	p := NewProvider(backend, 2, 8, logger.Discard())

	first, err := p.Encode(context.Background(), "fever")
	require.NoError(t, err)
	first[0] = 42 // callers own their copy

	second, err := p.Encode(context.Background(), "fever")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, second)
	assert.Equal(t, int32(1), backend.calls.Load())
}

func TestProvider_EncodeBatchKeepsOrder(t *testing.T) {
	p := NewProvider(NewHashEmbedder(64), 64, 0, logger.Discard())

	vecs, err := p.EncodeBatch(context.Background(), []string{"udder swelling", "", "udder swelling"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, vecs[0], vecs[2])
	assert.Equal(t, 0.0, norm(vecs[1]))
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	p := NewProvider(NewHashEmbedder(128), 128, 0, logger.Discard())
	ctx := context.Background()

	a, err := p.Encode(ctx, "Bovine viral diarrhea causes mucosal lesions")
	require.NoError(t, err)
	b, err := p.Encode(ctx, "Bovine viral diarrhea causes mucosal lesions")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, norm(a), 1e-6)
	assert.InDelta(t, 1.0, Cosine(a, b), 1e-6)
}

func TestHashEmbedder_RelatedTextScoresHigher(t *testing.T) {
	p := NewProvider(NewHashEmbedder(512), 512, 0, logger.Discard())
	ctx := context.Background()

	query, _ := p.Encode(ctx, "mastitis")
	related, _ := p.Encode(ctx, "Mastitis is inflammation of the mammary gland")
	unrelated, _ := p.Encode(ctx, "Bovine viral diarrhea virus infects cattle herds")

	assert.Greater(t, Cosine(query, related), Cosine(query, unrelated))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 0}))
	assert.Equal(t, 0.0, Cosine([]float32{1}, []float32{1, 0}))
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(2)
	c.Put("a", []float32{1})
	c.Put("b", []float32{2})
	_, _ = c.Get("a") // a is now most recent
	c.Put("c", []float32{3})

	_, okA := c.Get("a")
	_, okB := c.Get("b")
	_, okC := c.Get("c")
	assert.True(t, okA)
	assert.False(t, okB)
	assert.True(t, okC)
	assert.Equal(t, 2, c.Len())
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"gemini", "hash", "ollama", "openai"}, Providers())

	err := Check("sentence-transformers")
	var unsupported *domain.UnsupportedProviderError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "embedding", unsupported.Kind)

	p, err := New(context.Background(), config.EmbeddingConfig{Provider: "hash", Dimension: 32}, logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, 32, p.Dimension())
	assert.Equal(t, "feature-hash", p.ModelName())
}

func TestRegistry_OpenAIRequiresKey(t *testing.T) {
	t.Setenv("VETRAG_TEST_MISSING_KEY", "")
	_, err := New(context.Background(), config.EmbeddingConfig{
		Provider:  "openai",
		APIKeyEnv: "VETRAG_TEST_MISSING_KEY",
		Dimension: 16,
	}, logger.Discard())
	assert.Error(t, err)
}
