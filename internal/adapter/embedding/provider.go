package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"vetrag/internal/domain"
	"vetrag/internal/platform/async"
)

// Backend produces raw embeddings for a batch of non-blank texts. Results
// need not be normalized; Provider takes care of that.
type Backend interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}

// Provider adapts a Backend to port.Embedder: blank input maps to the zero
// vector, output is checked against the configured dimension and L2
// normalized, and results are memoized.
type Provider struct {
	backend   Backend
	dimension int
	cache     *Cache
	logger    *slog.Logger
}

// NewProvider wraps backend. A cacheSize of zero disables caching.
func NewProvider(backend Backend, dimension, cacheSize int, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	var cache *Cache
	if cacheSize > 0 {
		cache = NewCache(cacheSize)
	}
	return &Provider{
		backend:   backend,
		dimension: dimension,
		cache:     cache,
		logger:    logger,
	}
}

// Encode embeds a single text.
func (p *Provider) Encode(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EncodeBatch embeds texts in order. Blank and cached entries skip the backend.
func (p *Provider) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var pending []string
	var pendingIdx []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			out[i] = make([]float32, p.dimension)
			continue
		}
		if p.cache != nil {
			if vec, ok := p.cache.Get(text); ok {
				out[i] = vec
				continue
			}
		}
		pending = append(pending, text)
		pendingIdx = append(pendingIdx, i)
	}

	if len(pending) == 0 {
		return out, nil
	}

	raw, err := async.Do(ctx, func() ([][]float32, error) {
		return p.backend.Embed(ctx, pending)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrEmbedding, p.backend.ModelName(), err)
	}
	if len(raw) != len(pending) {
		return nil, fmt.Errorf("%w: backend returned %d vectors for %d inputs", domain.ErrEmbedding, len(raw), len(pending))
	}

	for j, vec := range raw {
		normalized, err := p.finish(vec)
		if err != nil {
			return nil, err
		}
		out[pendingIdx[j]] = normalized
		if p.cache != nil {
			p.cache.Put(pending[j], normalized)
		}
	}

	p.logger.Debug("embedded texts", "model", p.backend.ModelName(), "count", len(pending))
	return out, nil
}

func (p *Provider) finish(vec []float32) ([]float32, error) {
	if len(vec) != p.dimension {
		return nil, fmt.Errorf("%w: dimension mismatch: expected %d, got %d", domain.ErrEmbedding, p.dimension, len(vec))
	}
	for _, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("%w: non-finite component", domain.ErrEmbedding)
		}
	}
	return Normalize(vec), nil
}

// Dimension returns the embedding vector dimension.
func (p *Provider) Dimension() int {
	return p.dimension
}

// ModelName returns the name of the embedding model.
func (p *Provider) ModelName() string {
	return p.backend.ModelName()
}

// Normalize returns a unit-length copy of vec. The zero vector stays zero.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	out := make([]float32, len(vec))
	if sum == 0 {
		return out
	}
	norm := math.Sqrt(sum)
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

// Cosine returns the cosine similarity of a and b, 0 when either is zero or
// their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
