package embedding

import (
	"context"
	"hash/fnv"

	"vetrag/internal/adapter/analyzer"
)

// HashEmbedder is a local, deterministic feature-hashing embedder. Each term
// is hashed to a bucket and a sign; the term frequency is added to that
// bucket. It needs no network and no model files, which makes it the default
// for offline runs and tests.
type HashEmbedder struct {
	dimension int
	tokenizer *analyzer.Tokenizer
}

func NewHashEmbedder(dimension int) *HashEmbedder {
	return &HashEmbedder{
		dimension: dimension,
		tokenizer: analyzer.NewTokenizer(true),
	}
}

func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embedOne(text)
	}
	return out, nil
}

func (e *HashEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, e.dimension)
	for term, tf := range e.tokenizer.TermFrequencies(text) {
		h := fnv.New64a()
		h.Write([]byte(term))
		sum := h.Sum64()

		bucket := int(sum % uint64(e.dimension))
		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}
		vec[bucket] += sign * float32(tf)
	}
	return vec
}

func (e *HashEmbedder) ModelName() string {
	return "feature-hash"
}
