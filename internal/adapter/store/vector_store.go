package store

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"vetrag/internal/domain"
	"vetrag/internal/port"
)

// batchEncoder is implemented by embedders that can embed many texts in one
// backend round trip.
type batchEncoder interface {
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// prepareChunks validates chunks for insertion and embeds those that arrive
// without a vector. Rejected records are reported, never fatal.
func prepareChunks(ctx context.Context, chunks []domain.Chunk, dimension int, embedder port.Embedder, logger *slog.Logger) ([]domain.Chunk, []port.SkippedRecord) {
	var skipped []port.SkippedRecord
	skip := func(i int, c domain.Chunk, reason string) {
		logger.Warn("skipping chunk", "index", i, "chunk_id", c.ChunkID, "reason", reason)
		skipped = append(skipped, port.SkippedRecord{Index: i, ChunkID: c.ChunkID, Reason: reason})
	}

	candidates := make([]int, 0, len(chunks))
	var needVector []int
	for i, c := range chunks {
		switch {
		case c.ChunkID == "":
			skip(i, c, "empty chunk_id")
			continue
		case utf8.RuneCountInString(c.SectionText) > domain.MaxSectionTextLen:
			skip(i, c, fmt.Sprintf("section_text exceeds %d characters", domain.MaxSectionTextLen))
			continue
		case !storableText(c):
			skip(i, c, "text field holds a NUL byte or invalid UTF-8")
			continue
		}
		candidates = append(candidates, i)
		if c.Vector == nil {
			needVector = append(needVector, i)
		}
	}

	vectors := make(map[int][]float32, len(needVector))
	embedErrs := make(map[int]error)
	if len(needVector) > 0 {
		if embedder == nil {
			for _, i := range needVector {
				embedErrs[i] = fmt.Errorf("%w: no embedder configured", domain.ErrEmbedding)
			}
		} else {
			embedMissing(ctx, chunks, needVector, embedder, vectors, embedErrs, logger)
		}
	}

	out := make([]domain.Chunk, 0, len(candidates))
	for _, i := range candidates {
		c := chunks[i]
		vec := c.Vector
		if vec == nil {
			if err := embedErrs[i]; err != nil {
				skip(i, c, err.Error())
				continue
			}
			vec = vectors[i]
		}
		if len(vec) != dimension {
			skip(i, c, fmt.Sprintf("vector dimension %d, expected %d", len(vec), dimension))
			continue
		}
		if !finite(vec) {
			skip(i, c, "vector has non-finite component")
			continue
		}
		c.Vector = append([]float32(nil), vec...)
		out = append(out, c)
	}
	return out, skipped
}

func embedMissing(ctx context.Context, chunks []domain.Chunk, idx []int, embedder port.Embedder, vectors map[int][]float32, errs map[int]error, logger *slog.Logger) {
	if be, ok := embedder.(batchEncoder); ok {
		texts := make([]string, len(idx))
		for j, i := range idx {
			texts[j] = chunks[i].SectionText
		}
		vecs, err := be.EncodeBatch(ctx, texts)
		if err == nil && len(vecs) == len(idx) {
			for j, i := range idx {
				vectors[i] = vecs[j]
			}
			return
		}
		logger.Warn("batch embedding failed, embedding records one by one", "count", len(idx), "error", err)
	}

	for _, i := range idx {
		vec, err := embedder.Encode(ctx, chunks[i].SectionText)
		if err != nil {
			errs[i] = err
			continue
		}
		vectors[i] = vec
	}
}

func finite(vec []float32) bool {
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func innerProduct(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// rankByInnerProduct scores every chunk against query and returns the best k.
// Ties are broken by chunk id so results are deterministic.
func rankByInnerProduct(query []float32, chunks []domain.Chunk, k int) []domain.ScoredChunk {
	if k <= 0 || len(chunks) == 0 {
		return []domain.ScoredChunk{}
	}

	scored := make([]domain.ScoredChunk, len(chunks))
	for i, c := range chunks {
		scored[i] = domain.ScoredChunk{Chunk: c, Score: innerProduct(query, c.Vector)}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.ChunkID < scored[j].Chunk.ChunkID
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}

// insertOutcome converts a prepared write into the Insert contract: an error
// only when the batch was empty or nothing was written.
func insertOutcome(total, written int, skipped []port.SkippedRecord) (port.InsertResult, error) {
	res := port.InsertResult{Written: written, Skipped: skipped}
	if total == 0 {
		return res, fmt.Errorf("%w: empty batch", domain.ErrInsertion)
	}
	if written == 0 {
		return res, fmt.Errorf("%w: all %d records rejected", domain.ErrInsertion, total)
	}
	return res, nil
}

func checkQuery(vector []float32, dimension int) error {
	if len(vector) != dimension {
		return fmt.Errorf("%w: query dimension %d, expected %d", domain.ErrSearch, len(vector), dimension)
	}
	return nil
}

// storableText reports whether every text field can be written by all
// backends; Postgres rejects NUL bytes and invalid UTF-8 in text columns.
func storableText(c domain.Chunk) bool {
	for _, f := range []string{c.ChunkID, c.DocumentID, c.DiseaseType, c.DiseaseName, c.DiseaseID, c.SectionType, c.SectionText} {
		if !utf8.ValidString(f) || strings.ContainsRune(f, 0) {
			return false
		}
	}
	return true
}
