package reranker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"vetrag/internal/domain"
	"vetrag/internal/port"
)

const (
	DefaultScore       = 0.5
	DefaultMaxDocChars = 1000

	scoringSystemPrompt = "You are a helpful assistant."
	scoringUserPrompt   = "Rate the relevance of this document to the query from 0.0 to 1.0. Query: %s. Document: %s. Respond with just a number."
)

var scorePattern = regexp.MustCompile(`(\d+\.?\d*)`)

// ModelOptions tunes a ModelReranker. Zero values select the defaults, so a
// DefaultScore of 0 means DefaultScore.
type ModelOptions struct {
	MaxDocChars    int
	DefaultScore   float64
	MaxConcurrency int
	Timeout        time.Duration
}

// ModelReranker asks a completion model to rate every candidate and sorts
// by the returned numbers.
type ModelReranker struct {
	llm    port.LLM
	opts   ModelOptions
	logger *slog.Logger
}

func NewModelReranker(llm port.LLM, opts ModelOptions, logger *slog.Logger) *ModelReranker {
	if opts.MaxDocChars <= 0 {
		opts.MaxDocChars = DefaultMaxDocChars
	}
	if opts.DefaultScore <= 0 || opts.DefaultScore > 1 {
		opts.DefaultScore = DefaultScore
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelReranker{llm: llm, opts: opts, logger: logger}
}

func (r *ModelReranker) Name() string { return "model" }

// outcome is what one scoring task reports for its slot.
type outcome struct {
	score  float64
	parsed bool
	err    error
}

// Rerank scores candidates concurrently. A failed or unparseable rating
// falls back to the default score; the candidate is kept. When the overall
// timeout expires the in-flight calls are cancelled and ErrRerankTimeout is
// returned.
func (r *ModelReranker) Rerank(ctx context.Context, query string, docs []domain.ScoredChunk) ([]domain.ScoredChunk, error) {
	if len(docs) == 0 {
		return []domain.ScoredChunk{}, nil
	}

	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	outcomes := make([]outcome, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(r.opts.MaxConcurrency, len(docs)))
	for i := range docs {
		g.Go(func() error {
			outcomes[i] = r.score(gctx, query, docs[i].Chunk.SectionText)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", domain.ErrRerankTimeout, r.opts.Timeout)
		}
		return nil, err
	}

	scores := make([]float64, len(docs))
	var defaulted int
	for i, o := range outcomes {
		scores[i] = o.score
		if !o.parsed {
			defaulted++
			r.logger.Warn("document scoring fell back to default",
				"chunk_id", docs[i].Chunk.ChunkID,
				"score", o.score,
				"error", o.err,
			)
		}
	}
	r.logger.Debug("model rerank finished", "docs", len(docs), "defaulted", defaulted)

	return withScores(docs, scores), nil
}

func (r *ModelReranker) score(ctx context.Context, query, text string) outcome {
	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: scoringSystemPrompt},
		{Role: domain.RoleUser, Content: fmt.Sprintf(scoringUserPrompt, query, truncateRunes(text, r.opts.MaxDocChars))},
	}

	reply, err := r.llm.Complete(ctx, messages)
	if err != nil {
		return outcome{score: r.opts.DefaultScore, err: fmt.Errorf("%w: %w", domain.ErrScoring, err)}
	}

	score, ok := ParseScore(reply)
	if !ok {
		return outcome{score: r.opts.DefaultScore, err: fmt.Errorf("%w: no number in reply %q", domain.ErrScoring, reply)}
	}
	return outcome{score: score, parsed: true}
}

// ParseScore extracts the first number in reply and clamps it to [0, 1].
func ParseScore(reply string) (float64, bool) {
	m := scorePattern.FindString(strings.TrimSpace(reply))
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return max(0, min(1, v)), true
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	for i := range s {
		if n == 0 {
			return s[:i]
		}
		n--
	}
	return s
}
