package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"vetrag/internal/adapter/retriever"
	"vetrag/internal/domain"
	"vetrag/internal/port"
)

const (
	// FallbackAnswer is returned whenever an ask cannot produce a grounded
	// answer: no candidates, a blank question or an internal failure.
	FallbackAnswer = "I found no relevant information in the diagnostic knowledge base."

	MaxPreviewChars = 200
)

// State is the lifecycle phase of an AskUseCase.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateShuttingDown
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateShuttingDown:
		return "shutting_down"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StoreOpener connects to the vector store. It is called on every startup.
type StoreOpener func(ctx context.Context) (port.VectorStore, error)

// AskUseCase owns the vector store lifecycle and runs the
// retrieve -> rerank -> synthesize pipeline.
type AskUseCase struct {
	open        StoreOpener
	embedder    port.Embedder
	reranker    port.Reranker
	synthesizer port.Synthesizer
	schema      domain.CollectionSchema
	defaultTopK int
	logger      *slog.Logger

	newRetriever func(port.VectorStore) port.Retriever

	mu        sync.RWMutex
	state     State
	store     port.VectorStore
	retriever port.Retriever
}

// NewAskUseCase creates an orchestrator in the Uninitialized state. Nothing
// is opened until Startup or the first call that needs the store.
func NewAskUseCase(
	open StoreOpener,
	embedder port.Embedder,
	reranker port.Reranker,
	synthesizer port.Synthesizer,
	schema domain.CollectionSchema,
	defaultTopK int,
	logger *slog.Logger,
) *AskUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	u := &AskUseCase{
		open:        open,
		embedder:    embedder,
		reranker:    reranker,
		synthesizer: synthesizer,
		schema:      schema,
		defaultTopK: defaultTopK,
		logger:      logger,
	}
	u.newRetriever = func(st port.VectorStore) port.Retriever {
		return retriever.NewSemanticRetriever(st, u.embedder, u.logger)
	}
	return u
}

// State reports the current lifecycle phase.
func (u *AskUseCase) State() State {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.state
}

// Startup opens the store and ensures the collection. It is a no-op when
// already Ready. On failure the store is released and the previous state
// is restored.
func (u *AskUseCase) Startup(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.startupLocked(ctx)
}

func (u *AskUseCase) startupLocked(ctx context.Context) error {
	if u.state == StateReady {
		return nil
	}

	prev := u.state
	u.state = StateInitializing

	st, err := u.open(ctx)
	if err != nil {
		u.state = prev
		return fmt.Errorf("open store: %w", err)
	}
	if err := st.EnsureCollection(ctx, u.schema); err != nil {
		st.Close()
		u.state = prev
		return fmt.Errorf("ensure collection %q: %w", u.schema.Name, err)
	}

	u.store = st
	u.retriever = u.newRetriever(st)
	u.state = StateReady
	u.logger.Info("ask service ready", "collection", u.schema.Name, "dimension", u.schema.Dimension)
	return nil
}

// whenReady runs fn against the Ready store, starting up first if needed.
// fn runs under the read lock, so Shutdown waits for it.
func (u *AskUseCase) whenReady(ctx context.Context, fn func(port.VectorStore, port.Retriever) error) error {
	for range 2 {
		ran, err := u.runIfReady(fn)
		if ran {
			return err
		}
		if err := u.Startup(ctx); err != nil {
			return err
		}
	}
	return domain.ErrNotReady
}

func (u *AskUseCase) runIfReady(fn func(port.VectorStore, port.Retriever) error) (bool, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.state != StateReady {
		return false, nil
	}
	return true, fn(u.store, u.retriever)
}

// Ask answers query from the knowledge base. It never fails: any error
// degrades to FallbackAnswer with no sources. topK <= 0 selects the
// configured default.
func (u *AskUseCase) Ask(ctx context.Context, query string, topK int) (result domain.AnswerResult) {
	log := u.logger.With("ask_id", uuid.NewString())
	if topK <= 0 {
		topK = u.defaultTopK
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error("ask panicked, returning fallback", "panic", p)
			result = fallbackResult()
		}
	}()

	if strings.TrimSpace(query) == "" {
		log.Info("blank query, returning fallback")
		return fallbackResult()
	}

	err := u.whenReady(ctx, func(_ port.VectorStore, r port.Retriever) error {
		var err error
		result, err = u.answer(ctx, log, r, query, topK)
		return err
	})
	if err != nil {
		log.Error("ask failed, returning fallback", "error", err)
		return fallbackResult()
	}
	return result
}

func (u *AskUseCase) answer(ctx context.Context, log *slog.Logger, r port.Retriever, query string, topK int) (domain.AnswerResult, error) {
	candidates, err := r.Retrieve(ctx, query, topK)
	if err != nil {
		return domain.AnswerResult{}, fmt.Errorf("retrieve: %w", err)
	}
	if len(candidates) == 0 {
		log.Info("no candidates found", "top_k", topK)
		return fallbackResult(), nil
	}

	ranked, err := u.reranker.Rerank(ctx, query, candidates)
	if err != nil {
		return domain.AnswerResult{}, fmt.Errorf("rerank: %w", err)
	}
	selected := ranked[:min(topK, len(ranked))]

	sources := make([]domain.Source, len(selected))
	for i, d := range selected {
		sources[i] = domain.Source{
			DiseaseName:    d.Chunk.DiseaseName,
			SectionType:    d.Chunk.SectionType,
			PageNumber:     d.Chunk.PageNumber,
			ContentPreview: Preview(d.Chunk.SectionText, MaxPreviewChars),
		}
	}

	log.Info("answered",
		"candidates", len(candidates),
		"selected", len(selected),
		"reranker", u.reranker.Name(),
	)
	return domain.AnswerResult{
		Answer:  u.synthesizer.Synthesize(query, selected),
		Sources: sources,
	}, nil
}

func fallbackResult() domain.AnswerResult {
	return domain.AnswerResult{Answer: FallbackAnswer, Sources: []domain.Source{}}
}

// Insert upserts chunks, starting up first if needed.
func (u *AskUseCase) Insert(ctx context.Context, chunks []domain.Chunk) (port.InsertResult, error) {
	var res port.InsertResult
	err := u.whenReady(ctx, func(st port.VectorStore, _ port.Retriever) error {
		var err error
		res, err = st.Insert(ctx, chunks)
		return err
	})
	return res, err
}

// Count returns the number of stored chunks, starting up first if needed.
func (u *AskUseCase) Count(ctx context.Context) (int, error) {
	var n int
	err := u.whenReady(ctx, func(st port.VectorStore, _ port.Retriever) error {
		var err error
		n, err = st.Count(ctx)
		return err
	})
	return n, err
}

// ResetCollection drops the collection with all its chunks and creates it
// again empty. It is the only path that destroys data, and it works even
// when the existing collection is incompatible with the configured schema.
func (u *AskUseCase) ResetCollection(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	st := u.store
	opened := false
	if u.state != StateReady || st == nil {
		var err error
		st, err = u.open(ctx)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		opened = true
	}

	if err := st.DropCollection(ctx); err != nil {
		if opened {
			st.Close()
		}
		return fmt.Errorf("drop collection %q: %w", u.schema.Name, err)
	}
	u.logger.Warn("collection dropped", "collection", u.schema.Name)

	if err := st.EnsureCollection(ctx, u.schema); err != nil {
		st.Close()
		u.store, u.retriever = nil, nil
		u.state = StateUninitialized
		return fmt.Errorf("ensure collection %q: %w", u.schema.Name, err)
	}

	u.store = st
	u.retriever = u.newRetriever(st)
	u.state = StateReady
	return nil
}

// Shutdown releases the store. A later Ask or Insert starts up again.
func (u *AskUseCase) Shutdown(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.store == nil {
		u.state = StateClosed
		return nil
	}

	u.state = StateShuttingDown
	err := u.store.Close()
	u.store, u.retriever = nil, nil
	u.state = StateClosed

	if err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	u.logger.Info("ask service closed")
	return nil
}
