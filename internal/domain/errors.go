package domain

import (
	"errors"
	"fmt"
)

var (
	ErrStoreUnavailable = errors.New("vector store unavailable")
	ErrEmbedding        = errors.New("embedding failed")
	ErrInsertion        = errors.New("insertion failed")
	ErrSearch           = errors.New("search failed")
	ErrScoring          = errors.New("scoring failed")
	ErrRerankTimeout    = errors.New("rerank timed out")
	ErrNotReady         = errors.New("service not ready")
)

// UnsupportedProviderError is returned when configuration names a provider
// that has no registered constructor.
type UnsupportedProviderError struct {
	Kind     string // "embedding", "llm", "store", "rerank"
	Provider string
	Known    []string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported %s provider %q (known: %v)", e.Kind, e.Provider, e.Known)
}

// SchemaMismatchError is returned when an existing collection cannot serve
// the requested schema. Data is left untouched.
type SchemaMismatchError struct {
	Collection string
	Reason     string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("collection %q schema mismatch: %s", e.Collection, e.Reason)
}
