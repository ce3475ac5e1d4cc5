package port

import (
	"context"

	"vetrag/internal/domain"
)

// LLM is a chat completion capability. Calls may fail or be rate limited.
type LLM interface {
	// Complete returns the content of the model's reply.
	Complete(ctx context.Context, messages []domain.Message) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}
