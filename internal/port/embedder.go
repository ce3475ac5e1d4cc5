package port

import "context"

// Embedder turns text into a fixed-dimension, unit-normalized vector.
type Embedder interface {
	// Encode embeds a single text. Blank input yields the zero vector.
	Encode(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}
