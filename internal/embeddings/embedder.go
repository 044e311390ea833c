package embeddings

import "context"

// Embedder turns knowledge snippets and queries into vectors for
// semantic retrieval.
type Embedder interface {
	// Embed generates embeddings for one or more texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the length of the vectors this model produces.
	Dimensions() int

	// Name identifies the embedding model.
	Name() string
}
