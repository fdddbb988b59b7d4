package rag

import (
	"context"
)

// Embedder converts text into fixed-length vectors. Implementations declare
// their dimensionality up front so stores can reject mismatches at startup.
type Embedder interface {
	// Embed generates the embedding vector for a single text
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedMany generates embeddings for several texts, preserving input order
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension returns the length of the vectors this backend produces
	Dimension() int
}

// LLMProvider defines operations for language model interactions
type LLMProvider interface {
	// Complete generates a completion for the given system and user prompt
	Complete(ctx context.Context, system, prompt string) (string, error)
	// CompleteStream generates a completion, invoking fn for every text
	// fragment as it is produced. Returning an error from fn stops the stream.
	CompleteStream(ctx context.Context, system, prompt string, fn func(fragment string) error) error
}

// VectorSearcher performs nearest-neighbor lookup in one collection
type VectorSearcher interface {
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Chunk, error)
}

// KeywordSearcher performs text matching over the chunk payloads
type KeywordSearcher interface {
	SearchByKeyword(ctx context.Context, terms []string, topK int) ([]Chunk, error)
}
