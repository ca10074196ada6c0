package driven

import "context"

// EmbeddingService generates vector embeddings from text. This is an
// optional service: when nil, semantic search degrades to keyword
// search and indexing writes no embeddings.
type EmbeddingService interface {
	// EmbedTexts generates embeddings for a batch of texts, preserving
	// order.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single retrieval query.
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}
