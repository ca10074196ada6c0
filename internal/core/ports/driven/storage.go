package driven

import (
	"context"

	"github.com/custodia-labs/corpora-cli/internal/core/domain"
)

// ChunkEmbedding pairs a chunk id with its embedding vector for bulk
// storage.
type ChunkEmbedding struct {
	ChunkID   string
	Embedding []float32
}

// SearchReader exposes the read-side retrieval operations of a corpus
// store. Each concurrent reader must own an independent handle to the
// backend; sharing one connection across goroutines is unsafe in most
// embedded-database client libraries.
type SearchReader interface {
	// SearchChunks performs keyword search over active chunks: up to 8
	// distinct lowercased query tokens of length >= 3, scored by
	// substring-match count, ordered score desc, relative path asc,
	// position asc.
	SearchChunks(ctx context.Context, corpusID, query string, limit int) ([]domain.ChunkHit, error)

	// SearchChunksSemantic ranks active chunks by cosine similarity to
	// the query embedding, descending.
	SearchChunksSemantic(ctx context.Context, corpusID string, queryEmbedding []float32, limit int) ([]domain.ChunkHit, error)

	// SearchDocumentsByMetadata returns active documents matching every
	// filter condition. Each hit's MetadataScore is the condition count.
	SearchDocumentsByMetadata(ctx context.Context, corpusID string, filters []domain.Filter, limit int) ([]domain.MetadataHit, error)

	// MetadataFieldValues returns up to maxDistinct distinct non-empty
	// values per requested field, for filter-syntax discoverability.
	MetadataFieldValues(ctx context.Context, corpusID string, fields []string, maxDistinct int) (map[string][]string, error)

	// HasEmbeddings reports whether any active chunk of the corpus has a
	// stored embedding.
	HasEmbeddings(ctx context.Context, corpusID string) (bool, error)
}

// Reader is an independent read handle to the corpus store. Callers
// must Close it when the query completes.
type Reader interface {
	SearchReader

	// Close releases the underlying connection.
	Close() error
}

// CorpusStore persists corpora, documents, chunks, schemas and optional
// chunk embeddings. Write operations are expected to be called from a
// single goroutine; reads may run concurrently via OpenReader.
type CorpusStore interface {
	SearchReader

	// GetOrCreateCorpus returns the corpus id for a resolved root path,
	// creating the corpus on first index.
	GetOrCreateCorpus(ctx context.Context, rootPath string) (string, error)

	// GetCorpusID returns the corpus id for a root path, or
	// domain.ErrNotFound.
	GetCorpusID(ctx context.Context, rootPath string) (string, error)

	// UpsertDocument replaces the document row and its entire chunk set
	// in one transaction. No stale chunks from a previous version remain.
	UpsertDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error

	// MarkDeletedMissing soft-deletes every non-deleted document of the
	// corpus whose relative path is absent from activeRelativePaths, and
	// returns the total currently-deleted count.
	MarkDeletedMissing(ctx context.Context, corpusID string, activeRelativePaths map[string]struct{}) (int, error)

	// ListDocuments returns the corpus's documents ordered by relative
	// path, optionally including soft-deleted ones.
	ListDocuments(ctx context.Context, corpusID string, includeDeleted bool) ([]domain.DocumentInfo, error)

	// GetDocument retrieves a document by id, or domain.ErrNotFound.
	GetDocument(ctx context.Context, docID string) (*domain.Document, error)

	// CountChunks counts chunks belonging to active documents.
	CountChunks(ctx context.Context, corpusID string) (int, error)

	// StoreChunkEmbeddings bulk-stores embeddings and returns the number
	// written.
	StoreChunkEmbeddings(ctx context.Context, corpusID string, pairs []ChunkEmbedding) (int, error)

	// SaveSchema creates or updates a schema. Saving an active schema
	// deactivates its siblings for the corpus.
	SaveSchema(ctx context.Context, schema *domain.Schema) (string, error)

	// GetActiveSchema returns the corpus's active schema, or
	// domain.ErrNotFound.
	GetActiveSchema(ctx context.Context, corpusID string) (*domain.Schema, error)

	// GetSchemaByName fetches a schema by name, or domain.ErrNotFound.
	GetSchemaByName(ctx context.Context, corpusID, name string) (*domain.Schema, error)

	// ListSchemas returns all schemas for a corpus, newest first.
	ListSchemas(ctx context.Context, corpusID string) ([]domain.Schema, error)

	// OpenReader opens an independent read handle for concurrent
	// retrieval sub-queries.
	OpenReader(ctx context.Context) (Reader, error)

	// Close releases resources.
	Close() error
}
