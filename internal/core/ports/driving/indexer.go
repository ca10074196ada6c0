package driving

import (
	"context"

	"github.com/custodia-labs/corpora-cli/internal/core/domain"
)

// IndexOptions configures one indexing run.
type IndexOptions struct {
	// DiscoverSchema forces schema discovery even when an active schema
	// exists.
	DiscoverSchema bool

	// SchemaName selects an explicit stored schema by name.
	SchemaName string

	// WithMetadata enables profile-driven metadata extraction.
	WithMetadata bool

	// Profile overrides the schema's recorded metadata profile.
	// Supplying a profile implies WithMetadata.
	Profile *domain.MetadataProfile
}

// Indexer builds and updates corpus indexes from filesystem folders.
type Indexer interface {
	// IndexFolder walks a folder, parses, chunks and upserts every
	// supported file, reconciles deletions, and optionally embeds
	// chunks. Returns a summary of the run.
	IndexFolder(ctx context.Context, folder string, opts IndexOptions) (*domain.IndexSummary, error)
}
