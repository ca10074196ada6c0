package driving

import (
	"context"

	"github.com/custodia-labs/corpora-cli/internal/core/domain"
)

// Searcher runs merged semantic + metadata retrieval over a corpus.
type Searcher interface {
	// Search returns ranked document hits. The filters string uses the
	// metadata filter DSL; when empty, only semantic/keyword retrieval
	// runs.
	Search(ctx context.Context, corpusID, query, filters string, limit int) ([]domain.RankedHit, error)
}
