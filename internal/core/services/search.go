package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/custodia-labs/corpora-cli/internal/core/domain"
	"github.com/custodia-labs/corpora-cli/internal/core/ports/driven"
	"github.com/custodia-labs/corpora-cli/internal/core/ports/driving"
	"github.com/custodia-labs/corpora-cli/internal/logger"
)

// DefaultSearchLimit is the result count used when the caller passes a
// non-positive limit.
const DefaultSearchLimit = 10

// overFetchFactor widens the per-path sub-query limits so the merge has
// enough candidates to rank from.
const overFetchFactor = 4

// QueryEngine merges semantic (or keyword) retrieval with metadata
// filtering into ranked, document-level results. It implements
// driving.Searcher.
type QueryEngine struct {
	store    driven.CorpusStore
	embedder driven.EmbeddingService
}

var _ driving.Searcher = (*QueryEngine)(nil)

// NewQueryEngine creates the query engine. The embedder is optional;
// without one, the semantic path falls back to keyword search.
func NewQueryEngine(store driven.CorpusStore, embedder driven.EmbeddingService) *QueryEngine {
	return &QueryEngine{store: store, embedder: embedder}
}

// Search parses the filter string against the corpus's active schema,
// runs the retrieval sub-queries, and merges per document. With no
// filters only the semantic path runs; with filters both paths run
// concurrently on independent read handles.
func (q *QueryEngine) Search(ctx context.Context, corpusID, query, filters string, limit int) ([]domain.RankedHit, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	query = strings.TrimSpace(query)

	parsed, err := q.parseFilters(ctx, corpusID, filters)
	if err != nil {
		return nil, err
	}
	if query == "" && len(parsed) == 0 {
		return nil, fmt.Errorf("%w: search needs a query, filters, or both", domain.ErrInvalidInput)
	}

	fetchLimit := limit * overFetchFactor
	logger.Section("Searching corpus " + corpusID)
	logger.Info("Query: %q, %d filter conditions, limit %d", query, len(parsed), limit)

	if len(parsed) == 0 {
		hits, err := q.semanticSearch(ctx, q.store, corpusID, query, fetchLimit)
		if err != nil {
			return nil, err
		}
		return domain.RankHits(mergeHits(hits, nil), limit), nil
	}

	var (
		wg        sync.WaitGroup
		chunkHits []domain.ChunkHit
		metaHits  []domain.MetadataHit
		chunkErr  error
		metaErr   error
	)

	if query != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reader, err := q.store.OpenReader(ctx)
			if err != nil {
				chunkErr = err
				return
			}
			defer reader.Close()
			chunkHits, chunkErr = q.semanticSearch(ctx, reader, corpusID, query, fetchLimit)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		reader, err := q.store.OpenReader(ctx)
		if err != nil {
			metaErr = err
			return
		}
		defer reader.Close()
		metaHits, metaErr = reader.SearchDocumentsByMetadata(ctx, corpusID, parsed, fetchLimit)
	}()

	wg.Wait()
	if chunkErr != nil {
		return nil, fmt.Errorf("semantic search: %w", chunkErr)
	}
	if metaErr != nil {
		return nil, fmt.Errorf("metadata search: %w", metaErr)
	}
	logger.Info("Merged %d chunk hits with %d metadata hits", len(chunkHits), len(metaHits))

	return domain.RankHits(mergeHits(chunkHits, metaHits), limit), nil
}

// ExplainFilters parses the filter string against the active schema and
// returns a human-readable rendering of each normalized condition,
// followed by the values observed in the corpus for each filtered field.
func (q *QueryEngine) ExplainFilters(ctx context.Context, corpusID, filters string) ([]string, error) {
	parsed, err := q.parseFilters(ctx, corpusID, filters)
	if err != nil {
		return nil, err
	}

	var fields []string
	seen := make(map[string]struct{}, len(parsed))
	lines := make([]string, 0, len(parsed))
	for _, f := range parsed {
		if _, dup := seen[f.Field]; !dup {
			seen[f.Field] = struct{}{}
			fields = append(fields, f.Field)
		}
		if f.Op == domain.OpIn {
			values := make([]string, len(f.Values))
			for i, v := range f.Values {
				values[i] = v.String()
			}
			lines = append(lines, fmt.Sprintf("%s %s (%s)", f.Field, f.Op, strings.Join(values, ", ")))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", f.Field, f.Op, f.Value.String()))
	}

	observed, err := q.store.MetadataFieldValues(ctx, corpusID, fields, 0)
	if err != nil {
		return nil, fmt.Errorf("loading field values: %w", err)
	}
	for _, field := range fields {
		if values := observed[field]; len(values) > 0 {
			lines = append(lines, fmt.Sprintf("%s has values: %s", field, strings.Join(values, ", ")))
		}
	}
	return lines, nil
}

// parseFilters validates filter fields against the active schema when
// one exists. A corpus without a schema accepts any well-formed field.
func (q *QueryEngine) parseFilters(ctx context.Context, corpusID, filters string) ([]domain.Filter, error) {
	if strings.TrimSpace(filters) == "" {
		return nil, nil
	}

	var allowed map[string]struct{}
	schema, err := q.store.GetActiveSchema(ctx, corpusID)
	switch {
	case err == nil:
		allowed = schema.FieldNames()
	case errors.Is(err, domain.ErrNotFound):
		allowed = nil
	default:
		return nil, fmt.Errorf("loading active schema: %w", err)
	}

	parsed, err := domain.ParseFilters(filters, allowed)
	if err != nil {
		return nil, fmt.Errorf("%v\n%s", err, domain.SupportedFilterSyntax())
	}
	return parsed, nil
}

// semanticSearch embeds the query and ranks chunks by cosine similarity
// when embeddings are available; otherwise it degrades to keyword
// search over the same reader.
func (q *QueryEngine) semanticSearch(ctx context.Context, reader driven.SearchReader, corpusID, query string, limit int) ([]domain.ChunkHit, error) {
	if query == "" {
		return nil, nil
	}

	if q.embedder != nil {
		ok, err := reader.HasEmbeddings(ctx, corpusID)
		if err != nil {
			return nil, err
		}
		if ok {
			vector, err := q.embedder.EmbedQuery(ctx, query)
			if err != nil {
				logger.Warn("Query embedding failed, falling back to keyword search: %v", err)
			} else {
				return reader.SearchChunksSemantic(ctx, corpusID, vector, limit)
			}
		}
	}
	logger.Debug("Using keyword search")
	return reader.SearchChunks(ctx, corpusID, query, limit)
}

// mergeHits folds chunk-level and document-level hits into one ranked
// hit per document. The best-scoring chunk supplies position and text;
// metadata-only documents carry their content preview and NoPosition.
func mergeHits(chunkHits []domain.ChunkHit, metaHits []domain.MetadataHit) []domain.RankedHit {
	byDoc := make(map[string]*domain.RankedHit)
	order := make([]string, 0, len(chunkHits)+len(metaHits))

	for _, hit := range chunkHits {
		merged, ok := byDoc[hit.DocID]
		if !ok {
			merged = &domain.RankedHit{
				DocID:         hit.DocID,
				RelativePath:  hit.RelativePath,
				AbsolutePath:  hit.AbsolutePath,
				Position:      hit.Position,
				Text:          hit.Text,
				SemanticScore: hit.Score,
			}
			byDoc[hit.DocID] = merged
			order = append(order, hit.DocID)
			continue
		}
		if hit.Score > merged.SemanticScore {
			merged.SemanticScore = hit.Score
			merged.Position = hit.Position
			merged.Text = hit.Text
		}
	}

	for _, hit := range metaHits {
		merged, ok := byDoc[hit.DocID]
		if !ok {
			merged = &domain.RankedHit{
				DocID:        hit.DocID,
				RelativePath: hit.RelativePath,
				AbsolutePath: hit.AbsolutePath,
				Position:     domain.NoPosition,
				Text:         hit.Preview,
			}
			byDoc[hit.DocID] = merged
			order = append(order, hit.DocID)
		}
		if hit.MetadataScore > merged.MetadataScore {
			merged.MetadataScore = hit.MetadataScore
		}
	}

	hits := make([]domain.RankedHit, 0, len(order))
	for _, id := range order {
		hits = append(hits, *byDoc[id])
	}
	return hits
}
