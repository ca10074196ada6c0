package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/corpora-cli/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/corpora-cli/internal/core/domain"
	"github.com/custodia-labs/corpora-cli/internal/core/ports/driven"
)

// seedSearchCorpus stores two documents with metadata, a chunk each, and
// an active schema covering the metadata fields.
func seedSearchCorpus(t *testing.T, store *sqlite.Store) string {
	t.Helper()
	ctx := context.Background()

	corpusID, err := store.GetOrCreateCorpus(ctx, "/corpus/deals")
	require.NoError(t, err)

	_, err = store.SaveSchema(ctx, &domain.Schema{
		CorpusID: corpusID,
		Name:     "deals",
		Fields: []domain.FieldDef{
			{Name: "document_type", Type: domain.FieldString},
			{Name: "mentions_currency", Type: domain.FieldBoolean},
		},
		IsActive: true,
	})
	require.NoError(t, err)

	docs := []struct {
		rel     string
		content string
		meta    domain.Metadata
	}{
		{
			rel:     "agreement.txt",
			content: "Purchase price is $45,000,000",
			meta: domain.Metadata{
				"document_type":     domain.StringValue("agreement"),
				"mentions_currency": domain.BoolValue(true),
			},
		},
		{
			rel:     "report.txt",
			content: "Risk register and litigation exposure summary",
			meta: domain.Metadata{
				"document_type":     domain.StringValue("report"),
				"mentions_currency": domain.BoolValue(false),
			},
		},
	}
	for _, d := range docs {
		docID := domain.DocumentID(corpusID, d.rel)
		doc := &domain.Document{
			ID:            docID,
			CorpusID:      corpusID,
			RelativePath:  d.rel,
			AbsolutePath:  "/corpus/deals/" + d.rel,
			Content:       d.content,
			Metadata:      d.meta,
			LastIndexedAt: time.Now().UTC(),
		}
		chunk := domain.Chunk{
			ID:         domain.ChunkID(docID, 0, 0, len(d.content)),
			DocumentID: docID,
			Text:       d.content,
			Position:   0,
			StartChar:  0,
			EndChar:    len(d.content),
		}
		require.NoError(t, store.UpsertDocument(ctx, doc, []domain.Chunk{chunk}))
	}
	return corpusID
}

func newSearchStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

func TestSearch_RequiresQueryOrFilters(t *testing.T) {
	store := newSearchStore(t)
	corpusID := seedSearchCorpus(t, store)

	engine := NewQueryEngine(store, nil)
	_, err := engine.Search(context.Background(), corpusID, "   ", "", 10)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSearch_KeywordOnly(t *testing.T) {
	store := newSearchStore(t)
	corpusID := seedSearchCorpus(t, store)

	engine := NewQueryEngine(store, nil)
	hits, err := engine.Search(context.Background(), corpusID, "purchase price", "", 10)
	require.NoError(t, err)

	require.Len(t, hits, 1)
	assert.Equal(t, "agreement.txt", hits[0].RelativePath)
	assert.Equal(t, 0, hits[0].Position)
	assert.Equal(t, domain.MatchedSemantic, hits[0].MatchedBy())
	assert.Zero(t, hits[0].MetadataScore)
}

func TestSearch_MergesKeywordAndMetadataHits(t *testing.T) {
	store := newSearchStore(t)
	corpusID := seedSearchCorpus(t, store)

	engine := NewQueryEngine(store, nil)

	// The query only matches the report; the filter only matches the
	// agreement. Both documents come back, semantic hit first.
	hits, err := engine.Search(context.Background(), corpusID,
		"litigation", `mentions_currency = true`, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "report.txt", hits[0].RelativePath)
	assert.Equal(t, domain.MatchedSemantic, hits[0].MatchedBy())

	assert.Equal(t, "agreement.txt", hits[1].RelativePath)
	assert.Equal(t, domain.MatchedMetadata, hits[1].MatchedBy())
	assert.Equal(t, domain.NoPosition, hits[1].Position)
	assert.Contains(t, hits[1].Text, "Purchase price", "metadata-only hits carry a content preview")
	assert.Equal(t, 1, hits[1].MetadataScore)
}

func TestSearch_QueryAndFilterOnSameDocument(t *testing.T) {
	store := newSearchStore(t)
	corpusID := seedSearchCorpus(t, store)

	engine := NewQueryEngine(store, nil)
	hits, err := engine.Search(context.Background(), corpusID,
		"purchase", `document_type = agreement and mentions_currency = true`, 10)
	require.NoError(t, err)

	require.NotEmpty(t, hits)
	assert.Equal(t, "agreement.txt", hits[0].RelativePath)
	assert.Equal(t, domain.MatchedSemanticMeta, hits[0].MatchedBy())
	assert.Equal(t, 2, hits[0].MetadataScore)
	assert.Equal(t, 0, hits[0].Position, "the best chunk supplies the position")
}

func TestSearch_FilterOnlyNoQuery(t *testing.T) {
	store := newSearchStore(t)
	corpusID := seedSearchCorpus(t, store)

	engine := NewQueryEngine(store, nil)
	hits, err := engine.Search(context.Background(), corpusID, "", `document_type = report`, 10)
	require.NoError(t, err)

	require.Len(t, hits, 1)
	assert.Equal(t, "report.txt", hits[0].RelativePath)
	assert.Equal(t, domain.MatchedMetadata, hits[0].MatchedBy())
}

func TestSearch_RejectsUnknownFilterField(t *testing.T) {
	store := newSearchStore(t)
	corpusID := seedSearchCorpus(t, store)

	engine := NewQueryEngine(store, nil)
	_, err := engine.Search(context.Background(), corpusID, "anything", `bogus = 1`, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bogus")
	assert.Contains(t, err.Error(), "document_type", "the diagnostic lists the allowed fields")
	assert.Contains(t, err.Error(), "Supported filter syntax")
}

// stubEmbedder returns a fixed query vector or an error.
type stubEmbedder struct {
	vector []float32
	err    error
}

func (s *stubEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = s.vector
	}
	return out, s.err
}

func (s *stubEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return s.vector, s.err
}

func TestSearch_SemanticRankingWithEmbeddings(t *testing.T) {
	store := newSearchStore(t)
	corpusID := seedSearchCorpus(t, store)
	ctx := context.Background()

	agreementDoc := domain.DocumentID(corpusID, "agreement.txt")
	reportDoc := domain.DocumentID(corpusID, "report.txt")
	agreementLen := len("Purchase price is $45,000,000")
	reportLen := len("Risk register and litigation exposure summary")

	_, err := store.StoreChunkEmbeddings(ctx, corpusID, []driven.ChunkEmbedding{
		{ChunkID: domain.ChunkID(agreementDoc, 0, 0, agreementLen), Embedding: []float32{1, 0}},
		{ChunkID: domain.ChunkID(reportDoc, 0, 0, reportLen), Embedding: []float32{0, 1}},
	})
	require.NoError(t, err)

	engine := NewQueryEngine(store, &stubEmbedder{vector: []float32{1, 0}})
	hits, err := engine.Search(ctx, corpusID, "deal value", "", 10)
	require.NoError(t, err)

	require.Len(t, hits, 2)
	assert.Equal(t, "agreement.txt", hits[0].RelativePath)
	assert.InDelta(t, 1.0, hits[0].SemanticScore, 1e-6)
	assert.Equal(t, "report.txt", hits[1].RelativePath)
	assert.InDelta(t, 0.0, hits[1].SemanticScore, 1e-6)
}

func TestSearch_EmbedFailureFallsBackToKeyword(t *testing.T) {
	store := newSearchStore(t)
	corpusID := seedSearchCorpus(t, store)
	ctx := context.Background()

	agreementDoc := domain.DocumentID(corpusID, "agreement.txt")
	agreementLen := len("Purchase price is $45,000,000")
	_, err := store.StoreChunkEmbeddings(ctx, corpusID, []driven.ChunkEmbedding{
		{ChunkID: domain.ChunkID(agreementDoc, 0, 0, agreementLen), Embedding: []float32{1, 0}},
	})
	require.NoError(t, err)

	engine := NewQueryEngine(store, &stubEmbedder{err: errors.New("provider down")})
	hits, err := engine.Search(ctx, corpusID, "litigation exposure", "", 10)
	require.NoError(t, err)

	require.Len(t, hits, 1)
	assert.Equal(t, "report.txt", hits[0].RelativePath)
}

func TestExplainFilters(t *testing.T) {
	store := newSearchStore(t)
	corpusID := seedSearchCorpus(t, store)

	engine := NewQueryEngine(store, nil)
	lines, err := engine.ExplainFilters(context.Background(), corpusID,
		`document_type in (agreement, report), mentions_currency = true`)
	require.NoError(t, err)

	require.Len(t, lines, 4)
	assert.Equal(t, "document_type in (agreement, report)", lines[0])
	assert.Equal(t, "mentions_currency eq true", lines[1])
	assert.Equal(t, "document_type has values: agreement, report", lines[2])
	assert.Equal(t, "mentions_currency has values: false, true", lines[3])
}
