package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/corpora-cli/internal/chunker"
	"github.com/custodia-labs/corpora-cli/internal/core/domain"
	"github.com/custodia-labs/corpora-cli/internal/core/ports/driven"
	"github.com/custodia-labs/corpora-cli/internal/core/ports/driving"
	"github.com/custodia-labs/corpora-cli/internal/logger"
)

// embedBatchSize caps how many chunk texts one embedding request carries.
const embedBatchSize = 64

// IndexerService walks folders, parses supported files, extracts
// metadata, chunks content and persists everything through the corpus
// store. It implements driving.Indexer.
type IndexerService struct {
	store     driven.CorpusStore
	parser    driven.Parser
	chunker   *chunker.Chunker
	metadata  *MetadataService
	discovery *SchemaDiscovery
	embedder  driven.EmbeddingService

	// workers bounds concurrent per-document metadata extraction.
	workers int
}

var _ driving.Indexer = (*IndexerService)(nil)

// NewIndexerService creates the indexing pipeline. The embedder is
// optional; when nil, no embeddings are written.
func NewIndexerService(
	store driven.CorpusStore,
	parser driven.Parser,
	ch *chunker.Chunker,
	metadata *MetadataService,
	discovery *SchemaDiscovery,
	embedder driven.EmbeddingService,
) *IndexerService {
	return &IndexerService{
		store:     store,
		parser:    parser,
		chunker:   ch,
		metadata:  metadata,
		discovery: discovery,
		embedder:  embedder,
		workers:   runtime.NumCPU(),
	}
}

// extractedDoc is the outcome of the parallel phase for one file:
// parsed content plus its metadata. Failed files carry err and are
// skipped, not fatal.
type extractedDoc struct {
	relativePath string
	absolutePath string
	content      string
	metadata     domain.Metadata
	info         os.FileInfo
	err          error
}

// IndexFolder runs the full pipeline: resolve corpus, resolve schema,
// walk, extract in parallel, write sequentially, reconcile deletions,
// embed. Re-indexing always rewrites documents so that schema or
// profile changes propagate without a force flag.
func (s *IndexerService) IndexFolder(ctx context.Context, folder string, opts driving.IndexOptions) (*domain.IndexSummary, error) {
	root, err := filepath.Abs(folder)
	if err != nil {
		return nil, fmt.Errorf("resolving folder path: %w", err)
	}
	if info, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("reading folder: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidInput, root)
	}

	corpusID, err := s.store.GetOrCreateCorpus(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("resolving corpus: %w", err)
	}
	logger.Section("Indexing " + root)
	logger.Info("Corpus: %s", corpusID)

	withMetadata := opts.WithMetadata || opts.Profile != nil
	schema, err := s.resolveSchema(ctx, corpusID, root, opts, withMetadata)
	if err != nil {
		return nil, err
	}

	files, err := supportedFiles(root, s.parser)
	if err != nil {
		return nil, fmt.Errorf("scanning folder: %w", err)
	}
	logger.Info("Found %d supported files", len(files))

	docs := s.extractAll(ctx, root, files, schema, withMetadata, opts.Profile)

	summary := &domain.IndexSummary{CorpusID: corpusID}
	if schema != nil {
		summary.SchemaUsed = schema.Name
	}

	seenPaths := make(map[string]struct{}, len(files))
	var allChunks []domain.Chunk
	now := time.Now().UTC()
	for _, path := range files {
		doc := docs[path]
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		// Files that failed to parse are skipped but still count as
		// present: a transient parse failure must not soft-delete the
		// document.
		seenPaths[rel] = struct{}{}
		if doc == nil || doc.err != nil {
			if doc != nil {
				logger.Warn("Skipping %s: %v", rel, doc.err)
			}
			summary.SkippedFiles++
			continue
		}

		docID := domain.DocumentID(corpusID, doc.relativePath)
		chunks := s.chunker.Chunk(doc.content)
		for i := range chunks {
			chunks[i].DocumentID = docID
			chunks[i].ID = domain.ChunkID(docID, chunks[i].Position, chunks[i].StartChar, chunks[i].EndChar)
		}

		record := &domain.Document{
			ID:            docID,
			CorpusID:      corpusID,
			RelativePath:  doc.relativePath,
			AbsolutePath:  doc.absolutePath,
			Content:       doc.content,
			Metadata:      doc.metadata,
			FileMtime:     doc.info.ModTime().UTC(),
			FileSize:      doc.info.Size(),
			ContentSHA256: contentDigest(doc.content),
			LastIndexedAt: now,
		}
		if err := s.store.UpsertDocument(ctx, record, chunks); err != nil {
			return nil, fmt.Errorf("storing document %s: %w", doc.relativePath, err)
		}
		summary.IndexedFiles++
		summary.ChunksWritten += len(chunks)
		allChunks = append(allChunks, chunks...)
	}

	deleted, err := s.store.MarkDeletedMissing(ctx, corpusID, seenPaths)
	if err != nil {
		return nil, fmt.Errorf("reconciling deleted documents: %w", err)
	}
	summary.DeletedFiles = deleted

	active, err := s.store.ListDocuments(ctx, corpusID, false)
	if err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}
	summary.ActiveDocuments = len(active)

	if s.embedder != nil && len(allChunks) > 0 {
		written, err := s.embedChunks(ctx, corpusID, allChunks)
		if err != nil {
			// Embeddings are an enhancement, not a requirement: the
			// keyword index is already complete at this point.
			logger.Warn("Embedding failed, index remains keyword-only: %v", err)
		}
		summary.EmbeddingsWritten = written
	}

	logger.Info("Indexed %d files, skipped %d, deleted %d, wrote %d chunks",
		summary.IndexedFiles, summary.SkippedFiles, summary.DeletedFiles, summary.ChunksWritten)
	return summary, nil
}

// resolveSchema applies the schema selection rules, persisting any newly
// discovered schema as active. Order: explicit discovery, explicit
// name, existing active schema, discovery as fallback.
func (s *IndexerService) resolveSchema(ctx context.Context, corpusID, root string, opts driving.IndexOptions, withMetadata bool) (*domain.Schema, error) {
	switch {
	case opts.DiscoverSchema:
		return s.discoverAndSave(ctx, corpusID, root, withMetadata, opts.Profile)

	case opts.SchemaName != "":
		schema, err := s.store.GetSchemaByName(ctx, corpusID, opts.SchemaName)
		if err != nil {
			return nil, fmt.Errorf("loading schema %q: %w", opts.SchemaName, err)
		}
		schema.IsActive = true
		if _, err := s.store.SaveSchema(ctx, schema); err != nil {
			return nil, fmt.Errorf("activating schema %q: %w", opts.SchemaName, err)
		}
		return s.augmentForProfile(ctx, schema, withMetadata, opts.Profile)

	default:
		schema, err := s.store.GetActiveSchema(ctx, corpusID)
		if errors.Is(err, domain.ErrNotFound) {
			return s.discoverAndSave(ctx, corpusID, root, withMetadata, opts.Profile)
		}
		if err != nil {
			return nil, fmt.Errorf("loading active schema: %w", err)
		}
		return s.augmentForProfile(ctx, schema, withMetadata, opts.Profile)
	}
}

func (s *IndexerService) discoverAndSave(ctx context.Context, corpusID, root string, withMetadata bool, profile *domain.MetadataProfile) (*domain.Schema, error) {
	schema, err := s.discovery.Discover(ctx, corpusID, root, withMetadata, profile)
	if err != nil {
		return nil, fmt.Errorf("discovering schema: %w", err)
	}
	schema.IsActive = true
	if _, err := s.store.SaveSchema(ctx, schema); err != nil {
		return nil, fmt.Errorf("saving discovered schema: %w", err)
	}
	return schema, nil
}

// augmentForProfile extends a stored schema with the profile's fields
// when metadata extraction is requested and the schema predates the
// profile. The extended schema is persisted so later filter parsing
// accepts the profile fields.
func (s *IndexerService) augmentForProfile(ctx context.Context, schema *domain.Schema, withMetadata bool, override *domain.MetadataProfile) (*domain.Schema, error) {
	if !withMetadata {
		return schema, nil
	}

	profile := override
	if profile == nil {
		profile = schema.Profile
	}
	if profile == nil {
		profile = domain.DefaultProfile()
	}
	normalized, err := profile.WithRuntimeFields().Normalize()
	if err != nil {
		return nil, err
	}

	existing := schema.FieldNames()
	var added int
	for _, f := range normalized.SchemaFields() {
		if _, ok := existing[f.Name]; ok {
			continue
		}
		schema.Fields = append(schema.Fields, f)
		added++
	}
	schema.Profile = normalized
	if added > 0 {
		logger.Info("Augmented schema %q with %d profile fields", schema.Name, added)
	}
	if _, err := s.store.SaveSchema(ctx, schema); err != nil {
		return nil, fmt.Errorf("updating schema %q: %w", schema.Name, err)
	}
	return schema, nil
}

// extractAll parses and extracts metadata for every file with a bounded
// worker pool. Results are keyed by absolute path; per-file failures
// are recorded, not propagated.
func (s *IndexerService) extractAll(ctx context.Context, root string, files []string, schema *domain.Schema, withMetadata bool, profile *domain.MetadataProfile) map[string]*extractedDoc {
	results := make(map[string]*extractedDoc, len(files))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, path := range files {
		g.Go(func() error {
			doc := s.extractOne(gctx, root, path, schema, withMetadata, profile)
			mu.Lock()
			results[path] = doc
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors, so Wait only orders the writes.
	_ = g.Wait()
	return results
}

func (s *IndexerService) extractOne(ctx context.Context, root, path string, schema *domain.Schema, withMetadata bool, profile *domain.MetadataProfile) *extractedDoc {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return &extractedDoc{absolutePath: path, err: err}
	}
	doc := &extractedDoc{relativePath: rel, absolutePath: path}

	doc.info, doc.err = os.Stat(path)
	if doc.err != nil {
		return doc
	}
	doc.content, doc.err = s.parser.Parse(ctx, path)
	if doc.err != nil {
		return doc
	}
	doc.metadata, doc.err = s.metadata.Extract(ctx, ExtractInput{
		FilePath:     path,
		RootPath:     root,
		RelativePath: rel,
		Content:      doc.content,
		Schema:       schema,
		WithProfile:  withMetadata,
		Profile:      profile,
	})
	return doc
}

// embedChunks generates and stores embeddings in batches.
func (s *IndexerService) embedChunks(ctx context.Context, corpusID string, chunks []domain.Chunk) (int, error) {
	var written int
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := s.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return written, err
		}
		if len(vectors) != len(batch) {
			return written, fmt.Errorf("embedding service returned %d vectors for %d texts", len(vectors), len(batch))
		}

		pairs := make([]driven.ChunkEmbedding, len(batch))
		for i, c := range batch {
			pairs[i] = driven.ChunkEmbedding{ChunkID: c.ID, Embedding: vectors[i]}
		}
		n, err := s.store.StoreChunkEmbeddings(ctx, corpusID, pairs)
		written += n
		if err != nil {
			return written, err
		}
	}
	logger.Info("Wrote %d chunk embeddings", written)
	return written, nil
}

func contentDigest(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
