package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/custodia-labs/corpora-cli/internal/core/domain"
)

// maxQueryTokens caps how many distinct query tokens keyword scoring
// considers.
const maxQueryTokens = 8

// minTokenLen is the shortest token that contributes to keyword scoring.
const minTokenLen = 3

// previewChars is the content prefix length used for metadata-only hits.
const previewChars = 240

var tokenRe = regexp.MustCompile(`[a-z0-9]+`)

// querier implements the read-side retrieval operations. It is embedded
// in both the writer Store and every independent reader, so the same
// query logic runs on either connection.
type querier struct {
	db *sql.DB
}

// SearchChunks performs keyword search: active chunks scored by how
// many distinct query tokens they contain as substrings.
func (q querier) SearchChunks(ctx context.Context, corpusID, query string, limit int) ([]domain.ChunkHit, error) {
	tokens := queryTokens(query)
	if len(tokens) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 1
	}

	// One instr() term per token; the score is the count of tokens
	// present, not occurrence counts.
	// Placeholder order follows the SQL text: score terms first, then
	// corpus id, then limit.
	terms := make([]string, len(tokens))
	args := make([]any, 0, len(tokens)+2)
	for i, token := range tokens {
		terms[i] = "(instr(lower(c.content), ?) > 0)"
		args = append(args, token)
	}
	args = append(args, corpusID, limit)

	rows, err := q.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT chunk_id, doc_id, relative_path, absolute_path, position, content, score FROM (
			SELECT c.id AS chunk_id, d.id AS doc_id, d.relative_path, d.absolute_path,
				c.position, c.content, (%s) AS score
			FROM chunks c
			JOIN documents d ON d.id = c.document_id
			WHERE d.corpus_id = ? AND d.is_deleted = 0
		)
		WHERE score > 0
		ORDER BY score DESC, relative_path ASC, position ASC
		LIMIT ?
	`, strings.Join(terms, " + ")), args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var hits []domain.ChunkHit //nolint:prealloc // size unknown from query
	for rows.Next() {
		var hit domain.ChunkHit
		if err := rows.Scan(&hit.ChunkID, &hit.DocID, &hit.RelativePath, &hit.AbsolutePath,
			&hit.Position, &hit.Text, &hit.Score); err != nil {
			return nil, fmt.Errorf("scanning chunk hit: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk hits: %w", err)
	}
	return hits, nil
}

// SearchChunksSemantic ranks active chunks by cosine similarity to the
// query embedding. Vectors are stored as little-endian float32 blobs
// and compared in process.
func (q querier) SearchChunksSemantic(ctx context.Context, corpusID string, queryEmbedding []float32, limit int) ([]domain.ChunkHit, error) {
	if len(queryEmbedding) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 1
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT c.id, d.id, d.relative_path, d.absolute_path, c.position, c.content, c.embedding
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.corpus_id = ? AND d.is_deleted = 0
			AND c.embedding IS NOT NULL AND length(c.embedding) > 0
	`, corpusID)
	if err != nil {
		return nil, fmt.Errorf("querying embedded chunks: %w", err)
	}
	defer rows.Close()

	var hits []domain.ChunkHit //nolint:prealloc // size unknown from query
	for rows.Next() {
		var hit domain.ChunkHit
		var blob []byte
		if err := rows.Scan(&hit.ChunkID, &hit.DocID, &hit.RelativePath, &hit.AbsolutePath,
			&hit.Position, &hit.Text, &blob); err != nil {
			return nil, fmt.Errorf("scanning embedded chunk: %w", err)
		}
		hit.Score = cosineSimilarity(queryEmbedding, bytesToFloat32Slice(blob))
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating embedded chunks: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].RelativePath != hits[j].RelativePath {
			return hits[i].RelativePath < hits[j].RelativePath
		}
		return hits[i].Position < hits[j].Position
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// SearchDocumentsByMetadata returns active documents matching every
// filter condition. Conditions are evaluated in process against the
// decoded metadata, which keeps the type-aware comparison rules in one
// place.
func (q querier) SearchDocumentsByMetadata(ctx context.Context, corpusID string, filters []domain.Filter, limit int) ([]domain.MetadataHit, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 1
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, relative_path, absolute_path, substr(content, 1, ?), metadata
		FROM documents
		WHERE corpus_id = ? AND is_deleted = 0
		ORDER BY relative_path
	`, previewChars, corpusID)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var hits []domain.MetadataHit
	for rows.Next() {
		var hit domain.MetadataHit
		var metadataJSON string
		if err := rows.Scan(&hit.DocID, &hit.RelativePath, &hit.AbsolutePath,
			&hit.Preview, &metadataJSON); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}

		var meta domain.Metadata
		if metadataJSON != "" {
			if err := json.Unmarshal([]byte(metadataJSON), &meta); err != nil {
				return nil, fmt.Errorf("unmarshaling metadata: %w", err)
			}
		}

		if !matchesAll(meta, filters) {
			continue
		}
		hit.MetadataScore = len(filters)
		hits = append(hits, hit)
		if len(hits) >= limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return hits, nil
}

// MetadataFieldValues returns up to maxDistinct distinct non-empty
// values per requested field across the corpus's active documents.
func (q querier) MetadataFieldValues(ctx context.Context, corpusID string, fields []string, maxDistinct int) (map[string][]string, error) {
	if len(fields) == 0 {
		return map[string][]string{}, nil
	}
	if maxDistinct <= 0 {
		maxDistinct = 10
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT metadata FROM documents
		WHERE corpus_id = ? AND is_deleted = 0
		ORDER BY relative_path
	`, corpusID)
	if err != nil {
		return nil, fmt.Errorf("querying metadata: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]map[string]struct{}, len(fields))
	values := make(map[string][]string, len(fields))
	for _, field := range fields {
		seen[field] = make(map[string]struct{})
		values[field] = nil
	}

	for rows.Next() {
		var metadataJSON string
		if err := rows.Scan(&metadataJSON); err != nil {
			return nil, fmt.Errorf("scanning metadata: %w", err)
		}
		if metadataJSON == "" {
			continue
		}
		var meta domain.Metadata
		if err := json.Unmarshal([]byte(metadataJSON), &meta); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}

		for _, field := range fields {
			v, ok := meta[field]
			if !ok {
				continue
			}
			text := v.String()
			if text == "" {
				continue
			}
			if _, dup := seen[field][text]; dup {
				continue
			}
			if len(values[field]) >= maxDistinct {
				continue
			}
			seen[field][text] = struct{}{}
			values[field] = append(values[field], text)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating metadata: %w", err)
	}

	for _, field := range fields {
		sort.Strings(values[field])
	}
	return values, nil
}

// HasEmbeddings reports whether any active chunk has a stored embedding.
func (q querier) HasEmbeddings(ctx context.Context, corpusID string) (bool, error) {
	var exists bool
	row := q.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM chunks c
			JOIN documents d ON d.id = c.document_id
			WHERE d.corpus_id = ? AND d.is_deleted = 0
				AND c.embedding IS NOT NULL AND length(c.embedding) > 0
		)
	`, corpusID)
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("checking embeddings: %w", err)
	}
	return exists, nil
}

// ==================== Helper Functions ====================

// queryTokens lowercases the query and returns its distinct alphanumeric
// tokens of minTokenLen or more, in first-seen order, capped at
// maxQueryTokens.
func queryTokens(query string) []string {
	raw := tokenRe.FindAllString(strings.ToLower(query), -1)
	seen := make(map[string]struct{}, len(raw))
	tokens := make([]string, 0, len(raw))
	for _, token := range raw {
		if len(token) < minTokenLen {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		tokens = append(tokens, token)
		if len(tokens) >= maxQueryTokens {
			break
		}
	}
	return tokens
}

func matchesAll(meta domain.Metadata, filters []domain.Filter) bool {
	for _, f := range filters {
		if !f.Matches(meta) {
			return false
		}
	}
	return true
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths or zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
