// Package sqlite implements the corpus store on an embedded SQLite
// database. One writer connection handles indexing; independent
// read-only connections serve concurrent retrieval sub-queries.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/corpora-cli/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/corpora-cli/internal/core/domain"
	"github.com/custodia-labs/corpora-cli/internal/core/ports/driven"
)

// Store is the SQLite-backed corpus store.
type Store struct {
	db   *sql.DB
	path string

	querier
}

var _ driven.CorpusStore = (*Store)(nil)

// NewStore creates a SQLite store at the specified data directory.
// If dataDir is empty, defaults to ~/.corpora/data/corpora.db.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".corpora", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "corpora.db")

	// WAL mode lets readers proceed while an indexing pass writes.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:      db,
		path:    dbPath,
		querier: querier{db: db},
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// OpenReader opens an independent read-only connection to the same
// database file. Each retrieval sub-query gets its own handle so
// concurrent readers never share a connection.
func (s *Store) OpenReader(ctx context.Context) (driven.Reader, error) {
	db, err := sql.Open("sqlite", s.path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=query_only(true)")
	if err != nil {
		return nil, fmt.Errorf("opening reader connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verifying reader connection: %w", err)
	}
	return &reader{db: db, querier: querier{db: db}}, nil
}

// reader is one independent read handle.
type reader struct {
	db *sql.DB

	querier
}

var _ driven.Reader = (*reader)(nil)

// Close closes the reader's connection.
func (r *reader) Close() error {
	return r.db.Close()
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// Extract version number (e.g., "001_initial.up.sql" -> 1)
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// ==================== Corpora ====================

// GetOrCreateCorpus returns the corpus id for a root path, inserting
// the corpus row on first index.
func (s *Store) GetOrCreateCorpus(ctx context.Context, rootPath string) (string, error) {
	id := domain.CorpusID(rootPath)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO corpora (id, root_path, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, rootPath, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("saving corpus: %w", err)
	}
	return id, nil
}

// GetCorpusID returns the corpus id for a previously indexed root path.
func (s *Store) GetCorpusID(ctx context.Context, rootPath string) (string, error) {
	var id string
	row := s.db.QueryRowContext(ctx, "SELECT id FROM corpora WHERE root_path = ?", rootPath)
	if err := row.Scan(&id); err != nil {
		if err == sql.ErrNoRows {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("scanning corpus: %w", err)
	}
	return id, nil
}

// ==================== Documents ====================

// UpsertDocument replaces the document row and its entire chunk set in
// one transaction, so no chunk from a previous version of the file
// survives a reindex.
func (s *Store) UpsertDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, corpus_id, relative_path, absolute_path, content,
			metadata, file_mtime, file_size, content_sha256, last_indexed_at, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(id) DO UPDATE SET
			absolute_path = excluded.absolute_path,
			content = excluded.content,
			metadata = excluded.metadata,
			file_mtime = excluded.file_mtime,
			file_size = excluded.file_size,
			content_sha256 = excluded.content_sha256,
			last_indexed_at = excluded.last_indexed_at,
			is_deleted = 0
	`, doc.ID, doc.CorpusID, doc.RelativePath, doc.AbsolutePath, doc.Content,
		string(metadataJSON), doc.FileMtime, doc.FileSize, doc.ContentSHA256, doc.LastIndexedAt)
	if err != nil {
		return fmt.Errorf("saving document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", doc.ID); err != nil {
		return fmt.Errorf("clearing previous chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, content, position, start_char, end_char, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		embeddingBlob := float32SliceToBytes(chunk.Embedding)
		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.DocumentID, chunk.Text,
			chunk.Position, chunk.StartChar, chunk.EndChar, embeddingBlob); err != nil {
			return fmt.Errorf("saving chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// MarkDeletedMissing soft-deletes every non-deleted document whose
// relative path is absent from the latest scan and returns the corpus's
// total deleted count.
func (s *Store) MarkDeletedMissing(ctx context.Context, corpusID string, activeRelativePaths map[string]struct{}) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT relative_path FROM documents
		WHERE corpus_id = ? AND is_deleted = 0
	`, corpusID)
	if err != nil {
		return 0, fmt.Errorf("querying document paths: %w", err)
	}
	defer rows.Close()

	var missing []string
	for rows.Next() {
		var rel string
		if err := rows.Scan(&rel); err != nil {
			return 0, fmt.Errorf("scanning document path: %w", err)
		}
		if _, ok := activeRelativePaths[rel]; !ok {
			missing = append(missing, rel)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterating document paths: %w", err)
	}

	for _, rel := range missing {
		_, err := s.db.ExecContext(ctx, `
			UPDATE documents SET is_deleted = 1
			WHERE corpus_id = ? AND relative_path = ?
		`, corpusID, rel)
		if err != nil {
			return 0, fmt.Errorf("marking %s deleted: %w", rel, err)
		}
	}

	var deleted int
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM documents WHERE corpus_id = ? AND is_deleted = 1
	`, corpusID)
	if err := row.Scan(&deleted); err != nil {
		return 0, fmt.Errorf("counting deleted documents: %w", err)
	}
	return deleted, nil
}

// ListDocuments returns the corpus's documents ordered by relative path.
func (s *Store) ListDocuments(ctx context.Context, corpusID string, includeDeleted bool) ([]domain.DocumentInfo, error) {
	query := `
		SELECT id, relative_path, absolute_path, file_size, file_mtime, is_deleted
		FROM documents WHERE corpus_id = ?
	`
	if !includeDeleted {
		query += " AND is_deleted = 0"
	}
	query += " ORDER BY relative_path"

	rows, err := s.db.QueryContext(ctx, query, corpusID)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []domain.DocumentInfo //nolint:prealloc // size unknown from query
	for rows.Next() {
		var info domain.DocumentInfo
		var mtime sql.NullTime
		if err := rows.Scan(&info.ID, &info.RelativePath, &info.AbsolutePath,
			&info.FileSize, &mtime, &info.IsDeleted); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		if mtime.Valid {
			info.FileMtime = mtime.Time
		}
		docs = append(docs, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// GetDocument retrieves a full document by id.
func (s *Store) GetDocument(ctx context.Context, docID string) (*domain.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, corpus_id, relative_path, absolute_path, content,
			metadata, file_mtime, file_size, content_sha256, last_indexed_at, is_deleted
		FROM documents WHERE id = ?
	`, docID)

	var doc domain.Document
	var metadataJSON string
	var mtime, indexedAt sql.NullTime
	if err := row.Scan(&doc.ID, &doc.CorpusID, &doc.RelativePath, &doc.AbsolutePath, &doc.Content,
		&metadataJSON, &mtime, &doc.FileSize, &doc.ContentSHA256, &indexedAt, &doc.IsDeleted); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}
	if mtime.Valid {
		doc.FileMtime = mtime.Time
	}
	if indexedAt.Valid {
		doc.LastIndexedAt = indexedAt.Time
	}
	return &doc, nil
}

// CountChunks counts chunks belonging to active documents.
func (s *Store) CountChunks(ctx context.Context, corpusID string) (int, error) {
	var count int
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.corpus_id = ? AND d.is_deleted = 0
	`, corpusID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}

// StoreChunkEmbeddings bulk-stores embeddings for existing chunks.
func (s *Store) StoreChunkEmbeddings(ctx context.Context, corpusID string, pairs []driven.ChunkEmbedding) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, "UPDATE chunks SET embedding = ? WHERE id = ?")
	if err != nil {
		return 0, fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	var written int
	for _, pair := range pairs {
		res, err := stmt.ExecContext(ctx, float32SliceToBytes(pair.Embedding), pair.ChunkID)
		if err != nil {
			return 0, fmt.Errorf("storing embedding: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			written += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return written, nil
}

// ==================== Schemas ====================

// SaveSchema creates or updates a schema. Saving an active schema
// deactivates every other schema of the corpus in the same transaction.
func (s *Store) SaveSchema(ctx context.Context, schema *domain.Schema) (string, error) {
	if schema.ID == "" {
		schema.ID = domain.SchemaID(schema.CorpusID, schema.Name)
	}
	if schema.CreatedAt.IsZero() {
		schema.CreatedAt = time.Now().UTC()
	}

	fieldsJSON, err := json.Marshal(schema.Fields)
	if err != nil {
		return "", fmt.Errorf("marshalling fields: %w", err)
	}
	var profileJSON sql.NullString
	if schema.Profile != nil {
		raw, err := json.Marshal(schema.Profile)
		if err != nil {
			return "", fmt.Errorf("marshalling profile: %w", err)
		}
		profileJSON = sql.NullString{String: string(raw), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if schema.IsActive {
		_, err = tx.ExecContext(ctx, `
			UPDATE schemas SET is_active = 0 WHERE corpus_id = ? AND id != ?
		`, schema.CorpusID, schema.ID)
		if err != nil {
			return "", fmt.Errorf("deactivating sibling schemas: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO schemas (id, corpus_id, name, description, fields, profile, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			fields = excluded.fields,
			profile = excluded.profile,
			is_active = excluded.is_active
	`, schema.ID, schema.CorpusID, schema.Name, schema.Description,
		string(fieldsJSON), profileJSON, schema.IsActive, schema.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("saving schema: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing transaction: %w", err)
	}
	return schema.ID, nil
}

// GetActiveSchema returns the corpus's active schema.
func (s *Store) GetActiveSchema(ctx context.Context, corpusID string) (*domain.Schema, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, corpus_id, name, description, fields, profile, is_active, created_at
		FROM schemas WHERE corpus_id = ? AND is_active = 1
	`, corpusID)
	return scanSchema(row)
}

// GetSchemaByName fetches a schema by name.
func (s *Store) GetSchemaByName(ctx context.Context, corpusID, name string) (*domain.Schema, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, corpus_id, name, description, fields, profile, is_active, created_at
		FROM schemas WHERE corpus_id = ? AND name = ?
	`, corpusID, name)
	return scanSchema(row)
}

// ListSchemas returns all schemas for a corpus, newest first.
func (s *Store) ListSchemas(ctx context.Context, corpusID string) ([]domain.Schema, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, corpus_id, name, description, fields, profile, is_active, created_at
		FROM schemas WHERE corpus_id = ?
		ORDER BY created_at DESC, name
	`, corpusID)
	if err != nil {
		return nil, fmt.Errorf("querying schemas: %w", err)
	}
	defer rows.Close()

	var schemas []domain.Schema //nolint:prealloc // size unknown from query
	for rows.Next() {
		schema, err := scanSchemaRows(rows)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, *schema)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schemas: %w", err)
	}
	return schemas, nil
}

// scanSchema scans a single schema row.
func scanSchema(row *sql.Row) (*domain.Schema, error) {
	var schema domain.Schema
	var fieldsJSON string
	var profileJSON sql.NullString
	var createdAt sql.NullTime

	if err := row.Scan(&schema.ID, &schema.CorpusID, &schema.Name, &schema.Description,
		&fieldsJSON, &profileJSON, &schema.IsActive, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning schema: %w", err)
	}
	return decodeSchema(&schema, fieldsJSON, profileJSON, createdAt)
}

// scanSchemaRows scans a schema from *sql.Rows.
func scanSchemaRows(rows *sql.Rows) (*domain.Schema, error) {
	var schema domain.Schema
	var fieldsJSON string
	var profileJSON sql.NullString
	var createdAt sql.NullTime

	if err := rows.Scan(&schema.ID, &schema.CorpusID, &schema.Name, &schema.Description,
		&fieldsJSON, &profileJSON, &schema.IsActive, &createdAt); err != nil {
		return nil, fmt.Errorf("scanning schema: %w", err)
	}
	return decodeSchema(&schema, fieldsJSON, profileJSON, createdAt)
}

func decodeSchema(schema *domain.Schema, fieldsJSON string, profileJSON sql.NullString, createdAt sql.NullTime) (*domain.Schema, error) {
	if err := json.Unmarshal([]byte(fieldsJSON), &schema.Fields); err != nil {
		return nil, fmt.Errorf("unmarshaling fields: %w", err)
	}
	if profileJSON.Valid && profileJSON.String != "" {
		var profile domain.MetadataProfile
		if err := json.Unmarshal([]byte(profileJSON.String), &profile); err != nil {
			return nil, fmt.Errorf("unmarshaling profile: %w", err)
		}
		schema.Profile = &profile
	}
	if createdAt.Valid {
		schema.CreatedAt = createdAt.Time
	}
	return schema, nil
}
