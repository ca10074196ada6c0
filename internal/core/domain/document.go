package domain

import "time"

// Corpus is one indexed root folder. Its id is derived deterministically
// from the resolved root path; a corpus is created on first index and
// never deleted.
type Corpus struct {
	// ID is the stable corpus identifier.
	ID string

	// RootPath is the resolved absolute path of the indexed folder.
	RootPath string

	// CreatedAt is when the corpus was first indexed.
	CreatedAt time.Time
}

// Document is an indexed file within a corpus. Document ids are stable
// across reindexes; a file that disappears from its folder is soft
// deleted, never removed.
type Document struct {
	// ID is derived from (corpus id, relative path).
	ID string

	// CorpusID links to the owning Corpus.
	CorpusID string

	// RelativePath is the path relative to the corpus root.
	RelativePath string

	// AbsolutePath is the resolved filesystem path.
	AbsolutePath string

	// Content is the full parsed text of the document.
	Content string

	// Metadata holds the typed field values constrained by the active schema.
	Metadata Metadata

	// FileMtime is the source file's modification time.
	FileMtime time.Time

	// FileSize is the source file's size in bytes.
	FileSize int64

	// ContentSHA256 is the hex digest of Content, kept for change detection.
	ContentSHA256 string

	// LastIndexedAt is when the document was last written by an indexing pass.
	LastIndexedAt time.Time

	// IsDeleted marks a document absent from the latest scan of its corpus.
	IsDeleted bool
}

// Chunk is a contiguous span of a document's text, the atomic unit of
// lexical and semantic retrieval. On each reindex of a document its
// chunks are replaced wholesale.
type Chunk struct {
	// ID is derived from (document id, position, start, end).
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Text is the trimmed chunk content.
	Text string

	// Position is the 0-based ordinal within the document.
	Position int

	// StartChar and EndChar are byte offsets into the parsed content,
	// with EndChar > StartChar.
	StartChar int
	EndChar   int

	// Embedding is the optional vector representation.
	Embedding []float32
}

// DocumentInfo is the listing row for a document, without content.
type DocumentInfo struct {
	ID           string
	RelativePath string
	AbsolutePath string
	FileSize     int64
	FileMtime    time.Time
	IsDeleted    bool
}

// ChunkHit is a ranked chunk returned by keyword or semantic search.
type ChunkHit struct {
	ChunkID      string
	DocID        string
	RelativePath string
	AbsolutePath string
	Position     int
	Text         string

	// Score is the keyword token-match count or the cosine similarity,
	// depending on which search produced the hit.
	Score float64
}

// MetadataHit is a document returned by metadata-filtered search.
type MetadataHit struct {
	DocID        string
	RelativePath string
	AbsolutePath string

	// Preview is a short prefix of the document content, used as
	// placeholder text when the document has no semantic hit.
	Preview string

	// MetadataScore is the number of filter conditions the document matched.
	MetadataScore int
}

// IndexSummary is the outcome of one indexing run over a folder.
type IndexSummary struct {
	CorpusID          string `json:"corpus_id"`
	IndexedFiles      int    `json:"indexed_files"`
	SkippedFiles      int    `json:"skipped_files"`
	DeletedFiles      int    `json:"deleted_files"`
	ChunksWritten     int    `json:"chunks_written"`
	ActiveDocuments   int    `json:"active_documents"`
	SchemaUsed        string `json:"schema_used,omitempty"`
	EmbeddingsWritten int    `json:"embeddings_written"`
}
