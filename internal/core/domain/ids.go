package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Fixed namespaces for deterministic id derivation. Ids must be stable
// across reindexes so upserts replace rows in place rather than duplicate.
var (
	nsCorpus = uuid.MustParse("9f2c1a4e-52b3-4f0e-8d44-7c6a1e0b9d21")
	nsDoc    = uuid.MustParse("c4d8e7a2-1b5f-4a93-b0c6-2e9d8f3a5b14")
	nsChunk  = uuid.MustParse("7a1b3c5d-9e2f-4816-a4d0-6b8c0e2f4a62")
	nsSchema = uuid.MustParse("2e6f8a0c-4d1b-4397-9c5e-8a0b2d4f6c18")
)

// CorpusID derives the stable corpus id from a resolved root path.
func CorpusID(rootPath string) string {
	return "corpus_" + uuid.NewSHA1(nsCorpus, []byte(rootPath)).String()
}

// DocumentID derives the stable document id from corpus id and the
// document's path relative to the corpus root.
func DocumentID(corpusID, relativePath string) string {
	return "doc_" + uuid.NewSHA1(nsDoc, []byte(corpusID+":"+relativePath)).String()
}

// ChunkID derives the stable chunk id from the parent document id and
// the chunk's position and source offsets.
func ChunkID(docID string, position, startChar, endChar int) string {
	key := fmt.Sprintf("%s:%d:%d:%d", docID, position, startChar, endChar)
	return "chunk_" + uuid.NewSHA1(nsChunk, []byte(key)).String()
}

// SchemaID derives the stable schema id from corpus id and schema name.
func SchemaID(corpusID, name string) string {
	return "schema_" + uuid.NewSHA1(nsSchema, []byte(corpusID+":"+name)).String()
}
