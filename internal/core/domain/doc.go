// Package domain defines the core business entities for Corpora.
//
// This package is part of the hexagonal architecture's innermost layer.
// It defines the fundamental types:
//
//   - Corpus: One indexed root folder
//   - Document: An indexed document with typed metadata
//   - Chunk: A searchable span within a document
//   - Schema: The metadata field definitions recognised for a corpus
//   - MetadataProfile: How entity extractions become metadata fields
//   - Filter: A parsed metadata filter condition
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. All other packages depend on
// domain, never the reverse. The only external import is the uuid
// library used for deterministic id derivation.
package domain
