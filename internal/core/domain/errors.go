package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	// Read paths return this rather than raising on missing rows.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrParse indicates a file could not be parsed into text.
	// The indexing pipeline counts these as skipped and continues.
	ErrParse = errors.New("parse failed")

	// ErrFilterParse indicates malformed filter DSL or an unknown field.
	// Raised to the search caller with a diagnostic; no partial results.
	ErrFilterParse = errors.New("filter parse error")

	// ErrProfileInvalid indicates a malformed metadata profile.
	// Raised synchronously before any writes for an indexing run.
	ErrProfileInvalid = errors.New("invalid metadata profile")

	// ErrEmbeddingUnavailable indicates the embedding service is not
	// configured. Semantic search degrades to keyword search.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrExtractionUnavailable indicates the entity extraction service is
	// not configured. Profile fields fall back to their default values.
	ErrExtractionUnavailable = errors.New("entity extraction unavailable")
)
