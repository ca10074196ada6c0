package driven

import "context"

// Parser converts a document file into plain text. Failures are
// reported as errors wrapping domain.ErrParse; the indexing pipeline
// counts them as skipped files and continues.
type Parser interface {
	// Supports reports whether the parser recognises the file's
	// extension.
	Supports(path string) bool

	// Parse returns the file's text content.
	Parse(ctx context.Context, path string) (string, error)
}
