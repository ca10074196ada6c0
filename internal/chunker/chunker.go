// Package chunker splits document text into overlapping,
// paragraph-aware spans with source offsets.
package chunker

import (
	"fmt"
	"strings"

	"github.com/custodia-labs/corpora-cli/internal/core/domain"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1500

// DefaultOverlap is the default number of overlapping characters.
const DefaultOverlap = 150

// paragraphBreak is the boundary the chunker prefers to cut on.
const paragraphBreak = "\n\n"

// Chunker produces deterministic chunk boundaries: identical input and
// parameters always yield identical chunks.
type Chunker struct {
	chunkSize int
	overlap   int
}

// New creates a chunker. Parameters must satisfy 0 < overlap < chunkSize.
func New(chunkSize, overlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be > 0", domain.ErrInvalidInput)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must be >= 0", domain.ErrInvalidInput)
	}
	if overlap >= chunkSize {
		return nil, fmt.Errorf("%w: overlap must be smaller than chunk size", domain.ErrInvalidInput)
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}, nil
}

// Default returns a chunker with the default parameters.
func Default() *Chunker {
	c, _ := New(DefaultChunkSize, DefaultOverlap)
	return c
}

// Chunk splits text into ordered spans, preferring paragraph boundaries
// over hard cuts. Offsets refer to the whitespace-trimmed text. Empty or
// whitespace-only input yields no chunks.
func (c *Chunker) Chunk(text string) []domain.Chunk {
	normalized := strings.TrimSpace(text)
	if normalized == "" {
		return nil
	}

	total := len(normalized)
	chunks := make([]domain.Chunk, 0, total/(c.chunkSize-c.overlap)+1)

	start := 0
	position := 0
	for start < total {
		end := start + c.chunkSize
		if end > total {
			end = total
		}

		if end < total {
			// Prefer the last paragraph break in the second half of the
			// window; fall back to a hard cut.
			floor := start + c.chunkSize/2
			if boundary := strings.LastIndex(normalized[floor:end], paragraphBreak); boundary != -1 {
				end = floor + boundary + len(paragraphBreak)
			}
		}

		if span := strings.TrimSpace(normalized[start:end]); span != "" {
			chunks = append(chunks, domain.Chunk{
				Text:      span,
				Position:  position,
				StartChar: start,
				EndChar:   end,
			})
			position++
		}

		if end >= total {
			break
		}
		start = end - c.overlap
		if start < 0 {
			start = 0
		}
	}
	return chunks
}
