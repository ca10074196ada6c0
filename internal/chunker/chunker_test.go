package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/corpora-cli/internal/core/domain"
)

func TestNew_ValidatesParameters(t *testing.T) {
	_, err := New(0, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = New(100, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = New(100, 100)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	c, err := New(100, 10)
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestChunk_EmptyInput(t *testing.T) {
	c := Default()
	assert.Nil(t, c.Chunk(""))
	assert.Nil(t, c.Chunk("   \n\t  "))
}

func TestChunk_ShortTextSingleChunk(t *testing.T) {
	c := Default()
	chunks := c.Chunk("A short document.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "A short document.", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Position)
	assert.Equal(t, 0, chunks[0].StartChar)
	assert.Equal(t, len("A short document."), chunks[0].EndChar)
}

func TestChunk_OverlapInvariant(t *testing.T) {
	c, err := New(100, 20)
	require.NoError(t, err)

	text := strings.Repeat("abcdefghij", 50) // 500 chars, no paragraph breaks
	chunks := c.Chunk(text)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1].EndChar-20, chunks[i].StartChar,
			"each chunk must start overlap chars before the previous end")
	}
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Position)
		assert.Greater(t, chunk.EndChar, chunk.StartChar)
	}
	assert.Equal(t, len(text), chunks[len(chunks)-1].EndChar)
}

func TestChunk_PrefersParagraphBreak(t *testing.T) {
	c, err := New(100, 10)
	require.NoError(t, err)

	// Paragraph break at offset 80, inside the second half of the first
	// 100-char window.
	para1 := strings.Repeat("a", 80)
	para2 := strings.Repeat("b", 120)
	text := para1 + "\n\n" + para2

	chunks := c.Chunk(text)
	require.Greater(t, len(chunks), 1)
	assert.Equal(t, para1, chunks[0].Text)
	assert.Equal(t, 82, chunks[0].EndChar, "cut lands just after the paragraph break")
}

func TestChunk_Deterministic(t *testing.T) {
	c := Default()
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 200)

	first := c.Chunk(text)
	second := c.Chunk(text)
	assert.Equal(t, first, second)
}

func TestChunk_TrimsWhitespaceOnlySpans(t *testing.T) {
	c, err := New(10, 2)
	require.NoError(t, err)

	chunks := c.Chunk("abcde")
	require.Len(t, chunks, 1)
	assert.Equal(t, "abcde", chunks[0].Text)
}
