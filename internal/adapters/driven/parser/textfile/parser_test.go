package textfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/corpora-cli/internal/core/domain"
)

func TestSupports(t *testing.T) {
	p := New()
	tests := []struct {
		path string
		want bool
	}{
		{"notes.txt", true},
		{"README.md", true},
		{"guide.MARKDOWN", true},
		{"data.csv", true},
		{"server.log", true},
		{"index.html", true},
		{"page.htm", true},
		{"doc.rst", true},
		{"photo.png", false},
		{"report.pdf", false},
		{"archive.tar.gz", false},
		{"noextension", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Supports(tt.path), tt.path)
	}
}

func TestParse_PlainText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello\nworld"), 0o644))

	content, err := New().Parse(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld", content)
}

func TestParse_RejectsInvalidUTF8(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "binary.txt")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xfe, 0x00, 0x01}, 0o644))

	_, err := New().Parse(context.Background(), path)
	assert.ErrorIs(t, err, domain.ErrParse)
}

func TestParse_RejectsUnsupportedExtension(t *testing.T) {
	_, err := New().Parse(context.Background(), "photo.png")
	assert.ErrorIs(t, err, domain.ErrParse)
}

func TestParse_MissingFile(t *testing.T) {
	_, err := New().Parse(context.Background(), filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, domain.ErrParse)
}

func TestParse_StripsHTML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.html")
	doc := `<html><head><title>ignored</title></head><body>
<!-- a comment -->
<script>var x = 1;</script>
<style>p { color: red; }</style>
<h1>Purchase Agreement</h1>
<p>Price is &amp; stays $45,000,000.</p>
<p>Second   paragraph<br>with a line break.</p>
</body></html>`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	content, err := New().Parse(context.Background(), path)
	require.NoError(t, err)

	assert.NotContains(t, content, "<")
	assert.NotContains(t, content, "ignored")
	assert.NotContains(t, content, "var x")
	assert.NotContains(t, content, "color: red")
	assert.NotContains(t, content, "a comment")

	assert.Contains(t, content, "Purchase Agreement")
	assert.Contains(t, content, "Price is & stays $45,000,000.")
	assert.Contains(t, content, "Second paragraph\nwith a line break.")

	// Block elements become paragraph breaks so the chunker can use them.
	assert.Contains(t, content, "Purchase Agreement\n\nPrice is")
}
