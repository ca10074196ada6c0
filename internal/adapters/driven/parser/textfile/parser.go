// Package textfile parses plain-text document formats from disk.
// HTML files are reduced to readable text; everything else is read
// verbatim.
package textfile

import (
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/corpora-cli/internal/core/domain"
	"github.com/custodia-labs/corpora-cli/internal/core/ports/driven"
)

var _ driven.Parser = (*Parser)(nil)

// supportedExtensions maps lowercased extensions to whether they need
// HTML stripping.
var supportedExtensions = map[string]bool{
	".txt":      false,
	".md":       false,
	".markdown": false,
	".rst":      false,
	".csv":      false,
	".log":      false,
	".html":     true,
	".htm":      true,
}

// Parser reads text-like files into plain text.
type Parser struct{}

// New creates a new text file parser.
func New() *Parser {
	return &Parser{}
}

// Supports reports whether the file's extension is a recognised text
// format.
func (p *Parser) Supports(path string) bool {
	_, ok := supportedExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Parse reads the file and returns its plain-text content. Binary or
// invalid UTF-8 content is rejected with an error wrapping ErrParse.
func (p *Parser) Parse(_ context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	isHTML, ok := supportedExtensions[ext]
	if !ok {
		return "", fmt.Errorf("%w: unsupported file type %q", domain.ErrParse, ext)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", domain.ErrParse, path, err)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8 text", domain.ErrParse, path)
	}

	content := string(raw)
	if isHTML {
		content = stripHTML(content)
	}
	return content, nil
}

// Pre-compiled regular expressions for HTML stripping.
var (
	scriptTag     = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag      = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	headTag       = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	htmlComments  = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockClose    = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)>`)
	brTags        = regexp.MustCompile(`(?i)<(?:br|hr)\s*/?>`)
	allTags       = regexp.MustCompile(`<[^>]+>`)
	multiSpaces   = regexp.MustCompile(`[ \t]+`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// stripHTML removes markup and extracts readable text, keeping blank
// lines between blocks so paragraph-aware chunking still finds
// boundaries.
func stripHTML(content string) string {
	content = scriptTag.ReplaceAllString(content, "")
	content = styleTag.ReplaceAllString(content, "")
	content = headTag.ReplaceAllString(content, "")
	content = htmlComments.ReplaceAllString(content, "")

	// Closing block elements become paragraph breaks.
	content = blockClose.ReplaceAllString(content, "\n\n")
	content = brTags.ReplaceAllString(content, "\n")
	content = allTags.ReplaceAllString(content, "")
	content = html.UnescapeString(content)

	content = multiSpaces.ReplaceAllString(content, " ")

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	content = strings.Join(lines, "\n")
	content = multiNewlines.ReplaceAllString(content, "\n\n")

	return strings.TrimSpace(content)
}
