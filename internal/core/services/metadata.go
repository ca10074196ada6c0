package services

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/custodia-labs/corpora-cli/internal/core/domain"
	"github.com/custodia-labs/corpora-cli/internal/core/ports/driven"
	"github.com/custodia-labs/corpora-cli/internal/logger"
)

// DefaultExtractionMaxChars is the default character budget handed to
// the entity extraction collaborator.
const DefaultExtractionMaxChars = 6000

var (
	currencyRe = regexp.MustCompile(`\$\s?\d[\d,]*(?:\.\d+)?`)
	dateRe     = regexp.MustCompile(`(?i)\b(?:\d{4}-\d{2}-\d{2}|(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\s+\d{1,2},\s+\d{4})\b`)
	docTypeRe  = regexp.MustCompile(`[a-z0-9]+`)
)

// docTypeStopwords are filename tokens that never make a useful
// document type.
var docTypeStopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {},
	"copy": {}, "draft": {}, "final": {}, "version": {},
	"v1": {}, "v2": {}, "v3": {}, "new": {}, "old": {}, "tmp": {}, "temp": {},
}

// InferDocumentType infers a generic document category from filename
// tokens: the last token of the stem that is not a stopword, not
// numeric, and longer than two characters; else the last token; else
// "document".
func InferDocumentType(path string) string {
	stem := strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	tokens := docTypeRe.FindAllString(stem, -1)

	var filtered []string
	for _, token := range tokens {
		if len(token) <= 2 || isNumeric(token) {
			continue
		}
		if _, stop := docTypeStopwords[token]; stop {
			continue
		}
		filtered = append(filtered, token)
	}
	if len(filtered) > 0 {
		return filtered[len(filtered)-1]
	}
	if len(tokens) > 0 {
		return tokens[len(tokens)-1]
	}
	return "document"
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

// MetadataService builds document metadata: built-in fields derived
// from the file and content, plus optional profile-driven fields from
// the entity extraction collaborator.
type MetadataService struct {
	extractor driven.EntityExtractor
	generator driven.ProfileGenerator
	maxChars  int
}

// NewMetadataService creates a metadata service. Both collaborators are
// optional; when absent, profile fields report their defaults.
func NewMetadataService(extractor driven.EntityExtractor, generator driven.ProfileGenerator) *MetadataService {
	return &MetadataService{
		extractor: extractor,
		generator: generator,
		maxChars:  DefaultExtractionMaxChars,
	}
}

// SetMaxChars overrides the default extraction character budget.
func (m *MetadataService) SetMaxChars(n int) {
	if n >= domain.MinProfileMaxChars {
		m.maxChars = n
	}
}

// ExtractInput carries everything metadata extraction needs for one
// document. Extraction is a pure function of this input, which is what
// makes the per-document extraction tasks order-independent.
type ExtractInput struct {
	FilePath     string
	RootPath     string
	RelativePath string
	Content      string
	Schema       *domain.Schema
	WithProfile  bool

	// Profile overrides the schema's recorded profile when set.
	Profile *domain.MetadataProfile
}

// Extract builds the metadata map for one document. When the schema
// defines fields, only those keys are emitted.
func (m *MetadataService) Extract(ctx context.Context, in ExtractInput) (domain.Metadata, error) {
	info, err := os.Stat(in.FilePath)
	if err != nil {
		return nil, err
	}

	meta := domain.Metadata{
		"filename":          domain.StringValue(filepath.Base(in.FilePath)),
		"relative_path":     domain.StringValue(in.RelativePath),
		"extension":         domain.StringValue(strings.ToLower(filepath.Ext(in.FilePath))),
		"document_type":     domain.StringValue(InferDocumentType(in.FilePath)),
		"file_size_bytes":   domain.IntValue(info.Size()),
		"file_mtime":        domain.FloatValue(float64(info.ModTime().UnixNano()) / 1e9),
		"mentions_currency": domain.BoolValue(currencyRe.MatchString(in.Content)),
		"mentions_dates":    domain.BoolValue(dateRe.MatchString(in.Content)),
	}

	if in.WithProfile {
		profile := in.Profile
		if profile == nil && in.Schema != nil {
			profile = in.Schema.Profile
		}
		for name, value := range m.extractProfileFields(ctx, in.Content, profile) {
			meta[name] = value
		}
	}

	allowed := in.Schema.FieldNames()
	if len(allowed) == 0 {
		return meta, nil
	}
	for name := range meta {
		if _, ok := allowed[name]; !ok {
			delete(meta, name)
		}
	}
	return meta, nil
}

// extractProfileFields runs profile-driven extraction. It is always
// best-effort: a missing extractor, an empty snippet or a failed call
// all yield the profile's defaults with enabled=false.
func (m *MetadataService) extractProfileFields(ctx context.Context, content string, profile *domain.MetadataProfile) domain.Metadata {
	normalized, err := profile.Normalize()
	if err != nil {
		// Profile validity is checked before the run starts; treat a
		// late failure like an unavailable extractor.
		logger.Warn("Profile normalization failed during extraction: %v", err)
		normalized, _ = domain.DefaultProfile().Normalize()
	}

	if m.extractor == nil {
		return normalized.Defaults()
	}

	budget := m.maxChars
	if normalized.MaxChars > 0 {
		budget = normalized.MaxChars
	}
	snippet := content
	if len(snippet) > budget {
		snippet = snippet[:budget]
	}
	if strings.TrimSpace(snippet) == "" {
		return normalized.Defaults()
	}

	entities, err := m.extractor.Extract(ctx, snippet, normalized.Prompt)
	if err != nil {
		logger.Warn("Entity extraction failed, using profile defaults: %v", err)
		return normalized.Defaults()
	}
	return normalized.Aggregate(entities, true)
}

// profileSampleCount is how many parsed documents auto-discovery samples.
const profileSampleCount = 3

// profileSnippetChars is the excerpt length per sampled document.
const profileSnippetChars = 2000

// DiscoverProfile asks the profile generator to propose a profile from
// an even sample of the folder's parseable files. Any failure falls
// back to the built-in default profile. Runtime fields are always
// force-merged into the result.
func (m *MetadataService) DiscoverProfile(ctx context.Context, folder string, parser driven.Parser) *domain.MetadataProfile {
	fallback, _ := domain.DefaultProfile().Normalize()
	if m.generator == nil || parser == nil {
		return fallback
	}

	files, err := supportedFiles(folder, parser)
	if err != nil || len(files) == 0 {
		return fallback
	}

	n := profileSampleCount
	if len(files) < n {
		n = len(files)
	}
	step := len(files) / n
	if step < 1 {
		step = 1
	}

	samples := make([]driven.ProfileSample, 0, n)
	for i := 0; i < n; i++ {
		path := files[i*step]
		text, err := parser.Parse(ctx, path)
		if err != nil {
			continue
		}
		if len(text) > profileSnippetChars {
			text = text[:profileSnippetChars]
		}
		samples = append(samples, driven.ProfileSample{
			Filename: filepath.Base(path),
			Snippet:  text,
		})
	}
	if len(samples) == 0 {
		return fallback
	}

	proposed, err := m.generator.GenerateProfile(ctx, samples)
	if err != nil {
		logger.Warn("Profile auto-discovery failed, using default profile: %v", err)
		return fallback
	}
	normalized, err := proposed.WithRuntimeFields().Normalize()
	if err != nil {
		logger.Warn("Discovered profile failed validation, using default profile: %v", err)
		return fallback
	}
	return normalized
}

// supportedFiles walks root and returns the sorted absolute paths of
// every file the parser recognises.
func supportedFiles(root string, parser driven.Parser) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if parser.Supports(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// WalkDir visits lexically, so files are already sorted.
	return files, nil
}
