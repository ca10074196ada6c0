package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/corpora-cli/internal/core/domain"
	"github.com/custodia-labs/corpora-cli/internal/core/ports/driven"
)

func TestInferDocumentType(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"acme_purchase_agreement.txt", "agreement"},
		{"q3_financial_report_final.md", "report"},
		{"Contract_v2.txt", "contract"},
		{"notes.txt", "notes"},
		{"2024.txt", "2024"},
		{"v1.txt", "v1"},
		{"deals/merger-memo-draft.txt", "memo"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InferDocumentType(tt.path), tt.path)
	}
}

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExtract_BuiltinFields(t *testing.T) {
	dir := t.TempDir()
	content := "Purchase price is $45,000,000 payable on 2024-03-01."
	path := writeTestFile(t, dir, "asset_purchase_agreement.txt", content)

	svc := NewMetadataService(nil, nil)
	meta, err := svc.Extract(context.Background(), ExtractInput{
		FilePath:     path,
		RootPath:     dir,
		RelativePath: "asset_purchase_agreement.txt",
		Content:      content,
	})
	require.NoError(t, err)

	assert.Equal(t, "asset_purchase_agreement.txt", meta["filename"].String())
	assert.Equal(t, "asset_purchase_agreement.txt", meta["relative_path"].String())
	assert.Equal(t, ".txt", meta["extension"].String())
	assert.Equal(t, "agreement", meta["document_type"].String())
	assert.Equal(t, domain.IntValue(int64(len(content))), meta["file_size_bytes"])
	assert.Equal(t, domain.BoolValue(true), meta["mentions_currency"])
	assert.Equal(t, domain.BoolValue(true), meta["mentions_dates"])
}

func TestExtract_NoCurrencyOrDates(t *testing.T) {
	dir := t.TempDir()
	content := "Plain meeting notes without numbers of interest."
	path := writeTestFile(t, dir, "notes.txt", content)

	svc := NewMetadataService(nil, nil)
	meta, err := svc.Extract(context.Background(), ExtractInput{
		FilePath:     path,
		RelativePath: "notes.txt",
		Content:      content,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.BoolValue(false), meta["mentions_currency"])
	assert.Equal(t, domain.BoolValue(false), meta["mentions_dates"])
}

func TestExtract_SchemaFiltersFields(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "a.txt", "content")

	schema := &domain.Schema{Fields: []domain.FieldDef{
		{Name: "filename", Type: domain.FieldString},
		{Name: "document_type", Type: domain.FieldString},
	}}

	svc := NewMetadataService(nil, nil)
	meta, err := svc.Extract(context.Background(), ExtractInput{
		FilePath:     path,
		RelativePath: "a.txt",
		Content:      "content",
		Schema:       schema,
	})
	require.NoError(t, err)

	assert.Len(t, meta, 2)
	assert.Contains(t, meta, "filename")
	assert.Contains(t, meta, "document_type")
	assert.NotContains(t, meta, "file_size_bytes")
}

// stubExtractor returns fixed entities or an error.
type stubExtractor struct {
	entities []domain.Entity
	err      error
	calls    int
}

func (s *stubExtractor) Extract(_ context.Context, _, _ string) ([]domain.Entity, error) {
	s.calls++
	return s.entities, s.err
}

func TestExtract_ProfileFieldsViaExtractor(t *testing.T) {
	dir := t.TempDir()
	content := "Acme Corp agreed to an earnout."
	path := writeTestFile(t, dir, "deal.txt", content)

	extractor := &stubExtractor{entities: []domain.Entity{
		{Class: "organization", Text: "Acme Corp"},
		{Class: "deal_term", Text: "earnout"},
	}}

	svc := NewMetadataService(extractor, nil)
	meta, err := svc.Extract(context.Background(), ExtractInput{
		FilePath:     path,
		RelativePath: "deal.txt",
		Content:      content,
		WithProfile:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.BoolValue(true), meta["ext_enabled"])
	assert.Equal(t, domain.IntValue(2), meta["ext_extraction_count"])
	assert.Equal(t, "Acme Corp", meta["ext_organizations"].String())
	assert.Equal(t, domain.BoolValue(true), meta["ext_has_earnout"])
	assert.Equal(t, 1, extractor.calls)
}

func TestExtract_ProfileFailureUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "deal.txt", "some content")

	extractor := &stubExtractor{err: domain.ErrExtractionUnavailable}
	svc := NewMetadataService(extractor, nil)

	meta, err := svc.Extract(context.Background(), ExtractInput{
		FilePath:     path,
		RelativePath: "deal.txt",
		Content:      "some content",
		WithProfile:  true,
	})
	require.NoError(t, err, "extraction failure is not fatal")

	assert.Equal(t, domain.BoolValue(false), meta["ext_enabled"])
	assert.Equal(t, domain.IntValue(0), meta["ext_extraction_count"])
}

func TestExtract_NoExtractorUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "deal.txt", "some content")

	svc := NewMetadataService(nil, nil)
	meta, err := svc.Extract(context.Background(), ExtractInput{
		FilePath:     path,
		RelativePath: "deal.txt",
		Content:      "some content",
		WithProfile:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.BoolValue(false), meta["ext_enabled"])
}

// stubGenerator returns a fixed profile proposal.
type stubGenerator struct {
	profile *domain.MetadataProfile
	err     error
	samples []driven.ProfileSample
}

func (s *stubGenerator) GenerateProfile(_ context.Context, samples []driven.ProfileSample) (*domain.MetadataProfile, error) {
	s.samples = samples
	return s.profile, s.err
}

// extParser parses any .txt file verbatim.
type extParser struct{}

func (extParser) Supports(path string) bool { return filepath.Ext(path) == ".txt" }
func (extParser) Parse(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	return string(data), err
}

func TestDiscoverProfile_UsesGeneratorAndMergesRuntime(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "a.txt", "alpha document")
	writeTestFile(t, dir, "b.txt", "beta document")

	gen := &stubGenerator{profile: &domain.MetadataProfile{
		Name: "deals",
		Fields: []domain.ProfileField{
			{Name: "parties", Type: domain.FieldString, Source: domain.SourceEntities, SourceClasses: []string{"organization"}},
		},
	}}

	svc := NewMetadataService(nil, gen)
	profile := svc.DiscoverProfile(context.Background(), dir, extParser{})

	require.NotNil(t, profile)
	assert.Equal(t, "deals", profile.Name)
	names := profile.FieldNames()
	assert.Contains(t, names, "parties")
	assert.Contains(t, names, "ext_enabled")
	assert.NotEmpty(t, gen.samples)
}

func TestDiscoverProfile_FallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "a.txt", "alpha document")

	gen := &stubGenerator{err: domain.ErrExtractionUnavailable}
	svc := NewMetadataService(nil, gen)

	profile := svc.DiscoverProfile(context.Background(), dir, extParser{})
	require.NotNil(t, profile)
	assert.Equal(t, "default_extraction", profile.Name)
}
