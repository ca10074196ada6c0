package services

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/corpora-cli/internal/core/domain"
	"github.com/custodia-labs/corpora-cli/internal/core/ports/driven"
	"github.com/custodia-labs/corpora-cli/internal/logger"
)

// builtinSchemaFields are the field definitions every discovered schema
// starts from. They mirror the built-in metadata the indexing pipeline
// computes for each document.
func builtinSchemaFields() []domain.FieldDef {
	return []domain.FieldDef{
		{Name: "filename", Type: domain.FieldString, Required: true,
			Description: "Base name of the source file."},
		{Name: "relative_path", Type: domain.FieldString, Required: true,
			Description: "Path of the source file relative to the corpus root."},
		{Name: "extension", Type: domain.FieldString, Required: true,
			Description: "Lowercased file extension, including the dot."},
		{Name: "document_type", Type: domain.FieldString, Required: true,
			Description: "Document category inferred from the filename."},
		{Name: "file_size_bytes", Type: domain.FieldInteger, Required: true,
			Description: "Size of the source file in bytes."},
		{Name: "file_mtime", Type: domain.FieldNumber, Required: true,
			Description: "Modification time of the source file, seconds since the Unix epoch."},
		{Name: "mentions_currency", Type: domain.FieldBoolean, Required: false,
			Description: "Whether the document text contains a dollar amount."},
		{Name: "mentions_dates", Type: domain.FieldBoolean, Required: false,
			Description: "Whether the document text contains a recognizable date."},
	}
}

// SchemaDiscovery proposes metadata schemas by inspecting the files of
// a folder before indexing.
type SchemaDiscovery struct {
	parser   driven.Parser
	metadata *MetadataService
}

// NewSchemaDiscovery creates a schema discovery service.
func NewSchemaDiscovery(parser driven.Parser, metadata *MetadataService) *SchemaDiscovery {
	return &SchemaDiscovery{parser: parser, metadata: metadata}
}

// Discover proposes a schema for the folder: the built-in fields, a
// document_type enum observed from the folder's filenames, and, when
// metadata extraction is requested, the profile's fields and the
// profile itself. The schema is not persisted here.
func (s *SchemaDiscovery) Discover(ctx context.Context, corpusID, folder string, withMetadata bool, profile *domain.MetadataProfile) (*domain.Schema, error) {
	fields := builtinSchemaFields()

	types, err := s.observedDocumentTypes(folder)
	if err != nil {
		return nil, err
	}
	if len(types) > 0 {
		for i := range fields {
			if fields[i].Name == "document_type" {
				fields[i].Enum = types
			}
		}
	}

	schema := &domain.Schema{
		CorpusID:    corpusID,
		Name:        "auto_" + sanitizeSchemaName(filepath.Base(folder)),
		Description: "Schema discovered from " + folder,
		Fields:      fields,
		CreatedAt:   time.Now().UTC(),
	}
	schema.ID = domain.SchemaID(corpusID, schema.Name)

	if withMetadata {
		if profile == nil {
			profile = s.metadata.DiscoverProfile(ctx, folder, s.parser)
		} else {
			normalized, err := profile.WithRuntimeFields().Normalize()
			if err != nil {
				return nil, err
			}
			profile = normalized
		}
		schema.Profile = profile
		schema.Fields = append(schema.Fields, profile.SchemaFields()...)
		logger.Info("Discovered schema %q with profile %q (%d fields)", schema.Name, profile.Name, len(schema.Fields))
	} else {
		logger.Info("Discovered schema %q (%d fields)", schema.Name, len(schema.Fields))
	}
	return schema, nil
}

// observedDocumentTypes collects the sorted distinct document types
// inferred from the folder's parseable filenames.
func (s *SchemaDiscovery) observedDocumentTypes(folder string) ([]string, error) {
	files, err := supportedFiles(folder, s.parser)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(files))
	for _, path := range files {
		seen[InferDocumentType(path)] = struct{}{}
	}
	types := make([]string, 0, len(seen))
	for t := range seen {
		types = append(types, t)
	}
	sort.Strings(types)
	return types, nil
}

// sanitizeSchemaName lowercases the folder name and replaces anything
// outside [a-z0-9_] with underscores.
func sanitizeSchemaName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "corpus"
	}
	return b.String()
}
