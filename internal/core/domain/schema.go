package domain

import "time"

// FieldType enumerates the scalar types a metadata field may declare.
type FieldType string

// Supported metadata field types.
const (
	FieldString  FieldType = "string"
	FieldInteger FieldType = "integer"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
)

// Valid reports whether the field type is one of the supported types.
func (t FieldType) Valid() bool {
	switch t {
	case FieldString, FieldInteger, FieldNumber, FieldBoolean:
		return true
	}
	return false
}

// FieldDef describes one metadata field recognised by a schema.
type FieldDef struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description,omitempty"`

	// Enum optionally records the distinct values observed at discovery
	// time, for filter-syntax discoverability.
	Enum []string `json:"enum,omitempty"`
}

// Schema is the set of metadata field definitions for a corpus.
// At most one schema per corpus is active at a time; activating one
// deactivates its siblings.
type Schema struct {
	// ID is derived from (corpus id, name).
	ID string

	// CorpusID links to the owning Corpus.
	CorpusID string

	// Name identifies the schema within its corpus.
	Name string

	// Description is a short human-readable summary.
	Description string

	// Fields are the recognised metadata field definitions.
	Fields []FieldDef

	// Profile is the optional metadata extraction profile recorded on
	// the schema for reuse across indexing runs.
	Profile *MetadataProfile

	// IsActive marks the schema currently used for the corpus.
	IsActive bool

	// CreatedAt is when the schema row was first saved.
	CreatedAt time.Time
}

// FieldNames returns the set of field names defined by the schema.
// A nil schema has no fields.
func (s *Schema) FieldNames() map[string]struct{} {
	if s == nil {
		return nil
	}
	names := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		names[f.Name] = struct{}{}
	}
	return names
}

// FieldType returns the declared type for a field name, if defined.
func (s *Schema) FieldType(name string) (FieldType, bool) {
	if s == nil {
		return "", false
	}
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return "", false
}
