package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultProfile_Normalizes(t *testing.T) {
	profile, err := DefaultProfile().Normalize()
	require.NoError(t, err)
	assert.Equal(t, "default_extraction", profile.Name)
	assert.NotEmpty(t, profile.Fields)
}

func TestNormalize_NilYieldsDefault(t *testing.T) {
	var p *MetadataProfile
	profile, err := p.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "default_extraction", profile.Name)
}

func TestNormalize_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		profile MetadataProfile
	}{
		{"no fields", MetadataProfile{Name: "p"}},
		{"bad field name", MetadataProfile{Fields: []ProfileField{
			{Name: "9bad", Source: SourceRuntime, Runtime: RuntimeEnabled},
		}}},
		{"bad type", MetadataProfile{Fields: []ProfileField{
			{Name: "f", Type: "decimal", Source: SourceRuntime, Runtime: RuntimeEnabled},
		}}},
		{"bad runtime kind", MetadataProfile{Fields: []ProfileField{
			{Name: "f", Source: SourceRuntime, Runtime: "uptime"},
		}}},
		{"entities without classes", MetadataProfile{Fields: []ProfileField{
			{Name: "f", Source: SourceEntities},
		}}},
		{"contains without terms", MetadataProfile{Fields: []ProfileField{
			{Name: "f", Source: SourceEntities, SourceClasses: []string{"term"}, Mode: ModeContains},
		}}},
		{"duplicate names", MetadataProfile{Fields: []ProfileField{
			{Name: "f", Source: SourceRuntime, Runtime: RuntimeEnabled},
			{Name: "f", Source: SourceRuntime, Runtime: RuntimeEnabled},
		}}},
		{"max_chars too small", MetadataProfile{MaxChars: 100, Fields: []ProfileField{
			{Name: "f", Source: SourceRuntime, Runtime: RuntimeEnabled},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.profile.Normalize()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrProfileInvalid)
		})
	}
}

func TestNormalize_ModeAliasesAndDefaults(t *testing.T) {
	profile := MetadataProfile{Fields: []ProfileField{
		{Name: "a", Type: FieldString, Source: SourceEntities, SourceClasses: []string{"org"}, Mode: "csv"},
		{Name: "b", Type: FieldInteger, Source: SourceEntities, SourceClasses: []string{"org"}},
		{Name: "c", Type: FieldBoolean, Source: SourceEntities, SourceClasses: []string{"org"}},
		{Name: "d", Type: FieldString, Source: SourceEntities, SourceClasses: []string{"org"}},
	}}

	normalized, err := profile.Normalize()
	require.NoError(t, err)
	assert.Equal(t, ModeValues, normalized.Fields[0].Mode)
	assert.Equal(t, ModeCount, normalized.Fields[1].Mode)
	assert.Equal(t, ModeExists, normalized.Fields[2].Mode)
	assert.Equal(t, ModeValues, normalized.Fields[3].Mode)
}

func TestWithRuntimeFields_MergesMissing(t *testing.T) {
	profile := &MetadataProfile{Fields: []ProfileField{
		{Name: "orgs", Type: FieldString, Source: SourceEntities, SourceClasses: []string{"organization"}},
	}}

	merged := profile.WithRuntimeFields()
	names := merged.FieldNames()
	assert.Contains(t, names, "ext_enabled")
	assert.Contains(t, names, "ext_extraction_count")
	assert.Contains(t, names, "ext_entity_classes")
	assert.Contains(t, names, "orgs")
}

func TestAggregate_RuntimeAndEntityFields(t *testing.T) {
	profile, err := DefaultProfile().Normalize()
	require.NoError(t, err)

	entities := []Entity{
		{Class: "Organization", Text: "Acme Corp"},
		{Class: "organization", Text: "acme corp"}, // case-insensitive dup
		{Class: "organization", Text: "Globex"},
		{Class: "money", Text: "$45,000,000"},
		{Class: "deal_term", Text: "Earnout clause"},
	}

	meta := profile.Aggregate(entities, true)

	assert.Equal(t, BoolValue(true), meta["ext_enabled"])
	assert.Equal(t, IntValue(5), meta["ext_extraction_count"])
	assert.Equal(t, "deal_term, money, organization", meta["ext_entity_classes"].String())
	assert.Equal(t, "Acme Corp, Globex", meta["ext_organizations"].String())
	assert.Equal(t, IntValue(1), meta["ext_money_mentions"])
	assert.Equal(t, BoolValue(true), meta["ext_has_earnout"])
	assert.Equal(t, BoolValue(false), meta["ext_has_escrow"])
}

func TestAggregate_ValuesCapped(t *testing.T) {
	profile, err := (&MetadataProfile{Fields: []ProfileField{
		{Name: "orgs", Type: FieldString, Source: SourceEntities, SourceClasses: []string{"org"}, Mode: ModeValues},
	}}).Normalize()
	require.NoError(t, err)

	entities := make([]Entity, 0, 20)
	for i := 0; i < 20; i++ {
		entities = append(entities, Entity{Class: "org", Text: strings.Repeat("x", i+1)})
	}

	meta := profile.Aggregate(entities, true)
	joined := meta["orgs"].String()
	assert.Len(t, strings.Split(joined, ", "), 16)
}

func TestDefaults_UsesTypeZeroValues(t *testing.T) {
	profile, err := DefaultProfile().Normalize()
	require.NoError(t, err)

	meta := profile.Defaults()
	assert.Equal(t, BoolValue(false), meta["ext_enabled"])
	assert.Equal(t, IntValue(0), meta["ext_extraction_count"])
	assert.Equal(t, StringValue(""), meta["ext_organizations"])
}
