package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilters_CombinedExpression(t *testing.T) {
	raw := "document_type=agreement and mentions_currency=true, file_size_bytes>=100, document_type in (agreement, report)"

	filters, err := ParseFilters(raw, nil)
	require.NoError(t, err)
	require.Len(t, filters, 4)

	assert.Equal(t, "document_type", filters[0].Field)
	assert.Equal(t, OpEq, filters[0].Op)
	assert.Equal(t, "agreement", filters[0].Value.String())

	assert.Equal(t, "mentions_currency", filters[1].Field)
	assert.Equal(t, OpEq, filters[1].Op)
	assert.Equal(t, KindBool, filters[1].Value.Kind())

	assert.Equal(t, "file_size_bytes", filters[2].Field)
	assert.Equal(t, OpGte, filters[2].Op)

	assert.Equal(t, "document_type", filters[3].Field)
	assert.Equal(t, OpIn, filters[3].Op)
	require.Len(t, filters[3].Values, 2)
	assert.Equal(t, "agreement", filters[3].Values[0].String())
	assert.Equal(t, "report", filters[3].Values[1].String())
}

func TestParseFilters_Empty(t *testing.T) {
	filters, err := ParseFilters("   ", nil)
	require.NoError(t, err)
	assert.Empty(t, filters)
}

func TestParseFilters_Operators(t *testing.T) {
	tests := []struct {
		raw string
		op  FilterOperator
	}{
		{"size=5", OpEq},
		{"size:5", OpEq},
		{"size!=5", OpNe},
		{"size>5", OpGt},
		{"size>=5", OpGte},
		{"size<5", OpLt},
		{"size<=5", OpLte},
		{"name~acme", OpContains},
	}
	for _, tt := range tests {
		filters, err := ParseFilters(tt.raw, nil)
		require.NoError(t, err, tt.raw)
		require.Len(t, filters, 1, tt.raw)
		assert.Equal(t, tt.op, filters[0].Op, tt.raw)
	}
}

func TestParseFilters_NumericOperatorRequiresNumber(t *testing.T) {
	_, err := ParseFilters("file_size_bytes>=large", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFilterParse)
}

func TestParseFilters_UnknownFieldListsAllowed(t *testing.T) {
	allowed := map[string]struct{}{"filename": {}, "document_type": {}}

	_, err := ParseFilters("missing=1", allowed)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFilterParse)
	assert.Contains(t, err.Error(), "document_type, filename")
}

func TestParseFilters_QuotedValueKeepsCase(t *testing.T) {
	filters, err := ParseFilters(`name="Acme, Inc"`, nil)
	require.NoError(t, err)
	require.Len(t, filters, 1)
	assert.Equal(t, "Acme, Inc", filters[0].Value.String())
}

func TestParseFilters_InListWithBrackets(t *testing.T) {
	filters, err := ParseFilters("ext in [.txt, .md]", nil)
	require.NoError(t, err)
	require.Len(t, filters, 1)
	assert.Equal(t, OpIn, filters[0].Op)
	assert.Len(t, filters[0].Values, 2)
}

func TestParseFilters_EmptyInList(t *testing.T) {
	_, err := ParseFilters("ext in ()", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFilterParse)
}

func TestParseFilters_InvalidSyntax(t *testing.T) {
	_, err := ParseFilters("just some words", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFilterParse)
}

func TestFilterMatches_TypeAware(t *testing.T) {
	meta := Metadata{
		"document_type":     StringValue("Agreement"),
		"file_size_bytes":   IntValue(2048),
		"confidence":        FloatValue(0.75),
		"mentions_currency": BoolValue(true),
	}

	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"eq case-insensitive", "document_type=AGREEMENT", true},
		{"eq mismatch", "document_type=report", false},
		{"ne", "document_type!=report", true},
		{"numeric gte", "file_size_bytes>=2048", true},
		{"numeric gt fails", "file_size_bytes>2048", false},
		{"float lt", "confidence<0.8", true},
		{"bool eq", "mentions_currency=true", true},
		{"bool ne literal", "mentions_currency=false", false},
		{"contains", "document_type~gree", true},
		{"in hit", "document_type in (report, agreement)", true},
		{"in miss", "document_type in (report, memo)", false},
		{"numeric in", "file_size_bytes in (1024, 2048)", true},
		{"missing field", "unknown=1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filters, err := ParseFilters(tt.raw, nil)
			require.NoError(t, err)
			require.Len(t, filters, 1)
			assert.Equal(t, tt.want, filters[0].Matches(meta))
		})
	}
}

func TestFilterMatches_NumericComparisonOnStringFails(t *testing.T) {
	meta := Metadata{"name": StringValue("acme")}

	filters, err := ParseFilters("name>10", nil)
	require.NoError(t, err)
	assert.False(t, filters[0].Matches(meta))
}
