package domain

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// FieldSource says where a profile field's value comes from.
type FieldSource string

// Profile field sources.
const (
	// SourceRuntime fields report the outcome of the extraction call itself.
	SourceRuntime FieldSource = "runtime"

	// SourceEntities fields aggregate extracted text spans by class.
	SourceEntities FieldSource = "entities"
)

// RuntimeKind selects which extraction outcome a runtime field reports.
type RuntimeKind string

// Runtime field kinds.
const (
	RuntimeEnabled         RuntimeKind = "enabled"
	RuntimeExtractionCount RuntimeKind = "extraction_count"
	RuntimeEntityClasses   RuntimeKind = "entity_classes"
)

// FieldMode selects how an entity field aggregates its matched spans.
type FieldMode string

// Entity aggregation modes.
const (
	// ModeValues joins deduplicated matched spans with ", ".
	ModeValues FieldMode = "values"

	// ModeCount counts matched spans.
	ModeCount FieldMode = "count"

	// ModeExists reports whether any span matched.
	ModeExists FieldMode = "exists"

	// ModeContains reports whether any matched span contains one of the
	// field's ContainsAny terms, case-insensitively.
	ModeContains FieldMode = "contains"
)

// modeAliases maps accepted mode spellings to canonical modes.
var modeAliases = map[string]FieldMode{
	"csv":          ModeValues,
	"list":         ModeValues,
	"joined":       ModeValues,
	"join":         ModeValues,
	"values":       ModeValues,
	"count":        ModeCount,
	"exists":       ModeExists,
	"contains":     ModeContains,
	"contains_any": ModeContains,
}

// maxJoinedValues caps the items joined by ModeValues fields.
const maxJoinedValues = 16

// MinProfileMaxChars is the smallest allowed extraction character budget.
const MinProfileMaxChars = 500

var fieldNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ProfileField is one declared metadata field of a profile.
type ProfileField struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Description string    `json:"description,omitempty"`

	Source FieldSource `json:"source"`

	// Runtime is set for runtime-sourced fields.
	Runtime RuntimeKind `json:"runtime,omitempty"`

	// SourceClasses are the case-folded entity classes an entities-sourced
	// field aggregates over.
	SourceClasses []string `json:"source_classes,omitempty"`

	// Mode is the aggregation mode for entities-sourced fields.
	Mode FieldMode `json:"mode,omitempty"`

	// ContainsAny holds the lowercased search terms for ModeContains.
	ContainsAny []string `json:"contains_any,omitempty"`
}

// Entity is one typed text span returned by the extraction collaborator.
type Entity struct {
	Class string `json:"class"`
	Text  string `json:"text"`
}

// MetadataProfile specifies how extracted entities become structured
// metadata fields. Profiles are data, not behaviour: the same profile is
// reusable across documents and corpora, and round-trips through JSON.
type MetadataProfile struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Prompt is the instruction text passed to the extraction model.
	Prompt string `json:"prompt_description,omitempty"`

	// MaxChars optionally overrides the extraction character budget.
	MaxChars int `json:"max_chars,omitempty"`

	Fields []ProfileField `json:"fields"`
}

const defaultPrompt = "Extract key transaction metadata from business and deal documents. " +
	"Use extraction classes: organization, person, money, date, deal_term. " +
	"Use exact spans from the source text and avoid paraphrasing."

// DefaultProfile returns the built-in extraction profile used when no
// user-supplied or discovered profile is available.
func DefaultProfile() *MetadataProfile {
	return &MetadataProfile{
		Name:        "default_extraction",
		Description: "Default metadata extraction profile for business and deal-style documents.",
		Prompt:      defaultPrompt,
		Fields: []ProfileField{
			{Name: "ext_enabled", Type: FieldBoolean, Description: "Whether metadata extraction succeeded.",
				Source: SourceRuntime, Runtime: RuntimeEnabled},
			{Name: "ext_extraction_count", Type: FieldInteger, Description: "Number of entities extracted from the document.",
				Source: SourceRuntime, Runtime: RuntimeExtractionCount},
			{Name: "ext_entity_classes", Type: FieldString, Description: "Comma-separated extraction classes seen in the document.",
				Source: SourceRuntime, Runtime: RuntimeEntityClasses},
			{Name: "ext_organizations", Type: FieldString, Description: "Comma-separated organization names.",
				Source: SourceEntities, SourceClasses: []string{"organization", "company", "party"}, Mode: ModeValues},
			{Name: "ext_people", Type: FieldString, Description: "Comma-separated person names.",
				Source: SourceEntities, SourceClasses: []string{"person", "individual", "executive"}, Mode: ModeValues},
			{Name: "ext_deal_terms", Type: FieldString, Description: "Comma-separated deal terms.",
				Source: SourceEntities, SourceClasses: []string{"deal_term", "term", "provision"}, Mode: ModeValues},
			{Name: "ext_money_mentions", Type: FieldInteger, Description: "Count of monetary amount entities.",
				Source: SourceEntities, SourceClasses: []string{"money", "amount", "currency"}, Mode: ModeCount},
			{Name: "ext_date_mentions", Type: FieldInteger, Description: "Count of date entities.",
				Source: SourceEntities, SourceClasses: []string{"date"}, Mode: ModeCount},
			{Name: "ext_has_earnout", Type: FieldBoolean, Description: "Whether extracted deal terms indicate an earnout.",
				Source: SourceEntities, SourceClasses: []string{"deal_term", "term", "provision"}, Mode: ModeContains, ContainsAny: []string{"earnout"}},
			{Name: "ext_has_escrow", Type: FieldBoolean, Description: "Whether extracted deal terms indicate escrow.",
				Source: SourceEntities, SourceClasses: []string{"deal_term", "term", "provision"}, Mode: ModeContains, ContainsAny: []string{"escrow"}},
		},
	}
}

// Normalize validates the profile and returns a normalized copy.
// A nil receiver normalizes to the default profile. All errors wrap
// ErrProfileInvalid.
func (p *MetadataProfile) Normalize() (*MetadataProfile, error) {
	if p == nil {
		return DefaultProfile().Normalize()
	}

	out := &MetadataProfile{
		Name:        strings.TrimSpace(p.Name),
		Description: strings.TrimSpace(p.Description),
		Prompt:      strings.TrimSpace(p.Prompt),
		MaxChars:    p.MaxChars,
	}
	if out.Name == "" {
		out.Name = "metadata_profile"
	}
	if out.Description == "" {
		out.Description = "User-defined metadata extraction profile."
	}
	if out.Prompt == "" {
		out.Prompt = defaultPrompt
	}
	if out.MaxChars != 0 && out.MaxChars < MinProfileMaxChars {
		return nil, fmt.Errorf("%w: max_chars must be >= %d", ErrProfileInvalid, MinProfileMaxChars)
	}

	if len(p.Fields) == 0 {
		return nil, fmt.Errorf("%w: profile must include a non-empty fields list", ErrProfileInvalid)
	}

	seen := make(map[string]struct{}, len(p.Fields))
	out.Fields = make([]ProfileField, 0, len(p.Fields))
	for i, f := range p.Fields {
		norm, err := normalizeField(i, f)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[norm.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate field name %q", ErrProfileInvalid, norm.Name)
		}
		seen[norm.Name] = struct{}{}
		out.Fields = append(out.Fields, norm)
	}
	return out, nil
}

func normalizeField(idx int, f ProfileField) (ProfileField, error) {
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return ProfileField{}, fmt.Errorf("%w: field at index %d is missing a name", ErrProfileInvalid, idx)
	}
	if !fieldNameRe.MatchString(name) {
		return ProfileField{}, fmt.Errorf("%w: invalid field name %q, use letters, numbers and underscores", ErrProfileInvalid, name)
	}

	ft := FieldType(strings.ToLower(strings.TrimSpace(string(f.Type))))
	if ft == "" {
		ft = FieldString
	}
	if !ft.Valid() {
		return ProfileField{}, fmt.Errorf("%w: field %q has invalid type %q, allowed: string, integer, number, boolean",
			ErrProfileInvalid, name, f.Type)
	}

	desc := strings.TrimSpace(f.Description)
	if desc == "" {
		desc = fmt.Sprintf("Metadata field %q.", name)
	}

	src := FieldSource(strings.ToLower(strings.TrimSpace(string(f.Source))))
	if src == "" {
		src = SourceEntities
	}

	norm := ProfileField{
		Name:        name,
		Type:        ft,
		Required:    f.Required,
		Description: desc,
		Source:      src,
	}

	switch src {
	case SourceRuntime:
		rt := RuntimeKind(strings.ToLower(strings.TrimSpace(string(f.Runtime))))
		switch rt {
		case RuntimeEnabled, RuntimeExtractionCount, RuntimeEntityClasses:
			norm.Runtime = rt
		default:
			return ProfileField{}, fmt.Errorf("%w: field %q has invalid runtime kind %q, allowed: enabled, entity_classes, extraction_count",
				ErrProfileInvalid, name, f.Runtime)
		}
		return norm, nil

	case SourceEntities:
		classes := dedupeLower(f.SourceClasses)
		if len(classes) == 0 {
			return ProfileField{}, fmt.Errorf("%w: field %q requires source_classes for entity extraction", ErrProfileInvalid, name)
		}
		norm.SourceClasses = classes

		mode, err := normalizeMode(f.Mode, ft)
		if err != nil {
			return ProfileField{}, fmt.Errorf("%w: field %q: %v", ErrProfileInvalid, name, err)
		}
		norm.Mode = mode

		if mode == ModeContains {
			terms := dedupeLower(f.ContainsAny)
			if len(terms) == 0 {
				return ProfileField{}, fmt.Errorf("%w: field %q with mode contains requires a contains_any list",
					ErrProfileInvalid, name)
			}
			norm.ContainsAny = terms
		}
		return norm, nil

	default:
		return ProfileField{}, fmt.Errorf("%w: field %q has invalid source %q, use runtime or entities",
			ErrProfileInvalid, name, f.Source)
	}
}

func normalizeMode(m FieldMode, ft FieldType) (FieldMode, error) {
	raw := strings.ToLower(strings.TrimSpace(string(m)))
	if raw == "" {
		// Default mode follows the declared type.
		switch ft {
		case FieldBoolean:
			return ModeExists, nil
		case FieldInteger, FieldNumber:
			return ModeCount, nil
		default:
			return ModeValues, nil
		}
	}
	mode, ok := modeAliases[raw]
	if !ok {
		return "", fmt.Errorf("unsupported mode %q, allowed: contains, count, exists, values", raw)
	}
	return mode, nil
}

func dedupeLower(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		s := strings.ToLower(strings.TrimSpace(item))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// WithRuntimeFields returns a copy of the profile with the default
// runtime fields prepended when missing. Runtime fields are always
// force-merged into discovered or user-supplied profiles.
func (p *MetadataProfile) WithRuntimeFields() *MetadataProfile {
	if p == nil {
		return DefaultProfile()
	}
	existing := make(map[string]struct{}, len(p.Fields))
	for _, f := range p.Fields {
		existing[f.Name] = struct{}{}
	}

	var missing []ProfileField
	for _, f := range DefaultProfile().Fields {
		if f.Source != SourceRuntime {
			continue
		}
		if _, ok := existing[f.Name]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return p
	}

	out := *p
	out.Fields = append(missing, p.Fields...)
	return &out
}

// Defaults returns the per-type default value for every profile field.
// Extraction failures report these values with enabled=false.
func (p *MetadataProfile) Defaults() Metadata {
	meta := make(Metadata, len(p.Fields))
	for _, f := range p.Fields {
		meta[f.Name] = DefaultValue(f.Type)
	}
	return meta
}

// Aggregate folds extracted entities into metadata values per the
// profile's field definitions. The enabled flag records whether the
// extraction call itself succeeded.
func (p *MetadataProfile) Aggregate(entities []Entity, enabled bool) Metadata {
	classes := make(map[string]struct{})
	byClass := make(map[string][]string)
	for _, e := range entities {
		class := strings.ToLower(strings.TrimSpace(e.Class))
		if class == "" {
			continue
		}
		classes[class] = struct{}{}
		if text := strings.TrimSpace(e.Text); text != "" {
			byClass[class] = append(byClass[class], text)
		}
	}

	meta := make(Metadata, len(p.Fields))
	for _, f := range p.Fields {
		var v Value
		switch f.Source {
		case SourceRuntime:
			v = runtimeValue(f, enabled, len(entities), classes)
		default:
			var matched []string
			for _, class := range f.SourceClasses {
				matched = append(matched, byClass[class]...)
			}
			v = entityValue(f, matched)
		}
		meta[f.Name] = v.Coerce(f.Type)
	}
	return meta
}

func runtimeValue(f ProfileField, enabled bool, count int, classes map[string]struct{}) Value {
	switch f.Runtime {
	case RuntimeEnabled:
		return BoolValue(enabled)
	case RuntimeExtractionCount:
		return IntValue(int64(count))
	case RuntimeEntityClasses:
		names := make([]string, 0, len(classes))
		for class := range classes {
			names = append(names, class)
		}
		sort.Strings(names)
		return StringValue(strings.Join(names, ", "))
	default:
		return DefaultValue(f.Type)
	}
}

func entityValue(f ProfileField, matched []string) Value {
	switch f.Mode {
	case ModeCount:
		return IntValue(int64(len(matched)))
	case ModeExists:
		return BoolValue(len(matched) > 0)
	case ModeContains:
		for _, value := range matched {
			lowered := strings.ToLower(value)
			for _, term := range f.ContainsAny {
				if strings.Contains(lowered, term) {
					return BoolValue(true)
				}
			}
		}
		return BoolValue(false)
	default:
		return StringValue(strings.Join(dedupeSpans(matched), ", "))
	}
}

// dedupeSpans removes case-insensitive duplicates while preserving the
// first-seen spelling and order, capped at maxJoinedValues items.
func dedupeSpans(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		key := strings.TrimSpace(value)
		if key == "" {
			continue
		}
		lower := strings.ToLower(key)
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, key)
		if len(out) >= maxJoinedValues {
			break
		}
	}
	return out
}

// SchemaFields returns the schema field definitions contributed by the
// profile's fields.
func (p *MetadataProfile) SchemaFields() []FieldDef {
	fields := make([]FieldDef, 0, len(p.Fields))
	for _, f := range p.Fields {
		fields = append(fields, FieldDef{
			Name:        f.Name,
			Type:        f.Type,
			Required:    f.Required,
			Description: f.Description,
		})
	}
	return fields
}

// FieldNames returns the set of field names declared by the profile.
func (p *MetadataProfile) FieldNames() map[string]struct{} {
	names := make(map[string]struct{}, len(p.Fields))
	for _, f := range p.Fields {
		names[f.Name] = struct{}{}
	}
	return names
}
