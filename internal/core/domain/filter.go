package domain

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// FilterOperator enumerates the normalized metadata filter operators.
type FilterOperator string

// Filter operators.
const (
	OpEq       FilterOperator = "eq"
	OpNe       FilterOperator = "ne"
	OpGt       FilterOperator = "gt"
	OpGte      FilterOperator = "gte"
	OpLt       FilterOperator = "lt"
	OpLte      FilterOperator = "lte"
	OpIn       FilterOperator = "in"
	OpContains FilterOperator = "contains"
)

// Filter is one normalized metadata filter condition.
type Filter struct {
	Field string
	Op    FilterOperator

	// Value holds the comparison literal for scalar operators.
	Value Value

	// Values holds the candidate list for OpIn.
	Values []Value
}

var (
	filterFieldRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	filterInRe    = regexp.MustCompile(`(?i)^([A-Za-z_][A-Za-z0-9_]*)\s+in\s+(.+)$`)
	filterOpRe    = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*(<=|>=|!=|=|<|>|~|:)\s*(.+)$`)
	numberRe      = regexp.MustCompile(`^-?\d+(?:\.\d+)?$`)
)

var symbolOperators = map[string]FilterOperator{
	"=":  OpEq,
	":":  OpEq,
	"!=": OpNe,
	">":  OpGt,
	">=": OpGte,
	"<":  OpLt,
	"<=": OpLte,
	"~":  OpContains,
}

// SupportedFilterSyntax returns a short help text for the filter DSL.
func SupportedFilterSyntax() string {
	return "Supported filter syntax: " +
		"`field=value`, `field!=value`, `field>=number`, `field<=number`, " +
		"`field>number`, `field<number`, `field in (a, b, c)`, `field~substring`; " +
		"combine with comma or `and`."
}

// ParseFilters parses a raw filter string into an ordered list of
// normalized conditions. When allowedFields is non-nil, unknown field
// names are rejected with a diagnostic naming the allowed set. All
// errors wrap ErrFilterParse.
func ParseFilters(raw string, allowedFields map[string]struct{}) ([]Filter, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	conditions := splitConditions(raw)
	parsed := make([]Filter, 0, len(conditions))
	for _, condition := range conditions {
		f, err := parseCondition(condition, allowedFields)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, f)
	}
	return parsed, nil
}

func parseCondition(condition string, allowedFields map[string]struct{}) (Filter, error) {
	text := strings.TrimSpace(condition)
	if text == "" {
		return Filter{}, fmt.Errorf("%w: empty filter condition", ErrFilterParse)
	}

	if m := filterInRe.FindStringSubmatch(text); m != nil {
		field := m[1]
		if err := validateField(field, allowedFields); err != nil {
			return Filter{}, err
		}
		values, err := parseListValue(m[2])
		if err != nil {
			return Filter{}, err
		}
		if len(values) == 0 {
			return Filter{}, fmt.Errorf("%w: `in` filter has no values: %q", ErrFilterParse, text)
		}
		return Filter{Field: field, Op: OpIn, Values: values}, nil
	}

	m := filterOpRe.FindStringSubmatch(text)
	if m == nil {
		return Filter{}, fmt.Errorf("%w: invalid filter syntax: %q", ErrFilterParse, text)
	}

	field, symbol, rawValue := m[1], m[2], m[3]
	if err := validateField(field, allowedFields); err != nil {
		return Filter{}, err
	}
	value, err := parseScalarValue(rawValue)
	if err != nil {
		return Filter{}, err
	}

	op := symbolOperators[symbol]
	if isNumericOp(op) && value.Kind() != KindInt && value.Kind() != KindFloat {
		return Filter{}, fmt.Errorf("%w: operator `%s` requires a numeric value: %q", ErrFilterParse, symbol, text)
	}
	return Filter{Field: field, Op: op, Value: value}, nil
}

func isNumericOp(op FilterOperator) bool {
	switch op {
	case OpGt, OpGte, OpLt, OpLte:
		return true
	}
	return false
}

func validateField(field string, allowedFields map[string]struct{}) error {
	if !filterFieldRe.MatchString(field) {
		return fmt.Errorf("%w: invalid field name %q", ErrFilterParse, field)
	}
	if allowedFields == nil {
		return nil
	}
	if _, ok := allowedFields[field]; !ok {
		names := make([]string, 0, len(allowedFields))
		for name := range allowedFields {
			names = append(names, name)
		}
		sort.Strings(names)
		allowed := "<none>"
		if len(names) > 0 {
			allowed = strings.Join(names, ", ")
		}
		return fmt.Errorf("%w: unknown metadata field %q, allowed fields: %s", ErrFilterParse, field, allowed)
	}
	return nil
}

// splitConditions splits on top-level `,` and the word `and`. Commas and
// `and` inside quotes, parentheses or brackets do not split.
func splitConditions(raw string) []string {
	var parts []string
	var current strings.Builder
	var quote byte
	parenDepth, bracketDepth := 0, 0

	flush := func() {
		if text := strings.TrimSpace(current.String()); text != "" {
			parts = append(parts, text)
		}
		current.Reset()
	}

	for i := 0; i < len(raw); i++ {
		ch := raw[i]

		if quote != 0 {
			current.WriteByte(ch)
			if ch == quote {
				quote = 0
			}
			continue
		}

		switch ch {
		case '\'', '"':
			quote = ch
			current.WriteByte(ch)
			continue
		case '(':
			parenDepth++
			current.WriteByte(ch)
			continue
		case ')':
			if parenDepth > 0 {
				parenDepth--
			}
			current.WriteByte(ch)
			continue
		case '[':
			bracketDepth++
			current.WriteByte(ch)
			continue
		case ']':
			if bracketDepth > 0 {
				bracketDepth--
			}
			current.WriteByte(ch)
			continue
		}

		if parenDepth == 0 && bracketDepth == 0 {
			if ch == ',' {
				flush()
				continue
			}
			if wordAndAt(raw, i) {
				flush()
				i += 2
				continue
			}
		}
		current.WriteByte(ch)
	}
	flush()
	return parts
}

// wordAndAt reports whether the standalone word "and" starts at i.
func wordAndAt(raw string, i int) bool {
	if i+3 > len(raw) || !strings.EqualFold(raw[i:i+3], "and") {
		return false
	}
	if i > 0 && !isSpace(raw[i-1]) {
		return false
	}
	return i+3 == len(raw) || isSpace(raw[i+3])
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func parseListValue(rawValue string) ([]Value, error) {
	text := strings.TrimSpace(rawValue)
	switch {
	case strings.HasPrefix(text, "(") && strings.HasSuffix(text, ")"):
		text = text[1 : len(text)-1]
	case strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]"):
		text = text[1 : len(text)-1]
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	items := splitConditions(text)
	values := make([]Value, 0, len(items))
	for _, item := range items {
		v, err := parseScalarValue(item)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func parseScalarValue(rawValue string) (Value, error) {
	text := strings.TrimSpace(rawValue)
	if text == "" {
		return Value{}, fmt.Errorf("%w: missing filter value", ErrFilterParse)
	}

	if len(text) >= 2 {
		if (text[0] == '\'' && text[len(text)-1] == '\'') ||
			(text[0] == '"' && text[len(text)-1] == '"') {
			return StringValue(text[1 : len(text)-1]), nil
		}
	}

	switch strings.ToLower(text) {
	case "true":
		return BoolValue(true), nil
	case "false":
		return BoolValue(false), nil
	}

	if numberRe.MatchString(text) {
		if strings.Contains(text, ".") {
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return Value{}, fmt.Errorf("%w: invalid number %q", ErrFilterParse, text)
			}
			return FloatValue(f), nil
		}
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: invalid number %q", ErrFilterParse, text)
		}
		return IntValue(i), nil
	}
	return StringValue(text), nil
}

// Matches evaluates the condition against a document's metadata with
// type-aware comparison. A missing field never matches.
func (f Filter) Matches(meta Metadata) bool {
	stored, ok := meta[f.Field]
	if !ok {
		return false
	}

	switch f.Op {
	case OpGt, OpGte, OpLt, OpLte:
		sv, sok := stored.Float64()
		wv, wok := f.Value.Float64()
		if !sok || !wok {
			return false
		}
		switch f.Op {
		case OpGt:
			return sv > wv
		case OpGte:
			return sv >= wv
		case OpLt:
			return sv < wv
		default:
			return sv <= wv
		}
	case OpNe:
		return !valuesEqual(stored, f.Value)
	case OpContains:
		return strings.Contains(strings.ToLower(stored.String()), strings.ToLower(f.Value.String()))
	case OpIn:
		for _, candidate := range f.Values {
			if valuesEqual(stored, candidate) {
				return true
			}
		}
		return false
	default:
		return valuesEqual(stored, f.Value)
	}
}

// valuesEqual implements the type-aware equality of eq/ne/in: numeric
// literals compare as doubles, booleans by their normalized form, and
// everything else by case-insensitive string form.
func valuesEqual(stored, want Value) bool {
	switch want.Kind() {
	case KindInt, KindFloat:
		sv, ok := stored.Float64()
		if !ok {
			return false
		}
		wv, _ := want.Float64()
		return sv == wv
	default:
		return strings.EqualFold(stored.String(), want.String())
	}
}
