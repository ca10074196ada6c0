package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ValueKind discriminates the scalar variants a metadata value can hold.
type ValueKind uint8

// Value kinds. Metadata maps are constrained to these four scalar types,
// matching the declared field types of the active schema.
const (
	KindString ValueKind = iota
	KindInt
	KindFloat
	KindBool
)

// Value is a tagged scalar for document metadata. Fields are validated
// against the stored schema at write and read time, so a Value always
// carries exactly one of the four supported kinds.
type Value struct {
	kind ValueKind
	str  string
	num  int64
	flt  float64
	b    bool
}

// StringValue returns a string-kinded Value.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// IntValue returns an integer-kinded Value.
func IntValue(i int64) Value { return Value{kind: KindInt, num: i} }

// FloatValue returns a number-kinded Value.
func FloatValue(f float64) Value { return Value{kind: KindFloat, flt: f} }

// BoolValue returns a boolean-kinded Value.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind returns the value's scalar kind.
func (v Value) Kind() ValueKind { return v.kind }

// String renders the value as its canonical string form.
// Booleans render as "true"/"false".
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindFloat:
		return strconv.FormatFloat(v.flt, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return v.str
	}
}

// Float64 returns the numeric cast of the value and whether the cast is
// meaningful. Strings are parsed; booleans are not numeric.
func (v Value) Float64() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.num), true
	case KindFloat:
		return v.flt, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Bool returns the value's truthiness. Non-empty strings, non-zero
// numbers and true booleans are truthy.
func (v Value) Bool() bool {
	switch v.kind {
	case KindInt:
		return v.num != 0
	case KindFloat:
		return v.flt != 0
	case KindBool:
		return v.b
	default:
		return v.str != ""
	}
}

// IsZero reports whether the value equals its kind's default.
func (v Value) IsZero() bool {
	switch v.kind {
	case KindInt:
		return v.num == 0
	case KindFloat:
		return v.flt == 0
	case KindBool:
		return !v.b
	default:
		return v.str == ""
	}
}

// Coerce converts the value to the given field type, defensively.
// Non-numeric input coerces to 0/0.0; booleans coerce via truthiness.
func (v Value) Coerce(ft FieldType) Value {
	switch ft {
	case FieldBoolean:
		return BoolValue(v.Bool())
	case FieldInteger:
		if v.kind == KindBool {
			if v.b {
				return IntValue(1)
			}
			return IntValue(0)
		}
		f, ok := v.Float64()
		if !ok {
			return IntValue(0)
		}
		return IntValue(int64(f))
	case FieldNumber:
		if v.kind == KindBool {
			if v.b {
				return FloatValue(1)
			}
			return FloatValue(0)
		}
		f, ok := v.Float64()
		if !ok {
			return FloatValue(0)
		}
		return FloatValue(f)
	default:
		return StringValue(v.String())
	}
}

// DefaultValue returns the zero Value for a field type.
func DefaultValue(ft FieldType) Value {
	switch ft {
	case FieldBoolean:
		return BoolValue(false)
	case FieldInteger:
		return IntValue(0)
	case FieldNumber:
		return FloatValue(0)
	default:
		return StringValue("")
	}
}

// MarshalJSON renders the value as its underlying scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return json.Marshal(v.num)
	case KindFloat:
		return json.Marshal(v.flt)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return json.Marshal(v.str)
	}
}

// UnmarshalJSON infers the kind from the JSON token. Whole numbers
// decode as integers, other numbers as floats.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decoding metadata value: %w", err)
	}
	switch t := raw.(type) {
	case string:
		*v = StringValue(t)
	case bool:
		*v = BoolValue(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			*v = IntValue(i)
			return nil
		}
		f, err := t.Float64()
		if err != nil {
			return fmt.Errorf("decoding metadata number %q: %w", t.String(), err)
		}
		*v = FloatValue(f)
	case nil:
		*v = StringValue("")
	default:
		return fmt.Errorf("%w: unsupported metadata value %T", ErrInvalidInput, raw)
	}
	return nil
}

// Metadata maps field names to typed scalar values.
type Metadata map[string]Value
