package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Reserved metadata keys written by the ingestion pipeline.
// They always take precedence over caller-supplied keys with the same name.
const (
	MetaDocumentID  = "document_id"
	MetaChunkIndex  = "chunk_index"
	MetaTotalChunks = "total_chunks"
	MetaTitle       = "title"
)

// ValueKind identifies which scalar a MetadataValue holds.
type ValueKind int

// Metadata value kinds.
const (
	KindInvalid ValueKind = iota
	KindString
	KindNumber
	KindBool
)

// String returns the kind name.
func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "invalid"
	}
}

// MetadataValue is a closed union of the scalar types allowed in metadata.
// The zero value is invalid and never equal to anything.
type MetadataValue struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
}

// StringValue wraps a string.
func StringValue(s string) MetadataValue {
	return MetadataValue{kind: KindString, str: s}
}

// NumberValue wraps a number.
func NumberValue(n float64) MetadataValue {
	return MetadataValue{kind: KindNumber, num: n}
}

// IntValue wraps an integer as a number.
func IntValue(n int) MetadataValue {
	return NumberValue(float64(n))
}

// BoolValue wraps a boolean.
func BoolValue(b bool) MetadataValue {
	return MetadataValue{kind: KindBool, b: b}
}

// ParseValue infers a value from user text: "true"/"false" become booleans,
// numeric literals become numbers, anything else stays a string.
func ParseValue(s string) MetadataValue {
	switch s {
	case "true":
		return BoolValue(true)
	case "false":
		return BoolValue(false)
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(n, 0) && !math.IsNaN(n) {
		return NumberValue(n)
	}
	return StringValue(s)
}

// Kind returns the held scalar kind.
func (v MetadataValue) Kind() ValueKind {
	return v.kind
}

// IsValid returns true if the value holds a scalar.
func (v MetadataValue) IsValid() bool {
	return v.kind != KindInvalid
}

// Str returns the string and whether the value is a string.
func (v MetadataValue) Str() (string, bool) {
	return v.str, v.kind == KindString
}

// Number returns the number and whether the value is a number.
func (v MetadataValue) Number() (float64, bool) {
	return v.num, v.kind == KindNumber
}

// Int returns the number as an int when it is integral.
func (v MetadataValue) Int() (int, bool) {
	if v.kind != KindNumber || v.num != math.Trunc(v.num) {
		return 0, false
	}
	return int(v.num), true
}

// Bool returns the boolean and whether the value is a boolean.
func (v MetadataValue) Bool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// Equal reports whether both values have the same kind and value.
func (v MetadataValue) Equal(o MetadataValue) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindNumber:
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	default:
		return false
	}
}

// Any returns the underlying Go value (string, float64 or bool), or nil.
func (v MetadataValue) Any() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	default:
		return nil
	}
}

// String formats the value for display.
func (v MetadataValue) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// MarshalJSON encodes the value as a plain JSON scalar.
func (v MetadataValue) MarshalJSON() ([]byte, error) {
	if !v.IsValid() {
		return nil, fmt.Errorf("%w: invalid metadata value", ErrInvalidInput)
	}
	return json.Marshal(v.Any())
}

// UnmarshalJSON decodes a JSON string, number or boolean.
func (v *MetadataValue) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	switch t := raw.(type) {
	case string:
		*v = StringValue(t)
	case bool:
		*v = BoolValue(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		*v = NumberValue(n)
	default:
		return fmt.Errorf("%w: metadata values must be string, number or boolean, got %s",
			ErrInvalidInput, string(data))
	}
	return nil
}

// ValueOf converts a Go scalar into a MetadataValue.
// Returns ErrInvalidInput for unsupported types.
func ValueOf(x any) (MetadataValue, error) {
	switch t := x.(type) {
	case MetadataValue:
		return t, nil
	case string:
		return StringValue(t), nil
	case bool:
		return BoolValue(t), nil
	case int:
		return IntValue(t), nil
	case int32:
		return NumberValue(float64(t)), nil
	case int64:
		return NumberValue(float64(t)), nil
	case float32:
		return NumberValue(float64(t)), nil
	case float64:
		return NumberValue(t), nil
	default:
		return MetadataValue{}, fmt.Errorf("%w: unsupported metadata type %T", ErrInvalidInput, x)
	}
}

// Metadata maps keys to scalar values.
type Metadata map[string]MetadataValue

// Clone returns a shallow copy. A nil receiver yields an empty map.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Matches reports whether every pair in filter is present with an equal value.
func (m Metadata) Matches(filter Filter) bool {
	for k, want := range filter {
		got, ok := m[k]
		if !ok || !got.Equal(want) {
			return false
		}
	}
	return true
}

// String returns a string value for key.
func (m Metadata) String(key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	return v.Str()
}

// Int returns an integral number value for key.
func (m Metadata) Int(key string) (int, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	return v.Int()
}

// Filter is a metadata-equality predicate.
// A chunk matches when all pairs match; an empty filter matches everything.
type Filter map[string]MetadataValue

// DocumentFilter restricts matches to one document.
func DocumentFilter(documentID string) Filter {
	return Filter{MetaDocumentID: StringValue(documentID)}
}

// DocumentID returns the document id the filter pins, if any.
func (f Filter) DocumentID() (string, bool) {
	v, ok := f[MetaDocumentID]
	if !ok {
		return "", false
	}
	return v.Str()
}
