// Package record models raw API records and the variant values found in them.
//
// Source APIs return loosely shaped JSON: optional nested objects, and
// custom-field values that may be absent, a single scalar, or a list of
// scalars. Value makes that shape explicit so normalization code can switch
// on Kind instead of probing dynamic types.
package record

import (
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Record is one decoded JSON object from an API page.
type Record map[string]any

// Kind tags a Value.
type Kind uint8

const (
	// Absent means the key was missing or null.
	Absent Kind = iota
	// Scalar is a string, number or boolean.
	Scalar
	// List is an array. Its elements are kept as raw decoded values.
	List
	// Object is a nested JSON object.
	Object
)

func (k Kind) String() string {
	switch k {
	case Absent:
		return "absent"
	case Scalar:
		return "scalar"
	case List:
		return "list"
	case Object:
		return "object"
	}
	return "unknown"
}

// Value is a tagged union over the shapes a JSON field can take.
type Value struct {
	kind Kind
	raw  any
}

// Of wraps a decoded JSON value.
func Of(v any) Value {
	switch t := v.(type) {
	case nil:
		return Value{}
	case []any:
		return Value{kind: List, raw: t}
	case map[string]any:
		return Value{kind: Object, raw: t}
	case Record:
		return Value{kind: Object, raw: map[string]any(t)}
	default:
		return Value{kind: Scalar, raw: t}
	}
}

// Kind returns the value's tag.
func (v Value) Kind() Kind { return v.kind }

// IsAbsent reports whether the value is missing or null.
func (v Value) IsAbsent() bool { return v.kind == Absent }

// Raw returns the decoded value as-is.
func (v Value) Raw() any { return v.raw }

// Items returns list elements; a scalar is a one-element list and absent is
// empty.
func (v Value) Items() []Value {
	switch v.kind {
	case List:
		in := v.raw.([]any)
		out := make([]Value, 0, len(in))
		for _, e := range in {
			out = append(out, Of(e))
		}
		return out
	case Absent:
		return nil
	default:
		return []Value{v}
	}
}

// Field returns a key of an object value; any other kind yields Absent.
func (v Value) Field(key string) Value {
	if v.kind != Object {
		return Value{}
	}
	return Of(v.raw.(map[string]any)[key])
}

// String renders the value for a text column: absent is "", a list is its
// non-absent elements joined with ", ", and a scalar is its textual form.
func (v Value) String() string {
	switch v.kind {
	case Absent:
		return ""
	case List:
		items := v.Items()
		parts := make([]string, 0, len(items))
		for _, it := range items {
			if it.IsAbsent() {
				continue
			}
			parts = append(parts, it.String())
		}
		return strings.Join(parts, ", ")
	case Object:
		b, err := json.Marshal(v.raw)
		if err != nil {
			return ""
		}
		return string(b)
	}
	return scalarString(v.raw)
}

// Bool returns the boolean held by a scalar. Strings "true"/"false" are
// accepted; anything else reports ok=false.
func (v Value) Bool() (b bool, ok bool) {
	if v.kind != Scalar {
		return false, false
	}
	switch t := v.raw.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return b, err == nil
	}
	return false, false
}

// Int returns the integer held by a scalar number or numeric string.
func (v Value) Int() (int64, bool) {
	if v.kind != Scalar {
		return 0, false
	}
	switch t := v.raw.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		if f, err := t.Float64(); err == nil && f == float64(int64(f)) {
			return int64(f), true
		}
	case float64:
		if t == float64(int64(t)) {
			return int64(t), true
		}
	case int:
		return int64(t), true
	case int64:
		return t, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	}
	return 0, false
}

// Float returns the float held by a scalar number or numeric string.
func (v Value) Float() (float64, bool) {
	if v.kind != Scalar {
		return 0, false
	}
	switch t := v.raw.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// Get walks path through nested objects. A missing key or a non-object along
// the way yields Absent.
func (r Record) Get(path ...string) Value {
	v := Of(map[string]any(r))
	for _, key := range path {
		v = v.Field(key)
		if v.IsAbsent() {
			return v
		}
	}
	return v
}
