package normalize

import (
	"fmt"
	"strings"

	"bietl/internal/record"
)

// Field returns the text at path; absent yields "".
func Field(path ...string) Extractor {
	return func(in Input) (any, error) {
		return in.Record.Get(path...).String(), nil
	}
}

// NullableField returns the text at path; absent yields nil.
func NullableField(path ...string) Extractor {
	return func(in Input) (any, error) {
		v := in.Record.Get(path...)
		if v.IsAbsent() {
			return nil, nil
		}
		return v.String(), nil
	}
}

// Bool passes a boolean through; absent yields nil.
func Bool(path ...string) Extractor {
	return func(in Input) (any, error) {
		v := in.Record.Get(path...)
		if v.IsAbsent() {
			return nil, nil
		}
		b, ok := v.Bool()
		if !ok {
			return nil, fmt.Errorf("not a boolean: %q", v.String())
		}
		return b, nil
	}
}

// Int returns an integer; absent yields nil.
func Int(path ...string) Extractor {
	return func(in Input) (any, error) {
		v := in.Record.Get(path...)
		if v.IsAbsent() {
			return nil, nil
		}
		n, ok := v.Int()
		if !ok {
			return nil, fmt.Errorf("not an integer: %q", v.String())
		}
		return n, nil
	}
}

// Float returns a float; absent yields nil.
func Float(path ...string) Extractor {
	return func(in Input) (any, error) {
		v := in.Record.Get(path...)
		if v.IsAbsent() {
			return nil, nil
		}
		f, ok := v.Float()
		if !ok {
			return nil, fmt.Errorf("not a number: %q", v.String())
		}
		return f, nil
	}
}

// Date converts the text at path to YYYY-MM-DD; absent or empty yields nil.
func Date(path ...string) Extractor {
	return func(in Input) (any, error) {
		return dateCell(in.Record.Get(path...), ConvertDate)
	}
}

// DateTime converts the text at path to YYYY-MM-DD HH:MM:SS (UTC).
func DateTime(path ...string) Extractor {
	return func(in Input) (any, error) {
		return dateCell(in.Record.Get(path...), ConvertDateTime)
	}
}

// Custom returns a custom field's text; lists are joined with ", " and a
// missing label yields "".
func Custom(label string) Extractor {
	return func(in Input) (any, error) {
		return in.Custom.Lookup(label).String(), nil
	}
}

// CustomDate converts a custom field to YYYY-MM-DD; missing yields nil.
func CustomDate(label string) Extractor {
	return func(in Input) (any, error) {
		return dateCell(in.Custom.Lookup(label), ConvertDate)
	}
}

// Pluck joins field of every object in the list at listPath with ", ".
// An absent or empty list yields nil.
func Pluck(listPath []string, field string) Extractor {
	return func(in Input) (any, error) {
		var parts []string
		for _, it := range in.Record.Get(listPath...).Items() {
			if s := it.Field(field).String(); s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) == 0 {
			return nil, nil
		}
		return strings.Join(parts, ", "), nil
	}
}

func dateCell(v record.Value, conv func(string) (string, bool)) (any, error) {
	if v.IsAbsent() {
		return nil, nil
	}
	s := strings.TrimSpace(v.String())
	if s == "" {
		return nil, nil
	}
	out, ok := conv(s)
	if !ok {
		return nil, fmt.Errorf("unparseable date %q", s)
	}
	return out, nil
}
