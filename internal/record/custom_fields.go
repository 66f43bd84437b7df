package record

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CustomFieldIndex maps a normalized custom-field label to its value.
type CustomFieldIndex map[string]Value

// CustomFieldSpec says where custom fields live inside a record.
type CustomFieldSpec struct {
	// ListKey is the top-level key holding the list of entries.
	ListKey string
	// LabelPath is the path to the label inside each entry.
	LabelPath []string
	// ValueKey is the key holding the entry's value.
	ValueKey string
}

// NormalizeLabel canonicalizes a label for lookups: Unicode NFC and trimmed
// surrounding whitespace, so "Número Proposta " and a decomposed "Número
// Proposta" resolve to the same entry.
func NormalizeLabel(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// BuildIndex indexes the custom fields of r in one pass. Entries without a
// label are skipped; when a label repeats the later entry wins.
func BuildIndex(r Record, spec CustomFieldSpec) CustomFieldIndex {
	list := r.Get(spec.ListKey)
	if list.Kind() != List {
		return CustomFieldIndex{}
	}
	items := list.Items()
	idx := make(CustomFieldIndex, len(items))
	for _, entry := range items {
		label := entry
		for _, k := range spec.LabelPath {
			label = label.Field(k)
		}
		if label.Kind() != Scalar {
			continue
		}
		key := NormalizeLabel(label.String())
		if key == "" {
			continue
		}
		idx[key] = entry.Field(spec.ValueKey)
	}
	return idx
}

// Lookup returns the value for label, or Absent.
func (idx CustomFieldIndex) Lookup(label string) Value {
	return idx[NormalizeLabel(label)]
}
