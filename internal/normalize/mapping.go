// Package normalize turns raw API records into fixed-arity relational rows.
//
// A dataset declares its row shape once as an ordered list of Rules; each
// rule names a destination column and an Extractor that reads the value from
// the record. Normalization is total: a missing or malformed field never
// aborts a record. It becomes the column's default ("" for text, NULL for
// dates and numbers) and unparseable values are reported as Warnings.
package normalize

import (
	"fmt"

	"bietl/internal/record"
)

// Row is one normalized tuple, in Mapping.Columns order. Cells are string,
// bool, int64, float64 or nil.
type Row []any

// Input is what an Extractor sees: the record and its custom-field index.
type Input struct {
	Record record.Record
	Custom record.CustomFieldIndex
}

// Extractor reads one column value. A non-nil error means the source value
// was present but unusable; the cell becomes nil and a Warning is recorded.
type Extractor func(in Input) (any, error)

// Rule binds a destination column to an extractor.
type Rule struct {
	Column  string
	Extract Extractor
}

// Warning describes a value that could not be normalized.
type Warning struct {
	Column  string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Column, w.Message)
}

// Mapping is the declarative row shape of a dataset.
type Mapping struct {
	Rules []Rule

	// CustomFields, when set, builds a CustomFieldIndex per record.
	CustomFields *record.CustomFieldSpec
}

// Columns returns the destination column names in row order.
func (m Mapping) Columns() []string {
	cols := make([]string, len(m.Rules))
	for i, r := range m.Rules {
		cols[i] = r.Column
	}
	return cols
}

// Normalize maps one record to a row of len(m.Rules) cells.
func (m Mapping) Normalize(r record.Record) (Row, []Warning) {
	in := Input{Record: r}
	if m.CustomFields != nil {
		in.Custom = record.BuildIndex(r, *m.CustomFields)
	}

	row := make(Row, len(m.Rules))
	var warns []Warning
	for i, rule := range m.Rules {
		v, err := rule.Extract(in)
		if err != nil {
			warns = append(warns, Warning{Column: rule.Column, Message: err.Error()})
			v = nil
		}
		row[i] = v
	}
	return row, warns
}

// NormalizeAll maps every record, preserving order.
func (m Mapping) NormalizeAll(recs []record.Record) ([]Row, []Warning) {
	rows := make([]Row, 0, len(recs))
	var warns []Warning
	for _, r := range recs {
		row, w := m.Normalize(r)
		rows = append(rows, row)
		warns = append(warns, w...)
	}
	return rows, warns
}
