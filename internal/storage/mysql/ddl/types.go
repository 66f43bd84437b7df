// Package ddl contains MySQL-specific helpers for generating DDL.
package ddl

import "bietl/internal/schema"

// MapType maps a logical column type into a MySQL column type. Text keys are
// bounded VARCHARs because MySQL cannot index an unbounded TEXT column.
func MapType(t schema.ColumnType, key bool) string {
	switch t {
	case schema.Text:
		if key {
			return "VARCHAR(255)"
		}
		return "TEXT"
	case schema.Date:
		return "DATE"
	case schema.DateTime:
		return "DATETIME"
	case schema.Bool:
		return "BOOLEAN"
	case schema.Int:
		return "BIGINT"
	case schema.Float:
		return "DOUBLE"
	default:
		return "TEXT"
	}
}
