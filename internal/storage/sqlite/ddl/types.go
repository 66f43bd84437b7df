// Package ddl provides SQLite-specific helpers for generating CREATE TABLE
// statements from table descriptors.
package ddl

import "bietl/internal/schema"

// MapType maps a logical column type onto a SQLite type affinity. Dates stay
// in their canonical text form so they sort and compare correctly.
func MapType(t schema.ColumnType, _ bool) string {
	switch t {
	case schema.Int, schema.Bool:
		return "INTEGER"
	case schema.Float:
		return "REAL"
	default:
		return "TEXT"
	}
}
