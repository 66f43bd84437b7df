// Package ddl contains Postgres-specific helpers for generating DDL.
package ddl

import "bietl/internal/schema"

// MapType maps a logical column type onto a Postgres SQL type.
//
//	text     -> TEXT
//	date     -> DATE
//	datetime -> TIMESTAMP
//	bool     -> BOOLEAN
//	int      -> BIGINT
//	float    -> DOUBLE PRECISION
func MapType(t schema.ColumnType, _ bool) string {
	switch t {
	case schema.Date:
		return "DATE"
	case schema.DateTime:
		return "TIMESTAMP"
	case schema.Bool:
		return "BOOLEAN"
	case schema.Int:
		return "BIGINT"
	case schema.Float:
		return "DOUBLE PRECISION"
	default:
		return "TEXT"
	}
}
