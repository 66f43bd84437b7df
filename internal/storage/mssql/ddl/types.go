// Package ddl contains MSSQL-specific helpers for generating DDL.
//
// It maps logical column types into SQL Server types. The mapping is
// intentionally conservative and biased toward widely-supported choices.
package ddl

import "bietl/internal/schema"

// MapType maps a logical column type into a SQL Server column type. Key text
// columns are bounded because index keys cannot be NVARCHAR(MAX).
func MapType(t schema.ColumnType, key bool) string {
	switch t {
	case schema.Date:
		return "DATE"
	case schema.DateTime:
		return "DATETIME2"
	case schema.Bool:
		return "BIT"
	case schema.Int:
		return "BIGINT"
	case schema.Float:
		return "FLOAT"
	default:
		if key {
			return "NVARCHAR(450)"
		}
		return "NVARCHAR(MAX)"
	}
}
