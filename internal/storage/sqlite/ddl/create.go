package ddl

import (
	"strings"

	gddl "bietl/internal/ddl"
	"bietl/internal/schema"
)

// QuoteIdent double-quotes an identifier, doubling embedded quotes.
func QuoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// Dialect is the SQLite rendering of the generic DDL model.
var Dialect = gddl.Dialect{QuoteIdent: QuoteIdent, IfNotExists: true}

// BuildCreateTableSQL returns CREATE TABLE IF NOT EXISTS for t.
func BuildCreateTableSQL(t schema.Table) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	return gddl.BuildCreateTableSQL(t.Def(MapType), Dialect)
}
