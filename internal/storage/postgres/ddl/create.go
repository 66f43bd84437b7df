package ddl

import (
	"strings"

	gddl "bietl/internal/ddl"
	"bietl/internal/schema"
)

// QuoteIdent quotes a single identifier segment for Postgres, e.g.:
//
//	QuoteIdent(`deals`)      => `"deals"`
//	QuoteIdent(`weird"name`) => `"weird""name"`
func QuoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// Dialect is the Postgres rendering of the generic DDL model.
var Dialect = gddl.Dialect{QuoteIdent: QuoteIdent, IfNotExists: true}

// BuildCreateTableSQL returns a CREATE TABLE IF NOT EXISTS statement for t.
// Names may be schema-qualified ("analytics.ph_overview").
func BuildCreateTableSQL(t schema.Table) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	return gddl.BuildCreateTableSQL(t.Def(MapType), Dialect)
}
