package ddl

import (
	"strings"

	gddl "bietl/internal/ddl"
	"bietl/internal/schema"
)

// QuoteIdent backtick-quotes an identifier, doubling embedded backticks.
func QuoteIdent(id string) string {
	return "`" + strings.ReplaceAll(id, "`", "``") + "`"
}

// Dialect is the MySQL rendering of the generic DDL model.
var Dialect = gddl.Dialect{QuoteIdent: QuoteIdent, IfNotExists: true}

// BuildCreateTableSQL returns CREATE TABLE IF NOT EXISTS for t.
func BuildCreateTableSQL(t schema.Table) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	return gddl.BuildCreateTableSQL(t.Def(MapType), Dialect)
}
