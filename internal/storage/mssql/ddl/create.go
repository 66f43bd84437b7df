// Package ddl provides MSSQL-specific helpers for generating CREATE TABLE
// statements from table descriptors.
//
// The builder here:
//   - Uses SQL Server-style identifier quoting: [schema].[table], [col].
//   - Wraps CREATE TABLE in an IF OBJECT_ID(...) IS NULL guard since T-SQL
//     does not support CREATE TABLE IF NOT EXISTS.
package ddl

import (
	"fmt"
	"strings"

	gddl "bietl/internal/ddl"
	"bietl/internal/schema"
)

// QuoteIdent quotes a single identifier segment for SQL Server using
// bracket syntax, escaping any closing brackets.
//
//	name      -> [name]
//	weird]id  -> [weird]]id]
func QuoteIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

// Dialect is the SQL Server rendering of the generic DDL model.
var Dialect = gddl.Dialect{QuoteIdent: QuoteIdent}

// BuildCreateTableSQL returns a T-SQL script that creates t if it does not
// already exist:
//
//	IF OBJECT_ID(N'[schema].[table]', N'U') IS NULL
//	BEGIN
//	CREATE TABLE [schema].[table] (
//	  [col1] TYPE NOT NULL,
//	  [col2] TYPE,
//	  PRIMARY KEY ([col1])
//	);
//	END;
func BuildCreateTableSQL(t schema.Table) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	create, err := gddl.BuildCreateTableSQL(t.Def(MapType), Dialect)
	if err != nil {
		return "", err
	}
	fqn := strings.ReplaceAll(Dialect.QuoteFQN(t.Name), "'", "''")
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n%s\nEND;", fqn, create), nil
}
