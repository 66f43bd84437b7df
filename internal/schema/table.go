// Package schema declares destination tables.
//
// Each dataset describes its table once (columns, logical types, primary key
// and write mode). The storage backends render DDL and DML from that single
// description, so there is no per-dataset SQL anywhere in the tree.
package schema

import (
	"fmt"
	"strings"

	"bietl/internal/ddl"
)

// ColumnType is a logical column type mapped to SQL by each backend.
type ColumnType string

const (
	Text     ColumnType = "text"
	Date     ColumnType = "date"
	DateTime ColumnType = "datetime"
	Bool     ColumnType = "bool"
	Int      ColumnType = "int"
	Float    ColumnType = "float"
)

// Mode selects how a batch is applied to the table.
type Mode string

const (
	// Snapshot replaces the whole table with the batch.
	Snapshot Mode = "snapshot"
	// Upsert inserts new keys and overwrites non-key columns of existing
	// keys. Rows absent from the batch are left alone.
	Upsert Mode = "upsert"
)

// Column is one destination column.
type Column struct {
	Name string
	Type ColumnType
}

// Table is a destination table descriptor.
type Table struct {
	Name       string
	Columns    []Column
	PrimaryKey []string
	Mode       Mode
}

// ColumnNames returns the column names in declaration order.
func (t Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// KeyIndexes returns the positions of the primary-key columns.
func (t Table) KeyIndexes() []int {
	out := make([]int, 0, len(t.PrimaryKey))
	for _, k := range t.PrimaryKey {
		for i, c := range t.Columns {
			if c.Name == k {
				out = append(out, i)
				break
			}
		}
	}
	return out
}

// IsKey reports whether name is a primary-key column.
func (t Table) IsKey(name string) bool {
	for _, k := range t.PrimaryKey {
		if k == name {
			return true
		}
	}
	return false
}

// NonKeyColumns returns the columns overwritten by an upsert.
func (t Table) NonKeyColumns() []string {
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !t.IsKey(c.Name) {
			out = append(out, c.Name)
		}
	}
	return out
}

// Validate checks the descriptor is internally consistent.
func (t Table) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("schema: table name must not be empty")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("schema: table %s has no columns", t.Name)
	}
	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("schema: table %s has a column with an empty name", t.Name)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("schema: table %s declares column %s twice", t.Name, c.Name)
		}
		seen[c.Name] = struct{}{}
		switch c.Type {
		case Text, Date, DateTime, Bool, Int, Float:
		default:
			return fmt.Errorf("schema: column %s.%s has unknown type %q", t.Name, c.Name, c.Type)
		}
	}
	for _, k := range t.PrimaryKey {
		if _, ok := seen[k]; !ok {
			return fmt.Errorf("schema: primary key %s is not a column of %s", k, t.Name)
		}
	}
	switch t.Mode {
	case Snapshot:
	case Upsert:
		if len(t.PrimaryKey) == 0 {
			return fmt.Errorf("schema: upsert table %s needs a primary key", t.Name)
		}
	default:
		return fmt.Errorf("schema: table %s has unknown mode %q", t.Name, t.Mode)
	}
	return nil
}

// TypeMapper maps a logical type to a backend SQL type. key is true for
// primary-key columns, which some engines need bounded.
type TypeMapper func(t ColumnType, key bool) string

// Def converts the descriptor into a ddl.TableDef using mapType. Key columns
// are NOT NULL; everything else is nullable.
func (t Table) Def(mapType TypeMapper) ddl.TableDef {
	cols := make([]ddl.ColumnDef, 0, len(t.Columns))
	for _, c := range t.Columns {
		key := t.IsKey(c.Name)
		cols = append(cols, ddl.ColumnDef{
			Name:       c.Name,
			SQLType:    mapType(c.Type, key),
			Nullable:   !key,
			PrimaryKey: key,
		})
	}
	return ddl.TableDef{FQN: t.Name, Columns: cols}
}
