package ddl

// ColumnDef is one rendered column. Name is unquoted; renderers quote it for
// the target dialect.
type ColumnDef struct {
	Name       string
	SQLType    string // already mapped for the backend, e.g. VARCHAR(255)
	Nullable   bool
	PrimaryKey bool
}

// TableDef is a table ready for rendering. FQN may be dotted
// ("schema.table"); each part is quoted separately.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}
