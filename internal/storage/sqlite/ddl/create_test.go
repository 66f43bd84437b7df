package ddl

import (
	"strings"
	"testing"

	"bietl/internal/schema"
)

// TestBuildCreateTableSQL verifies quoting, affinities and the key clause.
func TestBuildCreateTableSQL(t *testing.T) {
	t.Parallel()

	tbl := schema.Table{
		Name: "rd_crm_sdr_deals",
		Columns: []schema.Column{
			{Name: "id", Type: schema.Text},
			{Name: "win", Type: schema.Bool},
			{Name: "amount", Type: schema.Float},
			{Name: "created_at", Type: schema.Date},
		},
		PrimaryKey: []string{"id"},
		Mode:       schema.Upsert,
	}

	got, err := BuildCreateTableSQL(tbl)
	if err != nil {
		t.Fatalf("BuildCreateTableSQL() error = %v", err)
	}
	want := "CREATE TABLE IF NOT EXISTS \"rd_crm_sdr_deals\" (\n" +
		"  \"id\" TEXT NOT NULL,\n" +
		"  \"win\" INTEGER,\n" +
		"  \"amount\" REAL,\n" +
		"  \"created_at\" TEXT,\n" +
		"  PRIMARY KEY (\"id\")\n);"
	if got != want {
		t.Fatalf("BuildCreateTableSQL() =\n%s\nwant:\n%s", got, want)
	}
}

// TestBuildCreateTableSQL_InvalidTable surfaces descriptor errors.
func TestBuildCreateTableSQL_InvalidTable(t *testing.T) {
	t.Parallel()

	_, err := BuildCreateTableSQL(schema.Table{Name: "t", Mode: schema.Snapshot})
	if err == nil || !strings.Contains(err.Error(), "no columns") {
		t.Fatalf("BuildCreateTableSQL() error = %v; want no columns error", err)
	}
}

func TestQuoteIdent(t *testing.T) {
	t.Parallel()

	if got := QuoteIdent(`we"ird`); got != `"we""ird"` {
		t.Fatalf("QuoteIdent() = %s", got)
	}
}
