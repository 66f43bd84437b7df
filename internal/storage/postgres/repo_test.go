package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"bietl/internal/schema"
	"bietl/internal/storage"
)

var cardsTable = schema.Table{
	Name: "trello_cards",
	Columns: []schema.Column{
		{Name: "card_id", Type: schema.Text},
		{Name: "card_name", Type: schema.Text},
		{Name: "due_date", Type: schema.DateTime},
	},
	PrimaryKey: []string{"card_id"},
	Mode:       schema.Upsert,
}

func TestUpsertSQL(t *testing.T) {
	t.Parallel()

	got := upsertSQL(cardsTable)
	want := `INSERT INTO "trello_cards" ("card_id", "card_name", "due_date") VALUES ($1, $2, $3) ` +
		`ON CONFLICT ("card_id") DO UPDATE SET "card_name" = EXCLUDED."card_name", "due_date" = EXCLUDED."due_date"`
	if got != want {
		t.Fatalf("upsertSQL() =\n%s\nwant:\n%s", got, want)
	}
}

func TestUpsertSQL_KeyOnly(t *testing.T) {
	t.Parallel()

	tbl := schema.Table{
		Name:       "analytics.keys",
		Columns:    []schema.Column{{Name: "id", Type: schema.Text}},
		PrimaryKey: []string{"id"},
		Mode:       schema.Upsert,
	}
	want := `INSERT INTO "analytics"."keys" ("id") VALUES ($1) ON CONFLICT ("id") DO NOTHING`
	if got := upsertSQL(tbl); got != want {
		t.Fatalf("upsertSQL() = %s, want %s", got, want)
	}
}

func TestSplitFQN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want pgx.Identifier
	}{
		{"ph_overview", pgx.Identifier{"ph_overview"}},
		{"analytics.ph_overview", pgx.Identifier{"analytics", "ph_overview"}},
		{"analytics..ph_overview", pgx.Identifier{"analytics", "ph_overview"}},
	}
	for _, tc := range tests {
		got := splitFQN(tc.in)
		if fmt.Sprint(got) != fmt.Sprint(tc.want) {
			t.Errorf("splitFQN(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestFormatDSN(t *testing.T) {
	t.Parallel()

	got := FormatDSN(storage.Config{Host: "db", User: "etl", Password: "p@ss", Database: "bi"})
	want := "postgres://etl:p%40ss@db:5432/bi"
	if got != want {
		t.Fatalf("FormatDSN() = %s, want %s", got, want)
	}
}

func TestWrapPgErr(t *testing.T) {
	t.Parallel()

	base := &pgconn.PgError{Code: "23502", Message: "null value", Detail: "Failing row contains (null)."}
	err := wrapPgErr(base)
	if !errors.Is(err, base) {
		t.Fatalf("wrapPgErr() lost the original error")
	}
	if err.Error() == base.Error() {
		t.Fatalf("wrapPgErr() did not add detail: %s", err)
	}

	plain := errors.New("boom")
	if wrapPgErr(plain) != plain {
		t.Fatalf("wrapPgErr() should pass through errors without detail")
	}
}
