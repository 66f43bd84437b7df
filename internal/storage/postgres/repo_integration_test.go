//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"bietl/internal/schema"
)

// getTestDSN reads POSTGRES_TEST_DSN; tests skip when it is empty.
func getTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set; skipping Postgres integration tests")
	}
	return dsn
}

// TestWriteModesIntegration runs both write modes against a real server and
// checks the resulting row counts.
func TestWriteModesIntegration(t *testing.T) {
	dsn := getTestDSN(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, closeFn, err := NewRepository(ctx, Config{DSN: dsn, BatchSize: 2})
	if err != nil {
		t.Fatalf("NewRepository() error = %v", err)
	}
	defer closeFn()

	count := func(table string) int {
		t.Helper()
		var n int
		if err := repo.pool.QueryRow(ctx, `SELECT count(*) FROM "`+table+`"`).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		return n
	}

	snap := schema.Table{
		Name:    "bietl_it_overview",
		Columns: []schema.Column{{Name: "data", Type: schema.Date}, {Name: "pageviews", Type: schema.Int}},
		Mode:    schema.Snapshot,
	}
	t.Cleanup(func() { _, _ = repo.pool.Exec(context.Background(), `DROP TABLE IF EXISTS "bietl_it_overview"`) })

	if err := repo.EnsureTable(ctx, snap); err != nil {
		t.Fatalf("EnsureTable() error = %v", err)
	}
	if _, err := repo.ReplaceAll(ctx, snap, [][]any{{"2024-01-01", int64(1)}, {"2024-01-02", int64(2)}, {"2024-01-03", int64(3)}}); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}
	if _, err := repo.ReplaceAll(ctx, snap, [][]any{{"2024-02-01", int64(9)}}); err != nil {
		t.Fatalf("ReplaceAll() error = %v", err)
	}
	if n := count("bietl_it_overview"); n != 1 {
		t.Fatalf("snapshot rows = %d, want 1", n)
	}

	up := cardsTable
	up.Name = "bietl_it_cards"
	t.Cleanup(func() { _, _ = repo.pool.Exec(context.Background(), `DROP TABLE IF EXISTS "bietl_it_cards"`) })
	if err := repo.EnsureTable(ctx, up); err != nil {
		t.Fatalf("EnsureTable() error = %v", err)
	}
	batch := [][]any{{"c1", "one", "2024-05-01 15:00:00"}, {"c2", "two", nil}}
	for i := 0; i < 2; i++ {
		if _, err := repo.Upsert(ctx, up, batch); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}
	if n := count("bietl_it_cards"); n != 2 {
		t.Fatalf("upsert rows = %d, want 2", n)
	}
}
