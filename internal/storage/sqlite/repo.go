// Package sqlite implements a SQLite-backed storage.Repository using
// database/sql and modernc.org/sqlite. SQLite has no bulk-load API like
// Postgres COPY, so rows go through multi-row INSERTs inside one transaction.
//
// SQLite allows a single writer, so the pool is capped at one connection.
// That also keeps a ":memory:" database alive and shared across calls.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"bietl/internal/schema"
	"bietl/internal/storage"
	sqliteddl "bietl/internal/storage/sqlite/ddl"
)

// Config holds SQLite repository configuration derived from storage.Config.
type Config struct {
	// DSN is a SQLite connection string or file path, e.g.:
	//   "file:bietl.db?_pragma=busy_timeout(5000)"
	//   ":memory:"
	DSN string

	// BatchSize bounds the rows per INSERT. SQLite caps bound parameters
	// (32766 by default), so wide tables should keep this modest.
	BatchSize int

	Logger *zap.Logger
}

// Repository is a SQLite-backed implementation of storage.Repository.
type Repository struct {
	db        *sql.DB
	batchSize int
	log       *zap.Logger
}

// NewRepository opens a SQLite connection using the provided DSN and returns
// a Repository plus a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply a basic ping with context to fail fast on invalid DSNs.
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	closeFn := func() { db.Close() }
	return newWithDB(db, cfg), closeFn, nil
}

func newWithDB(db *sql.DB, cfg Config) *Repository {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = storage.DefaultBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Repository{db: db, batchSize: cfg.BatchSize, log: cfg.Logger}
}

// EnsureTable implements storage.Repository.
func (r *Repository) EnsureTable(ctx context.Context, t schema.Table) error {
	stmt, err := sqliteddl.BuildCreateTableSQL(t)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("sqlite: create table %s: %w", t.Name, err)
	}
	return nil
}

// ReplaceAll implements storage.Repository. The DELETE and every INSERT
// share one transaction.
func (r *Repository) ReplaceAll(ctx context.Context, t schema.Table, rows [][]any) (int64, error) {
	return r.inTx(ctx, func(tx *sql.Tx) (int64, error) {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+sqliteddl.Dialect.QuoteFQN(t.Name)); err != nil {
			return 0, fmt.Errorf("sqlite: clear %s: %w", t.Name, err)
		}
		return storage.LoadBatches(ctx, r.log, t.Name, rows, r.batchSize, func(ctx context.Context, chunk [][]any) (int64, error) {
			return r.execInsert(ctx, tx, t, chunk, "")
		})
	})
}

// Upsert implements storage.Repository using INSERT ... ON CONFLICT DO UPDATE.
func (r *Repository) Upsert(ctx context.Context, t schema.Table, rows [][]any) (int64, error) {
	suffix := conflictClause(t)
	return r.inTx(ctx, func(tx *sql.Tx) (int64, error) {
		return storage.LoadBatches(ctx, r.log, t.Name, rows, r.batchSize, func(ctx context.Context, chunk [][]any) (int64, error) {
			return r.execInsert(ctx, tx, t, chunk, suffix)
		})
	})
}

func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) (int64, error)) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	n, err := fn(tx)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return n, nil
}

func (r *Repository) execInsert(ctx context.Context, tx *sql.Tx, t schema.Table, rows [][]any, suffix string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	b := sq.Insert(sqliteddl.Dialect.QuoteFQN(t.Name)).Columns(quoteAll(t.ColumnNames())...)
	for _, row := range rows {
		b = b.Values(row...)
	}
	if suffix != "" {
		b = b.Suffix(suffix)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("sqlite: build insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("sqlite: insert into %s: %w", t.Name, err)
	}
	return int64(len(rows)), nil
}

// conflictClause renders ON CONFLICT (<pk>) DO UPDATE SET c = excluded.c
// for every non-key column.
func conflictClause(t schema.Table) string {
	keys := strings.Join(quoteAll(t.PrimaryKey), ", ")
	nonKey := t.NonKeyColumns()
	if len(nonKey) == 0 {
		return fmt.Sprintf("ON CONFLICT (%s) DO NOTHING", keys)
	}
	sets := make([]string, len(nonKey))
	for i, c := range nonKey {
		q := sqliteddl.QuoteIdent(c)
		sets[i] = q + " = excluded." + q
	}
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", keys, strings.Join(sets, ", "))
}

func quoteAll(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = sqliteddl.QuoteIdent(c)
	}
	return out
}
