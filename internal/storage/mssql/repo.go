// Package mssql implements a Microsoft SQL Server repository.
//
// Snapshots DELETE the table and stream the batch through the go-mssqldb
// bulk copy API in one transaction. Upserts run chunked MERGE statements;
// chunks are sized so a statement stays under the 2100-parameter limit.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"
	"go.uber.org/zap"

	"bietl/internal/schema"
	"bietl/internal/storage"
	msddl "bietl/internal/storage/mssql/ddl"
)

// maxParams stays below SQL Server's 2100 parameters per request.
const maxParams = 2000

// Config holds MSSQL repository configuration.
type Config struct {
	DSN       string
	BatchSize int
	Logger    *zap.Logger
}

// Repository is an MSSQL-backed implementation of storage.Repository.
type Repository struct {
	db        *sql.DB
	batchSize int
	log       *zap.Logger
}

// FormatDSN builds a sqlserver:// URL from the discrete connection fields.
func FormatDSN(cfg storage.Config) string {
	port := cfg.Port
	if port == 0 {
		port = 1433
	}
	u := url.URL{
		Scheme: "sqlserver",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
	}
	if cfg.User != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	if cfg.Database != "" {
		u.RawQuery = url.Values{"database": {cfg.Database}}.Encode()
	}
	return u.String()
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	closeFn := func() { _ = db.Close() }
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
	stmt, err := msddl.BuildCreateTableSQL(t)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("mssql: create table %s: %w", t.Name, err)
	}
	return nil
}

// ReplaceAll implements storage.Repository.
func (r *Repository) ReplaceAll(ctx context.Context, t schema.Table, rows [][]any) (int64, error) {
	typed, err := storage.TypedRows(t, rows)
	if err != nil {
		return 0, err
	}
	return r.inTx(ctx, func(tx *sql.Tx) (int64, error) {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+msddl.Dialect.QuoteFQN(t.Name)); err != nil {
			return 0, fmt.Errorf("mssql: clear %s: %w", t.Name, err)
		}
		return storage.LoadBatches(ctx, r.log, t.Name, typed, r.batchSize, func(ctx context.Context, chunk [][]any) (int64, error) {
			return bulkCopy(ctx, tx, t, chunk)
		})
	})
}

// Upsert implements storage.Repository.
func (r *Repository) Upsert(ctx context.Context, t schema.Table, rows [][]any) (int64, error) {
	typed, err := storage.TypedRows(t, rows)
	if err != nil {
		return 0, err
	}
	return r.inTx(ctx, func(tx *sql.Tx) (int64, error) {
		return storage.LoadBatches(ctx, r.log, t.Name, typed, mergeChunkSize(r.batchSize, len(t.Columns)), func(ctx context.Context, chunk [][]any) (int64, error) {
			args := make([]any, 0, len(chunk)*len(t.Columns))
			for _, row := range chunk {
				args = append(args, row...)
			}
			if _, err := tx.ExecContext(ctx, mergeSQL(t, len(chunk)), args...); err != nil {
				return 0, fmt.Errorf("merge into %s: %w", t.Name, err)
			}
			return int64(len(chunk)), nil
		})
	})
}

func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) (int64, error)) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	n, err := fn(tx)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// bulkCopy streams rows through a prepared CopyIn statement on tx.
func bulkCopy(ctx context.Context, tx *sql.Tx, t schema.Table, rows [][]any) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(t.Name, mssql.BulkOptions{}, t.ColumnNames()...))
	if err != nil {
		return 0, fmt.Errorf("prepare bulk: %w", err)
	}
	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rows[i]...); err != nil {
			_ = stmt.Close()
			return 0, fmt.Errorf("bulk row %d: %w", i, err)
		}
	}
	res, err := stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("bulk finalize: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// mergeChunkSize caps rows per MERGE so rows*cols stays under maxParams.
func mergeChunkSize(batchSize, cols int) int {
	if cols <= 0 {
		return batchSize
	}
	limit := maxParams / cols
	if limit < 1 {
		limit = 1
	}
	if batchSize > limit {
		return limit
	}
	return batchSize
}

// mergeSQL renders a MERGE for n rows with @pN parameters, row-major.
func mergeSQL(t schema.Table, n int) string {
	cols := t.ColumnNames()
	quoted := mapIdent(cols)

	tuples := make([]string, n)
	p := 1
	for i := 0; i < n; i++ {
		ph := make([]string, len(cols))
		for j := range cols {
			ph[j] = "@p" + strconv.Itoa(p)
			p++
		}
		tuples[i] = "(" + strings.Join(ph, ", ") + ")"
	}

	on := make([]string, len(t.PrimaryKey))
	for i, k := range t.PrimaryKey {
		q := msIdent(k)
		on[i] = "T." + q + " = S." + q
	}

	src := make([]string, len(cols))
	for i, q := range quoted {
		src[i] = "S." + q
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "MERGE INTO %s WITH (HOLDLOCK) AS T\nUSING (VALUES %s) AS S (%s)\nON %s\n",
		msFQN(t.Name),
		strings.Join(tuples, ", "),
		strings.Join(quoted, ", "),
		strings.Join(on, " AND "),
	)
	if nonKey := t.NonKeyColumns(); len(nonKey) > 0 {
		sets := make([]string, len(nonKey))
		for i, c := range nonKey {
			q := msIdent(c)
			sets[i] = "T." + q + " = S." + q
		}
		fmt.Fprintf(&sb, "WHEN MATCHED THEN UPDATE SET %s\n", strings.Join(sets, ", "))
	}
	fmt.Fprintf(&sb, "WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);",
		strings.Join(quoted, ", "),
		strings.Join(src, ", "),
	)
	return sb.String()
}

func msIdent(id string) string { return msddl.QuoteIdent(id) }

func msFQN(name string) string { return msddl.Dialect.QuoteFQN(name) }

func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = msIdent(c)
	}
	return out
}
