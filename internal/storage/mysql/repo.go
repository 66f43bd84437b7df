// Package mysql implements the MySQL backend on database/sql with
// github.com/go-sql-driver/mysql. Statements are built with squirrel:
//
//   - snapshot: DELETE FROM + chunked multi-row INSERT in one transaction
//   - upsert:   chunked INSERT ... ON DUPLICATE KEY UPDATE `c` = VALUES(`c`)
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"bietl/internal/schema"
	"bietl/internal/storage"
	myddl "bietl/internal/storage/mysql/ddl"
)

// Config holds MySQL repository configuration.
type Config struct {
	DSN       string
	BatchSize int
	Logger    *zap.Logger
}

// Repository is a MySQL-backed implementation of storage.Repository.
type Repository struct {
	db        *sql.DB
	batchSize int
	log       *zap.Logger
}

// FormatDSN builds a go-sql-driver DSN from discrete settings. Dates are
// returned as time.Time and the connection uses utf8mb4.
func FormatDSN(host string, port int, user, password, database string) string {
	c := mysql.NewConfig()
	c.User = user
	c.Passwd = password
	c.Net = "tcp"
	if host == "" {
		host = "127.0.0.1"
	}
	if port <= 0 {
		port = 3306
	}
	c.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	c.DBName = database
	c.ParseTime = true
	c.Params = map[string]string{"charset": "utf8mb4"}
	return c.FormatDSN()
}

// NewRepository opens a pool, pings it and returns a Close function.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if _, err := mysql.ParseDSN(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mysql dsn: %w", err)
	}
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql: open: %w", err)
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(4)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("mysql: ping: %w", err)
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
	stmt, err := myddl.BuildCreateTableSQL(t)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("mysql: create table %s: %w", t.Name, err)
	}
	return nil
}

// ReplaceAll implements storage.Repository.
func (r *Repository) ReplaceAll(ctx context.Context, t schema.Table, rows [][]any) (int64, error) {
	return r.inTx(ctx, func(tx *sql.Tx) (int64, error) {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+myFQN(t.Name)); err != nil {
			return 0, fmt.Errorf("mysql: clear %s: %w", t.Name, err)
		}
		return storage.LoadBatches(ctx, r.log, t.Name, rows, r.batchSize, func(ctx context.Context, chunk [][]any) (int64, error) {
			return execInsert(ctx, tx, t, chunk, "")
		})
	})
}

// Upsert implements storage.Repository.
func (r *Repository) Upsert(ctx context.Context, t schema.Table, rows [][]any) (int64, error) {
	suffix := "ON DUPLICATE KEY UPDATE " + strings.Join(updateColumns(t), ", ")
	return r.inTx(ctx, func(tx *sql.Tx) (int64, error) {
		return storage.LoadBatches(ctx, r.log, t.Name, rows, r.batchSize, func(ctx context.Context, chunk [][]any) (int64, error) {
			return execInsert(ctx, tx, t, chunk, suffix)
		})
	})
}

func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) (int64, error)) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mysql: begin tx: %w", err)
	}
	n, err := fn(tx)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mysql: commit: %w", err)
	}
	return n, nil
}

// execInsert writes one multi-row INSERT. MySQL reports 2 affected rows for
// an updated duplicate, so the chunk length is returned instead.
func execInsert(ctx context.Context, tx *sql.Tx, t schema.Table, rows [][]any, suffix string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	b := sq.Insert(myFQN(t.Name)).Columns(mapIdent(t.ColumnNames())...)
	for _, row := range rows {
		b = b.Values(row...)
	}
	if suffix != "" {
		b = b.Suffix(suffix)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("mysql: build insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("mysql: insert into %s: %w", t.Name, err)
	}
	return int64(len(rows)), nil
}

// updateColumns renders "`c` = VALUES(`c`)" for every non-key column. A
// key-only table gets a no-op assignment so duplicates are ignored.
func updateColumns(t schema.Table) []string {
	setParts := make([]string, 0, len(t.Columns))
	for _, c := range t.ColumnNames() {
		setParts = append(setParts, fmt.Sprintf("%s = VALUES(%s)", myIdent(c), myIdent(c)))
	}
	setParts = filterConflictKeys(setParts, t.PrimaryKey)
	if len(setParts) == 0 && len(t.PrimaryKey) > 0 {
		k := myIdent(t.PrimaryKey[0])
		setParts = append(setParts, fmt.Sprintf("%s = %s", k, k))
	}
	return setParts
}

// filterConflictKeys drops assignments to key columns from setParts.
func filterConflictKeys(setParts []string, keys []string) []string {
	keySet := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		keySet[myIdent(k)] = struct{}{}
	}
	var result []string
	for _, part := range setParts {
		col := strings.Split(part, " = ")[0]
		if _, isKey := keySet[col]; !isKey {
			result = append(result, part)
		}
	}
	return result
}

func myIdent(id string) string { return myddl.QuoteIdent(id) }

func myFQN(fqn string) string { return myddl.Dialect.QuoteFQN(fqn) }

func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = myIdent(c)
	}
	return out
}
