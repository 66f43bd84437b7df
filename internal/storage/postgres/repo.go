// Package postgres implements a Postgres repository using pgx v5.
//
// Snapshots are written with DELETE followed by COPY inside one transaction.
// Upserts queue one INSERT ... ON CONFLICT DO UPDATE per row in a pgx.Batch,
// chunked by BatchSize, also inside one transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"bietl/internal/schema"
	"bietl/internal/storage"
	pgddl "bietl/internal/storage/postgres/ddl"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN       string // connection string for pgxpool
	BatchSize int
	Logger    *zap.Logger
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool      *pgxpool.Pool
	batchSize int
	log       *zap.Logger
}

// FormatDSN builds a postgres:// URL from the discrete connection fields.
func FormatDSN(cfg storage.Config) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:   "/" + cfg.Database,
	}
	if cfg.User != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	return u.String()
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = storage.DefaultBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	closeFn := func() { pool.Close() }
	return &Repository{pool: pool, batchSize: cfg.BatchSize, log: cfg.Logger}, closeFn, nil
}

// EnsureTable implements storage.Repository.
func (r *Repository) EnsureTable(ctx context.Context, t schema.Table) error {
	stmt, err := pgddl.BuildCreateTableSQL(t)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("postgres: create table %s: %w", t.Name, wrapPgErr(err))
	}
	return nil
}

// ReplaceAll implements storage.Repository.
func (r *Repository) ReplaceAll(ctx context.Context, t schema.Table, rows [][]any) (int64, error) {
	typed, err := storage.TypedRows(t, rows)
	if err != nil {
		return 0, err
	}
	ident := splitFQN(t.Name)
	cols := t.ColumnNames()
	return r.inTx(ctx, func(tx pgx.Tx) (int64, error) {
		if _, err := tx.Exec(ctx, "DELETE FROM "+pgddl.Dialect.QuoteFQN(t.Name)); err != nil {
			return 0, fmt.Errorf("postgres: clear %s: %w", t.Name, wrapPgErr(err))
		}
		return storage.LoadBatches(ctx, r.log, t.Name, typed, r.batchSize, func(ctx context.Context, chunk [][]any) (int64, error) {
			n, err := tx.CopyFrom(ctx, ident, cols, pgx.CopyFromRows(chunk))
			if err != nil {
				return n, fmt.Errorf("copy into %s: %w", t.Name, wrapPgErr(err))
			}
			return n, nil
		})
	})
}

// Upsert implements storage.Repository.
func (r *Repository) Upsert(ctx context.Context, t schema.Table, rows [][]any) (int64, error) {
	typed, err := storage.TypedRows(t, rows)
	if err != nil {
		return 0, err
	}
	stmt := upsertSQL(t)
	return r.inTx(ctx, func(tx pgx.Tx) (int64, error) {
		return storage.LoadBatches(ctx, r.log, t.Name, typed, r.batchSize, func(ctx context.Context, chunk [][]any) (int64, error) {
			b := &pgx.Batch{}
			for _, row := range chunk {
				b.Queue(stmt, row...)
			}
			br := tx.SendBatch(ctx, b)
			for i := range chunk {
				if _, err := br.Exec(); err != nil {
					_ = br.Close()
					return int64(i), fmt.Errorf("upsert into %s: %w", t.Name, wrapPgErr(err))
				}
			}
			if err := br.Close(); err != nil {
				return int64(len(chunk)), wrapPgErr(err)
			}
			return int64(len(chunk)), nil
		})
	})
}

func (r *Repository) inTx(ctx context.Context, fn func(tx pgx.Tx) (int64, error)) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin tx: %w", err)
	}
	n, err := fn(tx)
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit: %w", wrapPgErr(err))
	}
	return n, nil
}

// upsertSQL renders a single-row INSERT ... ON CONFLICT statement with
// positional parameters for t.
func upsertSQL(t schema.Table) string {
	cols := t.ColumnNames()
	params := make([]string, len(cols))
	for i := range cols {
		params[i] = "$" + strconv.Itoa(i+1)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) ",
		pgddl.Dialect.QuoteFQN(t.Name),
		strings.Join(mapIdent(cols), ", "),
		strings.Join(params, ", "),
		strings.Join(mapIdent(t.PrimaryKey), ", "),
	)
	updates := updateColumns(t.NonKeyColumns())
	if len(updates) == 0 {
		sb.WriteString("DO NOTHING")
	} else {
		sb.WriteString("DO UPDATE SET ")
		sb.WriteString(strings.Join(updates, ", "))
	}
	return sb.String()
}

// updateColumns generates a list of column updates in the format: "col = EXCLUDED.col"
func updateColumns(cols []string) []string {
	updates := make([]string, 0, len(cols))
	for _, col := range cols {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", pgddl.QuoteIdent(col), pgddl.QuoteIdent(col)))
	}
	return updates
}

// mapIdent maps a list of column names to their quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgddl.QuoteIdent(c)
	}
	return out
}

// splitFQN converts "schema.table" into a pgx.Identifier {"schema","table"}.
// If no dot is present, returns {"table"}.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			id = append(id, p)
		}
	}
	return id
}

// wrapPgErr surfaces the server's detail and SQLSTATE when present.
func wrapPgErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return fmt.Errorf("%w (%s; SQLSTATE %s)", err, pgErr.Detail, pgErr.SQLState())
	}
	return err
}
