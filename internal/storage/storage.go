// Package storage contains the backend-agnostic write contract and the
// factory through which concrete backends (MySQL, Postgres, SQLite, MSSQL)
// are selected at runtime.
//
// Backends register a Factory from their init functions; importing
// bietl/internal/storage/all wires every built-in backend.
//
// Write semantics:
//
//   - ReplaceAll deletes every row and inserts the batch in one transaction,
//     so readers see either the previous snapshot or the new one.
//   - Upsert inserts rows whose primary key is new and overwrites every
//     non-key column of rows whose key exists. It never deletes: a row that
//     disappears from the source stays in the table.
//
// Any failure rolls the whole write back.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"bietl/internal/schema"
)

// Repository is implemented by every backend.
type Repository interface {
	// EnsureTable creates t if it does not exist. Existing tables are never
	// altered.
	EnsureTable(ctx context.Context, t schema.Table) error
	// ReplaceAll makes the table contain exactly rows.
	ReplaceAll(ctx context.Context, t schema.Table, rows [][]any) (int64, error)
	// Upsert applies rows keyed by t.PrimaryKey.
	Upsert(ctx context.Context, t schema.Table, rows [][]any) (int64, error)
	// Close releases the connection pool.
	Close()
}

// Config selects and configures a backend.
type Config struct {
	Kind string

	// DSN, when set, is passed to the driver verbatim. Otherwise backends
	// compose one from the discrete fields below.
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	Database string

	// BatchSize bounds the rows per INSERT/MERGE statement. Defaults to 500.
	BatchSize int

	Logger *zap.Logger
}

// DefaultBatchSize is used when Config.BatchSize is not positive.
const DefaultBatchSize = 500

// WithDefaults fills zero values.
func (c Config) WithDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Factory opens a Repository for a Config.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs (or replaces) the factory for kind.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// Kinds lists the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New opens a Repository using the factory registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: no backend registered for kind %q (have %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg.WithDefaults())
}

// Write applies rows to t according to t.Mode. Every row must have one cell
// per column. An empty upsert batch is a no-op; an empty snapshot batch
// empties the table.
func Write(ctx context.Context, repo Repository, t schema.Table, rows [][]any) (int64, error) {
	if err := CheckArity(t, rows); err != nil {
		return 0, err
	}
	switch t.Mode {
	case schema.Snapshot:
		return repo.ReplaceAll(ctx, t, rows)
	case schema.Upsert:
		if len(rows) == 0 {
			return 0, nil
		}
		return repo.Upsert(ctx, t, rows)
	default:
		return 0, fmt.Errorf("storage: table %s has unknown mode %q", t.Name, t.Mode)
	}
}

// CheckArity verifies every row has exactly len(t.Columns) cells.
func CheckArity(t schema.Table, rows [][]any) error {
	want := len(t.Columns)
	for i, r := range rows {
		if len(r) != want {
			return fmt.Errorf("storage: %s row %d has %d values, want %d", t.Name, i, len(r), want)
		}
	}
	return nil
}
