package mssql

import (
	"context"
	"errors"
	"testing"

	"bietl/internal/storage"
)

// TestAdapterRegistration checks the factory maps storage.Config into the
// backend Config and wires Close.
func TestAdapterRegistration(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	var gotCfg Config
	closed := false
	newRepository = func(ctx context.Context, cfg Config) (*Repository, func(), error) {
		gotCfg = cfg
		return &Repository{}, func() { closed = true }, nil
	}

	repo, err := storage.New(context.Background(), storage.Config{
		Kind:      "mssql",
		DSN:       "sqlserver://sa:pw@localhost:1433?database=bi",
		BatchSize: 250,
	})
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	if gotCfg.DSN != "sqlserver://sa:pw@localhost:1433?database=bi" || gotCfg.BatchSize != 250 {
		t.Fatalf("unexpected config: %+v", gotCfg)
	}
	repo.Close()
	if !closed {
		t.Fatalf("Close did not reach the backend")
	}
}

func TestAdapterPropagatesErrors(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	want := errors.New("login failed")
	newRepository = func(ctx context.Context, cfg Config) (*Repository, func(), error) {
		return nil, nil, want
	}

	if _, err := storage.New(context.Background(), storage.Config{Kind: "mssql", DSN: "x"}); !errors.Is(err, want) {
		t.Fatalf("storage.New() error = %v; want %v", err, want)
	}
}

func TestNewRepository_BadDSN(t *testing.T) {
	if _, _, err := NewRepository(context.Background(), Config{DSN: "sqlserver://%zz"}); err == nil {
		t.Fatal("NewRepository() error = nil; want DSN error")
	}
}
