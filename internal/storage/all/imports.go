// Package all wires all built-in storage backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) causes the init functions of each concrete storage backend to run,
// which in turn register their factories with the storage package.
//
// Importing this package makes the following storage kinds available:
//
//   - "mysql"    (bietl/internal/storage/mysql)
//   - "postgres" (bietl/internal/storage/postgres)
//   - "mssql"    (bietl/internal/storage/mssql)
//   - "sqlite"   (bietl/internal/storage/sqlite)
//
// Typical usage (in cmd/bietl or a similar wiring layer):
//
//	import _ "bietl/internal/storage/all"
//
//	repo, err := storage.New(ctx, storage.Config{Kind: cfg.DB.Driver, DSN: cfg.DB.DSN})
//
// A binary that needs only a subset of backends can import those packages
// directly instead.
package all

import (
	_ "bietl/internal/storage/mssql"
	_ "bietl/internal/storage/mysql"
	_ "bietl/internal/storage/postgres"
	_ "bietl/internal/storage/sqlite"
)
