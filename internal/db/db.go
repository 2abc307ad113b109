// Package db hides the differences between database engines behind two small
// interfaces. Postgres runs on a native pgx connection; SQLite, SQL Server
// and MySQL run through database/sql.
package db

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoRows is returned by Row.Scan when a query matched nothing, whatever
// the underlying driver.
var ErrNoRows = errors.New("db: no rows in result set")

// DB is a connection capable of starting transactions and executing DDL/DML.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) error
	BeginTx(ctx context.Context) (Tx, error)
	Close(ctx context.Context) error
}

// Tx (transaction) supports Exec, single-row lookups, bulk inserts, and
// lifecycle.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) error
	QueryRow(ctx context.Context, sql string, args ...any) Row
	CopyInto(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Row is the result of QueryRow. Scan reports ErrNoRows for an empty result
// and reads only the first row otherwise.
type Row interface {
	Scan(dest ...any) error
}

// Factory mints a new DB connection.
type Factory func(ctx context.Context) (DB, error)

// Open connects using the named driver: "postgres" uses pgx directly, while
// "sqlite", "sqlserver" and "mysql" go through database/sql.
func Open(ctx context.Context, driver, dsn string) (DB, error) {
	switch driver {
	case "postgres":
		return NewPgDB(ctx, dsn)
	case "sqlite", "sqlserver", "mysql":
		return NewSQLDB(ctx, driver, dsn)
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", driver)
	}
}

