// This file contains the portable adapter for engines behind database/sql
// (SQLite, SQL Server, MySQL). COPY-like operations fall back to a prepared
// INSERT executed once per row, which keeps import code engine-agnostic.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	// Drivers registered under the names accepted by Open.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

// stmtCore is the minimal subset of *sql.Stmt we use.
type stmtCore interface {
	ExecContext(ctx context.Context, args ...any) (sql.Result, error)
	Close() error
}

// sqlTxCore is the subset of a transaction that sqlTx uses.
type sqlTxCore interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) Row
	PrepareContext(ctx context.Context, query string) (stmtCore, error)
	Commit() error
	Rollback() error
}

// sqlDBCore is the minimal subset of *sql.DB we use. It must match *sql.DB.
type sqlDBCore interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

type realStmt struct{ s *sql.Stmt }

func (r realStmt) ExecContext(ctx context.Context, args ...any) (sql.Result, error) {
	return r.s.ExecContext(ctx, args...)
}
func (r realStmt) Close() error { return r.s.Close() }

type realSQLTx struct{ tx *sql.Tx }

func (r realSQLTx) ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return r.tx.ExecContext(ctx, q, args...)
}
func (r realSQLTx) QueryRowContext(ctx context.Context, q string, args ...any) Row {
	return sqlRow{row: r.tx.QueryRowContext(ctx, q, args...)}
}
func (r realSQLTx) PrepareContext(ctx context.Context, q string) (stmtCore, error) {
	st, err := r.tx.PrepareContext(ctx, q)
	if err != nil {
		return nil, err
	}
	return realStmt{st}, nil
}
func (r realSQLTx) Commit() error   { return r.tx.Commit() }
func (r realSQLTx) Rollback() error { return r.tx.Rollback() }

// sqlRow maps sql.ErrNoRows onto ErrNoRows.
type sqlRow struct{ row *sql.Row }

func (r sqlRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNoRows
	}
	return err
}

// sqlDB is the portable adapter for engines behind database/sql.
type sqlDB struct {
	db          sqlDBCore
	placeholder func(n int) string
}

// NewSQLDB opens a database/sql connection and pings to confirm connectivity.
// driver selects both the registered driver and the bind-parameter style.
func NewSQLDB(ctx context.Context, driver, dsn string) (DB, error) {
	d, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite" {
		// An in-memory database lives and dies with its connection.
		d.SetMaxOpenConns(1)
	}
	if err := d.PingContext(ctx); err != nil {
		_ = d.Close()
		return nil, err
	}
	return &sqlDB{db: d, placeholder: placeholderFor(driver)}, nil
}

// placeholderFor returns the bind-parameter renderer for a driver.
func placeholderFor(driver string) func(int) string {
	if driver == "sqlserver" {
		return func(n int) string { return "@p" + strconv.Itoa(n) }
	}
	return func(int) string { return "?" }
}

// Exec forwards a statement to the underlying database.
func (s *sqlDB) Exec(ctx context.Context, q string, args ...any) error {
	_, err := s.db.ExecContext(ctx, q, args...)
	return err
}

// BeginTx starts a transaction and returns a Tx adapter.
func (s *sqlDB) BeginTx(ctx context.Context) (Tx, error) {
	raw, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: realSQLTx{tx: raw}, placeholder: s.placeholder}, nil
}

// Close closes the underlying database connection.
func (s *sqlDB) Close(ctx context.Context) error { return s.db.Close() }

// sqlTx wraps sqlTxCore to implement the portable Tx interface.
type sqlTx struct {
	tx          sqlTxCore
	placeholder func(n int) string
}

// Exec forwards execution to the transaction and returns any error.
func (t *sqlTx) Exec(ctx context.Context, q string, args ...any) error {
	_, err := t.tx.ExecContext(ctx, q, args...)
	return err
}

// QueryRow runs a query expected to return at most one row of interest.
func (t *sqlTx) QueryRow(ctx context.Context, q string, args ...any) Row {
	return t.tx.QueryRowContext(ctx, q, args...)
}

// CopyInto emulates bulk insert by preparing an INSERT and executing once per
// row. It returns the number of rows inserted before any failure.
func (t *sqlTx) CopyInto(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	stmt, err := t.tx.PrepareContext(ctx, insertText(table, columns, t.placeholder))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var inserted int64
	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return inserted, fmt.Errorf("row %d: %w", i, err)
		}
		inserted++
	}
	return inserted, nil
}

// Commit commits the active transaction.
func (t *sqlTx) Commit(ctx context.Context) error { return t.tx.Commit() }

// Rollback aborts the active transaction.
func (t *sqlTx) Rollback(ctx context.Context) error { return t.tx.Rollback() }

// insertText renders INSERT INTO table (c1,c2) VALUES (p1,p2).
func insertText(table string, columns []string, placeholder func(int) string) string {
	if placeholder == nil {
		placeholder = placeholderFor("")
	}
	ph := make([]string, len(columns))
	for i := range columns {
		ph[i] = placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ","), strings.Join(ph, ","))
}

// newSQLTxForTest wraps a fake sqlTxCore as a Tx using @pN placeholders.
func newSQLTxForTest(core sqlTxCore) *sqlTx {
	return &sqlTx{tx: core, placeholder: placeholderFor("sqlserver")}
}

// newSQLDBForTest wraps a fake sqlDBCore as a DB.
func newSQLDBForTest(core sqlDBCore) *sqlDB {
	return &sqlDB{db: core, placeholder: placeholderFor("sqlserver")}
}
