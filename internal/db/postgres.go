// This file contains the Postgres adapter, which wraps pgx.Conn/pgx.Tx while
// remaining testable via lightweight seams.
//
// Design goals:
//   - Allow mocking via the pgConnLike interface (for hermetic unit tests).
//   - Keep behavior minimal and predictable; no implicit retries.
//   - Maintain parity with the database/sql adapter where possible.
package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgConnLike defines the minimal subset of methods used from *pgx.Conn.
// This seam allows injecting a test double that mimics *pgx.Conn behavior.
type pgConnLike interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close(ctx context.Context) error
}

// pgDB is the concrete Postgres adapter implementing the DB interface.
type pgDB struct{ conn pgConnLike }

// NewPgDB connects to Postgres using pgx.Connect and wraps the connection
// in a pgDB. Callers are responsible for closing it via Close().
func NewPgDB(ctx context.Context, dsn string) (DB, error) {
	c, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &pgDB{conn: c}, nil
}

// Exec delegates to pgx.Conn.Exec and returns only the error.
func (p *pgDB) Exec(ctx context.Context, q string, args ...any) error {
	_, err := p.conn.Exec(ctx, q, args...)
	return err
}

// BeginTx starts a transaction by calling pgx.Conn.Begin.
func (p *pgDB) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := p.conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx}, nil
}

// Close closes the underlying connection.
func (p *pgDB) Close(ctx context.Context) error {
	return p.conn.Close(ctx)
}

// pgTx wraps pgx.Tx to implement our Tx interface.
type pgTx struct {
	tx pgx.Tx
}

// Exec executes a SQL statement within the current transaction.
func (t *pgTx) Exec(ctx context.Context, q string, args ...any) error {
	_, err := t.tx.Exec(ctx, q, args...)
	return err
}

// QueryRow runs a query expected to return at most one row of interest.
func (t *pgTx) QueryRow(ctx context.Context, q string, args ...any) Row {
	return pgRow{row: t.tx.QueryRow(ctx, q, args...)}
}

// CopyInto performs a bulk insert using Postgres's native COPY FROM mechanism.
func (t *pgTx) CopyInto(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	return t.tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
}

// Commit commits the active transaction.
func (t *pgTx) Commit(ctx context.Context) error { return t.tx.Commit(ctx) }

// Rollback aborts the active transaction.
func (t *pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// pgRow maps pgx.ErrNoRows onto ErrNoRows.
type pgRow struct{ row pgx.Row }

func (r pgRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNoRows
	}
	return err
}

// newPgDBFromConn constructs a pgDB from a pgConnLike fake.
func newPgDBFromConn(c pgConnLike) *pgDB { return &pgDB{conn: c} }

// newPgTxForTest wraps a pgx.Tx fake into a pgTx for testing.
func newPgTxForTest(t pgx.Tx) *pgTx { return &pgTx{tx: t} }
