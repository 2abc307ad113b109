// Package testinfra provides database fixtures for tests: an in-memory SQLite
// star schema for hermetic tests, and (behind the integration build tag) a
// Postgres container.
package testinfra

import (
	"context"
	"testing"

	"sparkify/internal/db"
	"sparkify/internal/schema"
)

// SQLite opens a private in-memory SQLite database, creates all five tables
// and closes the connection when the test ends.
func SQLite(t testing.TB, opts schema.Options) (db.DB, *schema.Schema) {
	t.Helper()
	ctx := context.Background()

	s, err := schema.New(schema.SQLite, opts)
	if err != nil {
		t.Fatalf("schema.New: %v", err)
	}
	conn, err := db.Open(ctx, string(schema.SQLite), ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(ctx) })

	for _, stmt := range s.CreateStatements() {
		if err := conn.Exec(ctx, stmt); err != nil {
			t.Fatalf("create: %v\n%s", err, stmt)
		}
	}
	return conn, s
}

// InTx runs fn in a transaction on conn and commits it.
func InTx(t testing.TB, conn db.DB, fn func(tx db.Tx) error) {
	t.Helper()
	ctx := context.Background()

	tx, err := conn.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		t.Fatalf("in tx: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

// Count returns SELECT COUNT(*) FROM table [WHERE where].
func Count(t testing.TB, conn db.DB, table, where string, args ...any) int {
	t.Helper()
	q := "SELECT COUNT(*) FROM " + table
	if where != "" {
		q += " WHERE " + where
	}
	var n int
	InTx(t, conn, func(tx db.Tx) error {
		return tx.QueryRow(context.Background(), q, args...).Scan(&n)
	})
	return n
}

// QueryRow scans the first row of q into dest.
func QueryRow(t testing.TB, conn db.DB, q string, args []any, dest ...any) {
	t.Helper()
	InTx(t, conn, func(tx db.Tx) error {
		return tx.QueryRow(context.Background(), q, args...).Scan(dest...)
	})
}
