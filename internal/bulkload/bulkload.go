// Package bulkload writes an in-memory batch of rows to a table through the
// transaction's fast path (COPY on Postgres, a prepared INSERT elsewhere).
//
// Load never returns an error value and never panics. Every outcome, failures
// included, is reported in the returned Result, which the caller must check.
package bulkload

import (
	"context"
	"fmt"
	"time"

	"sparkify/internal/db"
	"sparkify/internal/logging"
)

// Result reports the outcome of one Load.
type Result struct {
	Table string
	Rows  int64 // rows the driver reports as written
	Err   error // nil on success
}

// OK reports whether every row was written.
func (r Result) OK() bool { return r.Err == nil }

// Load writes rows into table using columns as the column list. A short
// write (fewer rows than supplied) is a failure.
func Load(ctx context.Context, tx db.Tx, table string, columns []string, rows [][]any) (res Result) {
	log := logging.WithComponent("bulkload")
	res.Table = table
	if len(rows) == 0 {
		return res
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("bulkload %s: panic: %v", table, p)
		}
		if res.Err != nil {
			log.Error().Err(res.Err).Str("table", table).Int64("rows", res.Rows).
				Int("batch", len(rows)).Msg("bulk load failed")
			return
		}
		log.Debug().Str("table", table).Int64("rows", res.Rows).
			Dur("took", time.Since(start)).Msg("bulk load done")
	}()

	n, err := tx.CopyInto(ctx, table, columns, rows)
	res.Rows = n
	switch {
	case err != nil:
		res.Err = fmt.Errorf("bulkload %s: %w", table, err)
	case n != int64(len(rows)):
		res.Err = fmt.Errorf("bulkload %s: wrote %d of %d rows", table, n, len(rows))
	}
	return res
}
