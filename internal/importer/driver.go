// Package importer drives a load over one input tree: it discovers the files,
// runs a per-file function inside its own transaction, and commits after each
// file. The per-file functions live in the songs and logs subpackages.
package importer

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"sparkify/internal/db"
	"sparkify/internal/logging"
	"sparkify/internal/metrics"
)

// Ext is the file extension of input files.
const Ext = ".json"

// FileFunc loads one file using tx. It must not commit or roll back.
type FileFunc func(ctx context.Context, tx db.Tx, path string) error

// Options tunes ProcessData. The zero value is usable.
type Options struct {
	Job      string    // metrics job label
	Tree     string    // metrics tree label, e.g. "songs" or "logs"
	Progress io.Writer // receives the plain-text progress lines; nil discards
}

// Discover walks root and returns the absolute path of every non-directory
// entry whose name ends in ext. Order is lexical and therefore deterministic.
func Discover(root, ext string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ext) {
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		files = append(files, abs)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", root, err)
	}
	return files, nil
}

// ProcessData loads every input file under root with fn, one transaction per
// file, committing each before starting the next. The first failure rolls
// back that file's transaction and stops the run; files already committed
// stay committed and later files are never attempted.
func ProcessData(ctx context.Context, conn db.DB, root string, fn FileFunc, opts Options) error {
	log := logging.WithComponent("driver").With().Str("tree", opts.Tree).Logger()
	progress := opts.Progress
	if progress == nil {
		progress = io.Discard
	}

	files, err := Discover(root, Ext)
	if err != nil {
		return err
	}
	total := len(files)
	fmt.Fprintf(progress, "%d files found in %s\n", total, root)
	log.Info().Int("files", total).Str("root", root).Msg("files discovered")

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		err := processFile(ctx, conn, path, fn)
		metrics.RecordFile(opts.Job, opts.Tree, err, time.Since(start))
		if err != nil {
			log.Error().Err(err).Str("file", path).Int("index", i+1).Int("total", total).Msg("file failed; run aborted")
			return err
		}

		fmt.Fprintf(progress, "%d/%d files processed.\n", i+1, total)
		log.Debug().Str("file", path).Int("index", i+1).Int("total", total).
			Dur("took", time.Since(start)).Msg("file committed")
	}
	return nil
}

// processFile runs fn inside a fresh transaction and commits it. A failing
// fn rolls the transaction back.
func processFile(ctx context.Context, conn db.DB, path string, fn FileFunc) error {
	tx, err := conn.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", path, err)
	}

	if err := fn(ctx, tx, path); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%s: %w (rollback: %v)", path, err, rbErr)
		}
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", path, err)
	}
	return nil
}
