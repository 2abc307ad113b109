// Command etl loads the song-metadata tree and then the activity-log tree
// into the star schema. It is a thin composition layer: configuration,
// database constructors and the per-tree driver are injected via Deps so
// run() stays testable without a real database.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"sparkify/internal/config"
	"sparkify/internal/db"
	"sparkify/internal/importer"
	"sparkify/internal/importer/logs"
	"sparkify/internal/importer/songs"
	"sparkify/internal/logging"
	"sparkify/internal/metrics"
	"sparkify/internal/metrics/datadog"
	"sparkify/internal/metrics/prompush"
	"sparkify/internal/schema"
	"sparkify/internal/skiplog"
)

// Deps holds injectable dependencies so run() is fully testable. In tests we
// pass fakes here; in production defaultDeps() provides real funcs.
type Deps struct {
	Open        func(ctx context.Context, driver, dsn string) (db.DB, error)
	ProcessData func(ctx context.Context, conn db.DB, root string, fn importer.FileFunc, opts importer.Options) error
	NewBackend  func(cfg *config.Config, runID string) (metrics.Backend, error)

	// Stdout receives the plain-text progress lines.
	Stdout io.Writer
}

func defaultDeps() Deps {
	return Deps{
		Open:        db.Open,
		ProcessData: importer.ProcessData,
		NewBackend:  newBackend,
		Stdout:      os.Stdout,
	}
}

// newBackend builds the configured metrics backend, or nil for none.
func newBackend(cfg *config.Config, runID string) (metrics.Backend, error) {
	switch cfg.MetricsBackend {
	case config.MetricsPushgateway:
		return prompush.NewBackend(cfg.JobName, cfg.PushgatewayURL)
	case config.MetricsDatadog:
		return datadog.NewBackend(datadog.Config{
			Addr:       cfg.DatadogAddr,
			Namespace:  "sparkify.",
			GlobalTags: []string{"job:" + cfg.JobName, "run_id:" + runID},
		})
	default:
		return nil, nil
	}
}

// run executes one full load:
//
//  1. Installs the metrics backend (flushed on return).
//  2. Opens one connection for the whole run.
//  3. Optionally creates missing tables.
//  4. Loads the song tree, then the log tree, so songplay lookups can see
//     every song.
//
// Any error aborts the run and is returned with the failing stage named.
func run(ctx context.Context, cfg *config.Config, runID string, deps Deps) (err error) {
	log := logging.WithComponent("etl")
	start := time.Now()

	s, err := schema.New(schema.Dialect(cfg.DBDriver), schema.Options{SongplayKey: cfg.SongplayKey})
	if err != nil {
		return err
	}

	backend, err := deps.NewBackend(cfg, runID)
	if err != nil {
		return fmt.Errorf("metrics backend: %w", err)
	}
	if backend != nil {
		metrics.SetBackend(backend)
		defer func() {
			if ferr := metrics.Flush(); ferr != nil {
				log.Warn().Err(ferr).Msg("metrics flush failed")
			}
		}()
	}

	conn, err := deps.Open(ctx, cfg.DBDriver, cfg.ConnString())
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.DBDriver, err)
	}
	defer func() {
		if cerr := conn.Close(ctx); cerr != nil && err == nil {
			err = fmt.Errorf("close: %w", cerr)
		}
	}()

	if cfg.EnsureSchema {
		for _, stmt := range s.CreateStatements() {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
		}
		log.Info().Msg("schema ensured")
	}

	var skips *skiplog.Stats
	if cfg.SkippedDir != "" {
		skips, err = skiplog.New(filepath.Join(cfg.SkippedDir, skiplog.SongplaysFile))
		if err != nil {
			return fmt.Errorf("skip report: %w", err)
		}
		defer func() {
			if cerr := skips.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("skip report: %w", cerr)
			}
		}()
	}

	songLoader := songs.New(s, cfg.JobName)
	if err := deps.ProcessData(ctx, conn, cfg.SongData, songLoader.ProcessFile, importer.Options{
		Job: cfg.JobName, Tree: songs.Tree, Progress: deps.Stdout,
	}); err != nil {
		return fmt.Errorf("song data: %w", err)
	}

	logLoader := logs.New(s, logs.Options{
		Job:           cfg.JobName,
		BulkSongplays: cfg.BulkSongplays,
		Skips:         skips,
	})
	if err := deps.ProcessData(ctx, conn, cfg.LogData, logLoader.ProcessFile, importer.Options{
		Job: cfg.JobName, Tree: logs.Tree, Progress: deps.Stdout,
	}); err != nil {
		return fmt.Errorf("log data: %w", err)
	}

	ev := log.Info().Dur("took", time.Since(start))
	for reason, n := range skips.Counts() {
		ev = ev.Int("skipped_"+reason, n)
	}
	ev.Msg("load complete")
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	runID := uuid.NewString()
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, RunID: runID})

	if err := run(context.Background(), cfg, runID, defaultDeps()); err != nil {
		log := logging.Logger()
		log.Error().Err(err).Msg("load failed")
		os.Exit(1)
	}
}
