// Command createtables resets the star schema: it drops all five tables and
// creates them again, empty. It shares the etl configuration keys.
package main

import (
	"context"
	"fmt"
	"os"

	"sparkify/internal/config"
	"sparkify/internal/db"
	"sparkify/internal/logging"
	"sparkify/internal/schema"
)

// Deps holds the injectable database constructor.
type Deps struct {
	Open func(ctx context.Context, driver, dsn string) (db.DB, error)
}

func defaultDeps() Deps {
	return Deps{Open: db.Open}
}

// reset runs every drop statement, then every create statement.
func reset(ctx context.Context, conn db.DB, s *schema.Schema) error {
	log := logging.WithComponent("createtables")
	for _, stmt := range s.DropStatements() {
		if err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("drop: %w", err)
		}
	}
	for _, stmt := range s.CreateStatements() {
		if err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create: %w", err)
		}
	}
	log.Info().Strs("tables", s.TableNames()).Str("dialect", string(s.Dialect())).Msg("schema reset")
	return nil
}

func run(ctx context.Context, cfg *config.Config, deps Deps) (err error) {
	s, err := schema.New(schema.Dialect(cfg.DBDriver), schema.Options{SongplayKey: cfg.SongplayKey})
	if err != nil {
		return err
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
	return reset(ctx, conn, s)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if err := run(context.Background(), cfg, defaultDeps()); err != nil {
		log := logging.Logger()
		log.Error().Err(err).Msg("schema reset failed")
		os.Exit(1)
	}
}
