// Package logs loads activity-log files into the time, users and songplays
// tables.
//
// A batch is processed in stages, each over the whole batch: keep only
// NextSong records, write a time row for every record with a timestamp,
// write a user row for every record with a user id, then write one songplay
// per record having both. Songplays resolve song_id and artist_id by title,
// artist name and duration; an unmatched play is still stored, with both ids
// NULL.
package logs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"sparkify/internal/bulkload"
	"sparkify/internal/db"
	"sparkify/internal/domain"
	"sparkify/internal/logging"
	"sparkify/internal/metrics"
	"sparkify/internal/ndjson"
	"sparkify/internal/schema"
	"sparkify/internal/skiplog"
)

// Tree labels the log input tree in logs and metrics.
const Tree = "logs"

// Skip reasons for plays left out of songplays.
const (
	SkipNullTS   = "null_ts"
	SkipNullUser = "null_user"
)

// Options tunes a Loader. The zero value inserts row by row and records no
// skip report.
type Options struct {
	Job string // metrics job label

	// BulkSongplays buffers a file's songplays and writes them through
	// bulkload instead of one INSERT each. It requires the serial songplay
	// key, since the bulk path has no conflict handling.
	BulkSongplays bool

	// Skips receives one row per play left out of songplays. May be nil.
	Skips *skiplog.Stats
}

// Counts tallies the statements (or bulk rows) issued per table.
type Counts struct {
	Plays     int
	Time      int
	Users     int
	Songplays int
	Matched   int // songplays whose song and artist were resolved
	Skipped   int
}

// Loader processes log files against one schema.
type Loader struct {
	schema *schema.Schema
	opts   Options
}

// New returns a Loader writing through s.
func New(s *schema.Schema, opts Options) *Loader {
	return &Loader{schema: s, opts: opts}
}

// ProcessFile decodes the file at path and loads it using tx. It satisfies
// importer.FileFunc.
func (l *Loader) ProcessFile(ctx context.Context, tx db.Tx, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	recs, err := ndjson.DecodeLogs(f)
	if err != nil {
		return err
	}
	c, err := l.Transform(ctx, tx, path, recs)
	if err != nil {
		return err
	}

	metrics.RecordRows(l.opts.Job, schema.Time, int64(c.Time))
	metrics.RecordRows(l.opts.Job, schema.Users, int64(c.Users))
	metrics.RecordRows(l.opts.Job, schema.Songplays, int64(c.Songplays))
	log := logging.WithComponent("logs")
	log.Debug().Str("file", path).
		Int("plays", c.Plays).Int("songplays", c.Songplays).Int("matched", c.Matched).
		Int("skipped", c.Skipped).Msg("log file transformed")
	return nil
}

// Transform loads recs with default options. file is only used in skip
// reports and may be empty.
func Transform(ctx context.Context, tx db.Tx, s *schema.Schema, recs []domain.LogRecord) (Counts, error) {
	return New(s, Options{}).Transform(ctx, tx, "", recs)
}

// play is a NextSong record with its converted timestamp.
type play struct {
	rec   domain.LogRecord
	start time.Time
	hasTS bool
}

// Transform loads recs in the stage order described in the package comment.
func (l *Loader) Transform(ctx context.Context, tx db.Tx, file string, recs []domain.LogRecord) (Counts, error) {
	var c Counts

	plays := make([]play, 0, len(recs))
	for _, r := range recs {
		if !r.IsPlay() {
			continue
		}
		st, ok := r.StartTime()
		plays = append(plays, play{rec: r, start: st, hasTS: ok})
	}
	c.Plays = len(plays)

	timeSQL := l.schema.Insert(schema.Time)
	for _, p := range plays {
		if !p.hasTS {
			continue
		}
		if err := tx.Exec(ctx, timeSQL, domain.NewTimeRow(p.start).Args()...); err != nil {
			return c, fmt.Errorf("line %d: insert %s: %w", p.rec.Line, schema.Time, err)
		}
		c.Time++
	}

	userSQL := l.schema.Insert(schema.Users)
	for _, p := range plays {
		u, ok := p.rec.User()
		if !ok {
			continue
		}
		if err := tx.Exec(ctx, userSQL, u.Args()...); err != nil {
			return c, fmt.Errorf("line %d: insert %s: %w", p.rec.Line, schema.Users, err)
		}
		c.Users++
	}

	var bulk [][]any
	songplaySQL := l.schema.Insert(schema.Songplays)
	for _, p := range plays {
		if reason := skipReason(p); reason != "" {
			l.opts.Skips.Add(reason, file, p.rec.Line)
			metrics.RecordSkipped(l.opts.Job, reason, 1)
			c.Skipped++
			continue
		}

		songID, artistID, err := l.lookup(ctx, tx, p.rec)
		if err != nil {
			return c, fmt.Errorf("line %d: song lookup: %w", p.rec.Line, err)
		}
		if songID != nil {
			c.Matched++
		}

		args := p.rec.Songplay(p.start, songID, artistID).Args()
		if l.opts.BulkSongplays {
			bulk = append(bulk, args)
			continue
		}
		if err := tx.Exec(ctx, songplaySQL, args...); err != nil {
			return c, fmt.Errorf("line %d: insert %s: %w", p.rec.Line, schema.Songplays, err)
		}
		c.Songplays++
	}

	if len(bulk) > 0 {
		res := bulkload.Load(ctx, tx, schema.Songplays, l.schema.Columns(schema.Songplays), bulk)
		metrics.RecordBulkLoad(l.opts.Job, schema.Songplays, res.Err)
		if !res.OK() {
			return c, res.Err
		}
		c.Songplays += int(res.Rows)
	}
	return c, nil
}

// skipReason returns why a play cannot become a songplay, or "".
func skipReason(p play) string {
	switch {
	case !p.hasTS:
		return SkipNullTS
	case !p.rec.UserID.Valid:
		return SkipNullUser
	default:
		return ""
	}
}

// lookup resolves song_id and artist_id for a play. Both are nil when any
// lookup field is null or nothing matches; the first matching row wins.
func (l *Loader) lookup(ctx context.Context, tx db.Tx, r domain.LogRecord) (songID, artistID *string, err error) {
	if r.Song == nil || r.Artist == nil || r.Length == nil {
		return nil, nil, nil
	}
	err = tx.QueryRow(ctx, l.schema.SongLookup(), *r.Song, *r.Artist, *r.Length).Scan(&songID, &artistID)
	if errors.Is(err, db.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return songID, artistID, nil
}
