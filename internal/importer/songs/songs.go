// Package songs loads song-metadata files into the songs and artists tables.
package songs

import (
	"context"
	"fmt"
	"os"

	"sparkify/internal/db"
	"sparkify/internal/domain"
	"sparkify/internal/metrics"
	"sparkify/internal/ndjson"
	"sparkify/internal/schema"
)

// Tree labels the song input tree in logs and metrics.
const Tree = "songs"

// Loader processes song files against one schema.
type Loader struct {
	schema *schema.Schema
	job    string
}

// New returns a Loader writing through s. job labels emitted metrics.
func New(s *schema.Schema, job string) *Loader {
	return &Loader{schema: s, job: job}
}

// ProcessFile decodes the file at path and inserts its rows using tx.
// It satisfies importer.FileFunc.
func (l *Loader) ProcessFile(ctx context.Context, tx db.Tx, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	recs, err := ndjson.DecodeSongs(f)
	if err != nil {
		return err
	}
	if err := Transform(ctx, tx, l.schema, recs); err != nil {
		return err
	}
	metrics.RecordRows(l.job, schema.Songs, int64(len(recs)))
	metrics.RecordRows(l.job, schema.Artists, int64(len(recs)))
	return nil
}

// Transform executes, for each record, the songs insert and then the artists
// insert. Both ignore conflicts, so reloading a file changes nothing.
func Transform(ctx context.Context, tx db.Tx, s *schema.Schema, recs []domain.SongRecord) error {
	songSQL, artistSQL := s.Insert(schema.Songs), s.Insert(schema.Artists)
	for _, rec := range recs {
		if err := tx.Exec(ctx, songSQL, rec.Song().Args()...); err != nil {
			return fmt.Errorf("line %d: insert %s: %w", rec.Line, schema.Songs, err)
		}
		if err := tx.Exec(ctx, artistSQL, rec.Artist().Args()...); err != nil {
			return fmt.Errorf("line %d: insert %s: %w", rec.Line, schema.Artists, err)
		}
	}
	return nil
}
