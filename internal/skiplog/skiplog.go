// Package skiplog records input records that were deliberately left out of a
// table, one CSV row per record, with per-reason counters.
package skiplog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// SongplaysFile is the report name for plays left out of songplays.
const SongplaysFile = "skipped_songplays.csv"

// Header is the first row of every skip report.
var Header = []string{"reason", "file", "line"}

// Stats appends skipped records to a CSV file. A nil *Stats discards
// everything, so callers may pass one unconditionally.
type Stats struct {
	mu      sync.Mutex
	reasons map[string]int
	f       *os.File
	w       *csv.Writer
}

// New creates path (and any missing parent directory), writes the header
// and returns a Stats appending to it. Close flushes and closes the file.
func New(path string) (*Stats, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write header %s: %w", path, err)
	}
	return &Stats{reasons: make(map[string]int), f: f, w: w}, nil
}

// Add records one skipped input line.
func (s *Stats) Add(reason, file string, line int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reasons[reason]++
	_ = s.w.Write([]string{reason, file, strconv.Itoa(line)})
}

// Counts returns a copy of the per-reason counters.
func (s *Stats) Counts() map[string]int {
	out := map[string]int{}
	if s == nil {
		return out
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.reasons {
		out[k] = v
	}
	return out
}

// Close flushes buffered rows and closes the file.
func (s *Stats) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		_ = s.f.Close()
		return err
	}
	return s.f.Close()
}
