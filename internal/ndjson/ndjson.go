// Package ndjson decodes line-delimited JSON files (one object per line) into
// the typed records of package domain.
//
// Blank lines are skipped. Any other line must be a JSON object; a malformed
// line fails the whole file with its 1-based line number.
package ndjson

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/goccy/go-json"

	"sparkify/internal/domain"
)

// maxLineBytes bounds a single record.
const maxLineBytes = 16 << 20

// EachLine calls fn for every non-blank line of r.
func EachLine(r io.Reader, fn func(line int, raw []byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), maxLineBytes)

	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		if raw[0] != '{' {
			return fmt.Errorf("line %d: not a JSON object", line)
		}
		if err := fn(line, raw); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("line %d: %w", line+1, err)
	}
	return nil
}

// DecodeSongs decodes song-metadata records. Every key in
// domain.SongRequiredKeys must be present on every line; values may be null.
func DecodeSongs(r io.Reader) ([]domain.SongRecord, error) {
	var out []domain.SongRecord
	err := EachLine(r, func(line int, raw []byte) error {
		var keys map[string]json.RawMessage
		if err := json.Unmarshal(raw, &keys); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		for _, k := range domain.SongRequiredKeys {
			if _, ok := keys[k]; !ok {
				return fmt.Errorf("line %d: missing required field %q", line, k)
			}
		}

		var rec domain.SongRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		rec.Line = line
		out = append(out, rec)
		return nil
	})
	return out, err
}

// DecodeLogs decodes activity-log records. Absent keys decode as null.
func DecodeLogs(r io.Reader) ([]domain.LogRecord, error) {
	var out []domain.LogRecord
	err := EachLine(r, func(line int, raw []byte) error {
		var rec domain.LogRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		rec.Line = line
		out = append(out, rec)
		return nil
	})
	return out, err
}
