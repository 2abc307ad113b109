// Package domain defines the typed input records parsed from the song and
// activity-log files, and the rows derived from them for each table.
//
// Nullable source fields are pointers; a nil pointer is stored as SQL NULL.
package domain

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// NextSong is the page value marking an actual song play.
const NextSong = "NextSong"

// SongRequiredKeys lists the keys every song record must carry.
var SongRequiredKeys = []string{
	"song_id", "title", "artist_id", "year", "duration",
	"artist_name", "artist_location", "artist_latitude", "artist_longitude",
}

// SongRecord is one line of a song-metadata file.
type SongRecord struct {
	Line int `json:"-"`

	SongID          *string  `json:"song_id"`
	Title           *string  `json:"title"`
	ArtistID        *string  `json:"artist_id"`
	Year            *int     `json:"year"` // 0 means unknown in the source data
	Duration        *float64 `json:"duration"`
	ArtistName      *string  `json:"artist_name"`
	ArtistLocation  *string  `json:"artist_location"`
	ArtistLatitude  *float64 `json:"artist_latitude"`
	ArtistLongitude *float64 `json:"artist_longitude"`
	NumSongs        *int     `json:"num_songs"`
}

// Song returns the songs row for the record.
func (r SongRecord) Song() SongRow {
	return SongRow{
		SongID:   r.SongID,
		Title:    r.Title,
		ArtistID: r.ArtistID,
		Year:     r.Year,
		Duration: r.Duration,
	}
}

// Artist returns the artists row for the record.
func (r SongRecord) Artist() ArtistRow {
	return ArtistRow{
		ArtistID:  r.ArtistID,
		Name:      r.ArtistName,
		Location:  r.ArtistLocation,
		Latitude:  r.ArtistLatitude,
		Longitude: r.ArtistLongitude,
	}
}

// LogRecord is one line of an activity-log file. Absent keys decode as nil.
type LogRecord struct {
	Line int `json:"-"`

	Artist        *string  `json:"artist"`
	Auth          *string  `json:"auth"`
	FirstName     *string  `json:"firstName"`
	Gender        *string  `json:"gender"`
	ItemInSession *int     `json:"itemInSession"`
	LastName      *string  `json:"lastName"`
	Length        *float64 `json:"length"`
	Level         *string  `json:"level"`
	Location      *string  `json:"location"`
	Method        *string  `json:"method"`
	Page          *string  `json:"page"`
	Registration  *float64 `json:"registration"`
	SessionID     *int     `json:"sessionId"`
	Song          *string  `json:"song"`
	Status        *int     `json:"status"`
	TS            *int64   `json:"ts"` // epoch milliseconds
	UserAgent     *string  `json:"userAgent"`
	UserID        UserID   `json:"userId"`
}

// IsPlay reports whether the record is a song-play event.
func (r LogRecord) IsPlay() bool {
	return r.Page != nil && *r.Page == NextSong
}

// StartTime converts ts to a UTC timestamp. ok is false when ts is null.
func (r LogRecord) StartTime() (t time.Time, ok bool) {
	if r.TS == nil {
		return time.Time{}, false
	}
	return time.UnixMilli(*r.TS).UTC(), true
}

// User returns the users row for the record. ok is false when the record
// carries no user id.
func (r LogRecord) User() (row UserRow, ok bool) {
	if !r.UserID.Valid {
		return UserRow{}, false
	}
	return UserRow{
		UserID:    r.UserID.Value,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Gender:    r.Gender,
		Level:     r.Level,
	}, true
}

// Songplay returns the fact row for a record with a user and a timestamp.
// songID and artistID are the lookup result and may be nil.
func (r LogRecord) Songplay(start time.Time, songID, artistID *string) SongplayRow {
	return SongplayRow{
		StartTime: start,
		UserID:    r.UserID.Value,
		Level:     r.Level,
		SongID:    songID,
		ArtistID:  artistID,
		SessionID: r.SessionID,
		Location:  r.Location,
		UserAgent: r.UserAgent,
	}
}

// UserID is the log's userId field. The source emits it as a number, a
// numeric string, or an empty string for logged-out sessions; empty and null
// both mean no user.
type UserID struct {
	Value int64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *UserID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*u = UserID{}
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}

	raw := string(b)
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("userId: %w", err)
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			return nil
		}
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || f != float64(int64(f)) {
			return fmt.Errorf("userId: invalid value %s", string(b))
		}
		v = int64(f)
	}
	*u = UserID{Value: v, Valid: true}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (u UserID) MarshalJSON() ([]byte, error) {
	if !u.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(u.Value, 10)), nil
}
