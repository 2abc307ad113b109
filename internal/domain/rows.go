package domain

import "time"

// Each row type's Args method returns values in the table's canonical insert
// column order (see package schema).

// SongRow is a songs dimension row.
type SongRow struct {
	SongID   *string
	Title    *string
	ArtistID *string
	Year     *int
	Duration *float64
}

// Args returns song_id, title, artist_id, year, duration.
func (r SongRow) Args() []any {
	return []any{nullable(r.SongID), nullable(r.Title), nullable(r.ArtistID), nullable(r.Year), nullable(r.Duration)}
}

// ArtistRow is an artists dimension row.
type ArtistRow struct {
	ArtistID  *string
	Name      *string
	Location  *string
	Latitude  *float64
	Longitude *float64
}

// Args returns artist_id, name, location, latitude, longitude.
func (r ArtistRow) Args() []any {
	return []any{nullable(r.ArtistID), nullable(r.Name), nullable(r.Location), nullable(r.Latitude), nullable(r.Longitude)}
}

// UserRow is a users dimension row.
type UserRow struct {
	UserID    int64
	FirstName *string
	LastName  *string
	Gender    *string
	Level     *string
}

// Args returns user_id, first_name, last_name, gender, level.
func (r UserRow) Args() []any {
	return []any{r.UserID, nullable(r.FirstName), nullable(r.LastName), nullable(r.Gender), nullable(r.Level)}
}

// TimeRow is a time dimension row. All fields derive from StartTime.
type TimeRow struct {
	StartTime time.Time
	Hour      int
	Day       int
	Week      int
	Month     int
	Year      int
	Weekday   int // 0 = Monday
}

// NewTimeRow derives the calendar fields of t in UTC. Week is the ISO 8601
// week number; Weekday counts from Monday = 0.
func NewTimeRow(t time.Time) TimeRow {
	t = t.UTC()
	_, week := t.ISOWeek()
	return TimeRow{
		StartTime: t,
		Hour:      t.Hour(),
		Day:       t.Day(),
		Week:      week,
		Month:     int(t.Month()),
		Year:      t.Year(),
		Weekday:   (int(t.Weekday()) + 6) % 7,
	}
}

// Args returns start_time, hour, day, week, month, year, weekday.
func (r TimeRow) Args() []any {
	return []any{r.StartTime, r.Hour, r.Day, r.Week, r.Month, r.Year, r.Weekday}
}

// SongplayRow is a songplays fact row. SongID and ArtistID stay nil when the
// natural-key lookup finds no match.
type SongplayRow struct {
	StartTime time.Time
	UserID    int64
	Level     *string
	SongID    *string
	ArtistID  *string
	SessionID *int
	Location  *string
	UserAgent *string
}

// Args returns start_time, user_id, level, song_id, artist_id, session_id,
// location, user_agent.
func (r SongplayRow) Args() []any {
	return []any{
		r.StartTime, r.UserID, nullable(r.Level), nullable(r.SongID),
		nullable(r.ArtistID), nullable(r.SessionID), nullable(r.Location), nullable(r.UserAgent),
	}
}

// nullable unwraps p, returning an untyped nil for a nil pointer so drivers
// bind SQL NULL.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
