// Package schema holds the star-schema definition: one fact table (songplays)
// and four dimensions (users, songs, artists, time).
//
// A Schema is built once per process with New and is read-only afterwards.
// Every insert statement is rendered from the table's canonical column list,
// which is also the order callers use when building argument tuples, so the
// SQL text and the row layout cannot drift apart.
package schema

import (
	"fmt"
	"strings"
)

// Table names.
const (
	Songplays = "songplays"
	Users     = "users"
	Songs     = "songs"
	Artists   = "artists"
	Time      = "time"
)

// Songplay key modes.
const (
	// SongplayKeySerial targets the synthetic songplay_id on conflict. A fresh
	// serial never collides, so every play is inserted.
	SongplayKeySerial = "serial"

	// SongplayKeyNatural adds UNIQUE (start_time, user_id, session_id) and
	// targets it, so replaying the same log file does not duplicate facts.
	SongplayKeyNatural = "natural"
)

// Kind is a logical column type; each dialect maps it to a concrete SQL type.
type Kind int

const (
	Text      Kind = iota // free text
	KeyText               // text used as a key or join column
	Int                   // 32-bit integer
	Float                 // double precision
	Timestamp             // timestamp without time zone, UTC by convention
	Serial                // auto-assigned integer key
)

// Column is a single column definition.
type Column struct {
	Name    string
	Kind    Kind
	NotNull bool
}

// Action is what an insert does when its conflict target already exists.
type Action int

const (
	DoNothing Action = iota
	DoUpdate
)

// Conflict describes an insert's conflict policy.
type Conflict struct {
	Target []string
	Action Action
	// Set lists the columns overwritten with the incoming values on DoUpdate.
	Set []string
}

// Table is a full table definition.
type Table struct {
	Name       string
	Columns    []Column
	PrimaryKey []string
	Unique     []string
	// Insert is the canonical ordered column list for inserts.
	Insert   []string
	Conflict Conflict
}

// Options tunes schema construction.
type Options struct {
	// SongplayKey is SongplayKeySerial (default) or SongplayKeyNatural.
	SongplayKey string
}

// Schema is an immutable, dialect-specific set of statements.
type Schema struct {
	dialect Dialect
	r       renderer
	order   []string
	tables  map[string]Table
	drop    map[string]string
	create  map[string]string
	insert  map[string]string
	lookup  string
}

// New builds the schema for dialect d.
func New(d Dialect, opts Options) (*Schema, error) {
	r, err := rendererFor(d)
	if err != nil {
		return nil, err
	}

	key := opts.SongplayKey
	if key == "" {
		key = SongplayKeySerial
	}
	if key != SongplayKeySerial && key != SongplayKeyNatural {
		return nil, fmt.Errorf("schema: unknown songplay key %q", key)
	}

	defs := definitions(key)
	s := &Schema{
		dialect: d,
		r:       r,
		tables:  make(map[string]Table, len(defs)),
		drop:    make(map[string]string, len(defs)),
		create:  make(map[string]string, len(defs)),
		insert:  make(map[string]string, len(defs)),
	}
	for _, t := range defs {
		s.order = append(s.order, t.Name)
		s.tables[t.Name] = t
		s.drop[t.Name] = r.dropTable(t)
		s.create[t.Name] = r.createTable(t)
		s.insert[t.Name] = r.insert(t)
	}
	s.lookup = songLookup(r)
	return s, nil
}

// Dialect reports the dialect the statements were rendered for.
func (s *Schema) Dialect() Dialect { return s.dialect }

// TableNames returns the table names in create order.
func (s *Schema) TableNames() []string { return append([]string(nil), s.order...) }

// Table returns the definition of the named table.
func (s *Schema) Table(name string) (Table, bool) {
	t, ok := s.tables[name]
	return t, ok
}

// Columns returns a copy of the canonical insert column list for table.
func (s *Schema) Columns(table string) []string {
	return append([]string(nil), s.tables[table].Insert...)
}

// Insert returns the parameterized insert statement for table. It panics on
// an unknown table name, which is a programming error.
func (s *Schema) Insert(table string) string {
	q, ok := s.insert[table]
	if !ok {
		panic("schema: unknown table " + table)
	}
	return q
}

// Create returns the create-if-absent statement for table.
func (s *Schema) Create(table string) string { return s.create[table] }

// Drop returns the drop-if-exists statement for table.
func (s *Schema) Drop(table string) string { return s.drop[table] }

// CreateStatements returns create statements in table order.
func (s *Schema) CreateStatements() []string {
	out := make([]string, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, s.create[n])
	}
	return out
}

// DropStatements returns drop statements in table order.
func (s *Schema) DropStatements() []string {
	out := make([]string, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, s.drop[n])
	}
	return out
}

// SongLookup returns the query resolving (song_id, artist_id) from
// (title, artist name, duration), in that argument order.
func (s *Schema) SongLookup() string { return s.lookup }

// Quote quotes an identifier for the schema's dialect.
func (s *Schema) Quote(ident string) string { return s.r.quote(ident) }

// Placeholder returns the n-th (1-based) positional parameter marker.
func (s *Schema) Placeholder(n int) string { return s.r.placeholder(n) }

func definitions(songplayKey string) []Table {
	songplays := Table{
		Name: Songplays,
		Columns: []Column{
			{Name: "songplay_id", Kind: Serial, NotNull: true},
			{Name: "start_time", Kind: Timestamp, NotNull: true},
			{Name: "user_id", Kind: Int, NotNull: true},
			{Name: "level", Kind: Text},
			{Name: "song_id", Kind: KeyText},
			{Name: "artist_id", Kind: KeyText},
			{Name: "session_id", Kind: Int},
			{Name: "location", Kind: Text},
			{Name: "user_agent", Kind: Text},
		},
		PrimaryKey: []string{"songplay_id"},
		Insert: []string{
			"start_time", "user_id", "level", "song_id",
			"artist_id", "session_id", "location", "user_agent",
		},
		Conflict: Conflict{Target: []string{"songplay_id"}, Action: DoNothing},
	}
	if songplayKey == SongplayKeyNatural {
		songplays.Unique = []string{"start_time", "user_id", "session_id"}
		songplays.Conflict.Target = songplays.Unique
	}

	return []Table{
		songplays,
		{
			Name: Users,
			Columns: []Column{
				{Name: "user_id", Kind: Int, NotNull: true},
				{Name: "first_name", Kind: Text},
				{Name: "last_name", Kind: Text},
				{Name: "gender", Kind: Text},
				{Name: "level", Kind: Text},
			},
			PrimaryKey: []string{"user_id"},
			Insert:     []string{"user_id", "first_name", "last_name", "gender", "level"},
			Conflict: Conflict{
				Target: []string{"user_id"},
				Action: DoUpdate,
				Set:    []string{"gender", "level"},
			},
		},
		{
			Name: Songs,
			Columns: []Column{
				{Name: "song_id", Kind: KeyText, NotNull: true},
				{Name: "title", Kind: Text},
				{Name: "artist_id", Kind: KeyText, NotNull: true},
				{Name: "year", Kind: Int},
				{Name: "duration", Kind: Float},
			},
			PrimaryKey: []string{"song_id"},
			Insert:     []string{"song_id", "title", "artist_id", "year", "duration"},
			Conflict:   Conflict{Target: []string{"song_id"}, Action: DoNothing},
		},
		{
			Name: Artists,
			Columns: []Column{
				{Name: "artist_id", Kind: KeyText, NotNull: true},
				{Name: "name", Kind: Text},
				{Name: "location", Kind: Text},
				{Name: "latitude", Kind: Float},
				{Name: "longitude", Kind: Float},
			},
			PrimaryKey: []string{"artist_id"},
			Insert:     []string{"artist_id", "name", "location", "latitude", "longitude"},
			Conflict:   Conflict{Target: []string{"artist_id"}, Action: DoNothing},
		},
		{
			Name: Time,
			Columns: []Column{
				{Name: "start_time", Kind: Timestamp, NotNull: true},
				{Name: "hour", Kind: Int},
				{Name: "day", Kind: Int},
				{Name: "week", Kind: Int},
				{Name: "month", Kind: Int},
				{Name: "year", Kind: Int},
				{Name: "weekday", Kind: Int},
			},
			PrimaryKey: []string{"start_time"},
			Insert:     []string{"start_time", "hour", "day", "week", "month", "year", "weekday"},
			Conflict:   Conflict{Target: []string{"start_time"}, Action: DoNothing},
		},
	}
}

func songLookup(r renderer) string {
	return fmt.Sprintf(
		"SELECT s.%s, a.%s FROM %s s JOIN %s a ON s.%s = a.%s WHERE s.%s = %s AND a.%s = %s AND s.%s = %s",
		r.quote("song_id"), r.quote("artist_id"),
		r.quote(Songs), r.quote(Artists),
		r.quote("artist_id"), r.quote("artist_id"),
		r.quote("title"), r.placeholder(1),
		r.quote("name"), r.placeholder(2),
		r.quote("duration"), r.placeholder(3),
	)
}

// targetInserted reports whether every conflict target column is part of the
// insert column list, i.e. whether the conflict can fire at all.
func targetInserted(t Table) bool {
	in := make(map[string]struct{}, len(t.Insert))
	for _, c := range t.Insert {
		in[c] = struct{}{}
	}
	for _, c := range t.Conflict.Target {
		if _, ok := in[c]; !ok {
			return false
		}
	}
	return len(t.Conflict.Target) > 0
}

func quoteAll(r renderer, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = r.quote(c)
	}
	return out
}

func placeholders(r renderer, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = r.placeholder(i + 1)
	}
	return strings.Join(ph, ", ")
}
