package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sparkify/internal/config"
	"sparkify/internal/db"
	"sparkify/internal/importer"
	"sparkify/internal/metrics"
	"sparkify/internal/skiplog"
	"sparkify/internal/testinfra"
)

// fakeDB satisfies db.DB without touching real sockets or files.
type fakeDB struct {
	execs  []string
	closed bool
}

func (f *fakeDB) Exec(_ context.Context, sql string, _ ...any) error {
	f.execs = append(f.execs, sql)
	return nil
}
func (f *fakeDB) BeginTx(context.Context) (db.Tx, error) { return nil, errors.New("not used") }
func (f *fakeDB) Close(context.Context) error {
	f.closed = true
	return nil
}

func noBackend(*config.Config, string) (metrics.Backend, error) { return nil, nil }

// testCfg returns a baseline config; tests tweak fields to exercise branches.
func testCfg() *config.Config {
	return &config.Config{
		SongData:       "songs",
		LogData:        "logs",
		DBDriver:       "postgres",
		DSN:            "postgres://u:p@h:5432/n",
		DBName:         "n",
		SongplayKey:    "serial",
		MetricsBackend: config.MetricsNone,
		JobName:        "test",
	}
}

func TestDefaultDeps_ProvidesNonNilProductionWiring(t *testing.T) {
	t.Parallel()

	d := defaultDeps()
	if d.Open == nil || d.ProcessData == nil || d.NewBackend == nil || d.Stdout == nil {
		t.Fatalf("production deps must be non-nil: %+v", d)
	}
}

// TestRun_OrderAndOptions checks that the song tree loads before the log tree
// on the same connection, that EnsureSchema creates all tables first, and
// that the connection is closed.
func TestRun_OrderAndOptions(t *testing.T) {
	t.Parallel()

	cfg := testCfg()
	cfg.EnsureSchema = true
	conn := &fakeDB{}

	var roots, trees []string
	deps := Deps{
		Open: func(_ context.Context, driver, dsn string) (db.DB, error) {
			if driver != "postgres" || dsn != cfg.DSN {
				t.Fatalf("Open(%q, %q)", driver, dsn)
			}
			return conn, nil
		},
		ProcessData: func(_ context.Context, c db.DB, root string, fn importer.FileFunc, opts importer.Options) error {
			if c != conn || fn == nil || opts.Job != "test" {
				t.Fatalf("unexpected ProcessData args: %v %v", c, opts)
			}
			if len(conn.execs) != 5 {
				t.Fatalf("schema not ensured before loading: %d statements", len(conn.execs))
			}
			roots = append(roots, root)
			trees = append(trees, opts.Tree)
			return nil
		},
		NewBackend: noBackend,
		Stdout:     &bytes.Buffer{},
	}

	if err := run(context.Background(), cfg, "run-1", deps); err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.Join(roots, ",") != "songs,logs" || strings.Join(trees, ",") != "songs,logs" {
		t.Fatalf("roots=%v trees=%v", roots, trees)
	}
	if !conn.closed {
		t.Fatal("connection not closed")
	}
}

func TestRun_SongFailureStopsBeforeLogs(t *testing.T) {
	t.Parallel()

	boom := errors.New("bad file")
	calls := 0
	deps := Deps{
		Open: func(context.Context, string, string) (db.DB, error) { return &fakeDB{}, nil },
		ProcessData: func(context.Context, db.DB, string, importer.FileFunc, importer.Options) error {
			calls++
			return boom
		},
		NewBackend: noBackend,
		Stdout:     &bytes.Buffer{},
	}

	err := run(context.Background(), testCfg(), "run-1", deps)
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "song data") {
		t.Fatalf("want wrapped song error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("log tree attempted after song failure (%d calls)", calls)
	}
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()

	okOpen := func(context.Context, string, string) (db.DB, error) { return &fakeDB{}, nil }
	okProcess := func(context.Context, db.DB, string, importer.FileFunc, importer.Options) error { return nil }

	cases := []struct {
		name string
		cfg  func(*config.Config)
		deps Deps
		want string
	}{
		{
			name: "open",
			deps: Deps{
				Open:        func(context.Context, string, string) (db.DB, error) { return nil, errors.New("refused") },
				ProcessData: okProcess,
				NewBackend:  noBackend,
			},
			want: "open postgres: refused",
		},
		{
			name: "backend",
			deps: Deps{
				Open:        okOpen,
				ProcessData: okProcess,
				NewBackend:  func(*config.Config, string) (metrics.Backend, error) { return nil, errors.New("no gateway") },
			},
			want: "metrics backend",
		},
		{
			name: "dialect",
			cfg:  func(c *config.Config) { c.DBDriver = "oracle" },
			deps: Deps{Open: okOpen, ProcessData: okProcess, NewBackend: noBackend},
			want: "unsupported dialect",
		},
		{
			name: "log tree",
			deps: Deps{
				Open: okOpen,
				ProcessData: func(_ context.Context, _ db.DB, root string, _ importer.FileFunc, _ importer.Options) error {
					if root == "logs" {
						return errors.New("bad log")
					}
					return nil
				},
				NewBackend: noBackend,
			},
			want: "log data: bad log",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := testCfg()
			if tc.cfg != nil {
				tc.cfg(cfg)
			}
			err := run(context.Background(), cfg, "run-1", tc.deps)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	cfg := testCfg()
	b, err := newBackend(cfg, "run-1")
	if err != nil || b != nil {
		t.Fatalf("none: got %v, %v", b, err)
	}

	cfg.MetricsBackend = config.MetricsDatadog
	cfg.DatadogAddr = "127.0.0.1:8125"
	if b, err := newBackend(cfg, "run-1"); err != nil || b == nil {
		t.Fatalf("datadog: got %v, %v", b, err)
	}

	cfg.MetricsBackend = config.MetricsPushgateway
	cfg.PushgatewayURL = "http://127.0.0.1:9091"
	if b, err := newBackend(cfg, "run-1"); err != nil || b == nil {
		t.Fatalf("pushgateway: got %v, %v", b, err)
	}
}

func write(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

// TestRun_SQLiteEndToEnd runs the production wiring against a SQLite file.
func TestRun_SQLiteEndToEnd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	songRoot := filepath.Join(dir, "song_data")
	logRoot := filepath.Join(dir, "log_data")
	write(t, filepath.Join(songRoot, "A/A/A/TRAAAAA.json"),
		`{"num_songs":1,"artist_id":"AR1","artist_latitude":null,"artist_longitude":null,"artist_location":"","artist_name":"Casual","song_id":"SO1","title":"Intro","duration":218.93179,"year":0}`)
	write(t, filepath.Join(logRoot, "2018/11/2018-11-01-events.json"),
		`{"artist":"Casual","auth":"Logged In","firstName":"Ryan","gender":"M","itemInSession":0,"lastName":"Smith","length":218.93179,"level":"free","location":"SF","method":"PUT","page":"NextSong","sessionId":583,"song":"Intro","status":200,"ts":1541207953796,"userAgent":"Mozilla","userId":"26"}
{"artist":null,"auth":"Logged In","firstName":"Ryan","gender":"M","itemInSession":1,"lastName":"Smith","length":null,"level":"free","location":"SF","method":"GET","page":"Home","sessionId":583,"song":null,"status":200,"ts":1541207960796,"userAgent":"Mozilla","userId":"26"}
{"artist":"Other","auth":"Logged Out","page":"NextSong","sessionId":12,"song":"x","length":1.0,"ts":1541207970796,"userId":""}`)

	cfg := testCfg()
	cfg.SongData, cfg.LogData = songRoot, logRoot
	cfg.DBDriver = "sqlite"
	cfg.DSN = filepath.Join(dir, "etl.db")
	cfg.EnsureSchema = true
	cfg.BulkSongplays = true
	cfg.SkippedDir = filepath.Join(dir, "skipped")

	var out bytes.Buffer
	deps := defaultDeps()
	deps.NewBackend = noBackend
	deps.Stdout = &out
	if err := run(context.Background(), cfg, "run-1", deps); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := "1 files found in " + songRoot + "\n1/1 files processed.\n" +
		"1 files found in " + logRoot + "\n1/1 files processed.\n"
	if out.String() != want {
		t.Fatalf("progress = %q, want %q", out.String(), want)
	}

	conn, err := db.Open(context.Background(), "sqlite", cfg.DSN)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close(context.Background()) })

	for table, n := range map[string]int{"songs": 1, "artists": 1, "users": 1, `"time"`: 2, "songplays": 1} {
		if got := testinfra.Count(t, conn, table, ""); got != n {
			t.Fatalf("%s rows = %d, want %d", table, got, n)
		}
	}
	if got := testinfra.Count(t, conn, "songplays", "song_id = ? AND artist_id = ?", "SO1", "AR1"); got != 1 {
		t.Fatal("songplay not matched to the loaded song")
	}

	report, err := os.ReadFile(filepath.Join(cfg.SkippedDir, skiplog.SongplaysFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(report), "null_user,") {
		t.Fatalf("skip report = %q", report)
	}
}
