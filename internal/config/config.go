// Package config centralizes ETL configuration. Tunables live outside the
// code and are sourced, lowest precedence first, from built-in defaults, an
// optional YAML file named by CONFIG_FILE, environment variables and finally
// command-line flags. Flags are defined for every key so that `-help` shows
// all available knobs and their effective defaults.
//
// Typical usage:
//
//	cfg, err := config.Load() // reads os.Args and os.Environ
//
// For tests, prefer LoadFromArgs to keep them hermetic:
//
//	fs := flag.NewFlagSet("test", flag.ContinueOnError)
//	getenv := func(k string) string { return testEnv[k] }
//	cfg, err := config.LoadFromArgs(fs, getenv, []string{"-bulk_songplays"})
package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-sql-driver/mysql"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigFileEnv names the environment variable holding the YAML file path.
const ConfigFileEnv = "CONFIG_FILE"

// Metrics backends.
const (
	MetricsNone        = "none"
	MetricsPushgateway = "pushgateway"
	MetricsDatadog     = "datadog"
)

// Config holds all process configuration. All fields are plain values so the
// struct can be safely copied after construction. koanf tags are the YAML
// keys; each one is the lower-cased environment variable name.
type Config struct {
	// IO controls input trees and the skip report location.
	SongData   string `koanf:"song_data" validate:"required"`
	LogData    string `koanf:"log_data" validate:"required"`
	SkippedDir string `koanf:"skipped_dir"` // empty disables the skip report

	// DB describes the target database. DSN wins over the discrete parts.
	DBDriver   string `koanf:"db_driver" validate:"required,oneof=postgres sqlite sqlserver mysql"`
	DSN        string `koanf:"db_dsn"`
	DBUser     string `koanf:"db_user"`
	DBPassword string `koanf:"db_password"`
	DBHost     string `koanf:"db_host"`
	DBPort     string `koanf:"db_port" validate:"omitempty,numeric"`
	DBName     string `koanf:"db_name" validate:"required"`

	// Load behavior.
	EnsureSchema  bool   `koanf:"ensure_schema"`
	BulkSongplays bool   `koanf:"bulk_songplays"`
	SongplayKey   string `koanf:"songplay_key" validate:"oneof=serial natural"`

	// Observability.
	LogLevel       string `koanf:"log_level" validate:"oneof=trace debug info warn error disabled"`
	LogFormat      string `koanf:"log_format" validate:"oneof=json console"`
	MetricsBackend string `koanf:"metrics_backend" validate:"oneof=none pushgateway datadog"`
	PushgatewayURL string `koanf:"pushgateway_url" validate:"required_if=MetricsBackend pushgateway"`
	DatadogAddr    string `koanf:"datadog_addr" validate:"required_if=MetricsBackend datadog"`
	JobName        string `koanf:"job_name" validate:"required"`
}

// defaultConfig is the bottom layer.
func defaultConfig() Config {
	return Config{
		SongData:       "data/song_data",
		LogData:        "data/log_data",
		DBDriver:       "postgres",
		DBUser:         "student",
		DBPassword:     "student",
		DBHost:         "127.0.0.1",
		DBName:         "sparkifydb",
		SongplayKey:    "serial",
		LogLevel:       "info",
		LogFormat:      "json",
		MetricsBackend: MetricsNone,
		DatadogAddr:    "127.0.0.1:8125",
		JobName:        "sparkify",
	}
}

// fileLayer returns the defaults overlaid with the YAML file at path, if any.
func fileLayer(path string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// LoadFromArgs builds a Config by defining flags on fs, seeding each flag's
// default from getenv (falling back to the file layer), and then parsing
// args. Callers supply a private FlagSet, a getenv func (often backed by a
// map) and a synthetic arg slice.
//
// Precedence:
//  1. Built-in defaults.
//  2. The YAML file named by CONFIG_FILE.
//  3. Environment values.
//  4. Explicit CLI flags.
//
// The result is normalized and validated before it is returned.
func LoadFromArgs(fs *flag.FlagSet, getenv func(string) string, args []string) (*Config, error) {
	base, err := fileLayer(getenv(ConfigFileEnv))
	if err != nil {
		return nil, err
	}
	cfg := &Config{}

	str := func(k, d string) string {
		if v := getenv(k); v != "" {
			return v
		}
		return d
	}
	boolean := func(k string, d bool) bool {
		if v := strings.ToLower(getenv(k)); v != "" {
			switch v {
			case "1", "true", "yes", "on":
				return true
			case "0", "false", "no", "off":
				return false
			}
		}
		return d
	}

	// IO paths
	fs.StringVar(&cfg.SongData, "song_data", str("SONG_DATA", base.SongData), "Root of the song-metadata tree")
	fs.StringVar(&cfg.LogData, "log_data", str("LOG_DATA", base.LogData), "Root of the activity-log tree")
	fs.StringVar(&cfg.SkippedDir, "skipped_dir", str("SKIPPED_DIR", base.SkippedDir), "Directory for the skipped-songplays CSV (empty disables)")

	// DB connectivity
	fs.StringVar(&cfg.DBDriver, "db_driver", str("DB_DRIVER", base.DBDriver), "Database driver: postgres, sqlite, sqlserver (alias mssql) or mysql")
	fs.StringVar(&cfg.DSN, "dsn", str("DB_DSN", base.DSN), "Full DSN; overrides the discrete DB settings")
	fs.StringVar(&cfg.DBUser, "db_user", str("DB_USER", base.DBUser), "DB user")
	fs.StringVar(&cfg.DBPassword, "db_password", str("DB_PASSWORD", base.DBPassword), "DB password")
	fs.StringVar(&cfg.DBHost, "db_host", str("DB_HOST", base.DBHost), "DB host")
	fs.StringVar(&cfg.DBPort, "db_port", str("DB_PORT", base.DBPort), "DB port (driver default when empty)")
	fs.StringVar(&cfg.DBName, "db_name", str("DB_NAME", base.DBName), "DB name (file path stem for sqlite)")

	// Load behavior
	fs.BoolVar(&cfg.EnsureSchema, "ensure_schema", boolean("ENSURE_SCHEMA", base.EnsureSchema), "Create missing tables before loading")
	fs.BoolVar(&cfg.BulkSongplays, "bulk_songplays", boolean("BULK_SONGPLAYS", base.BulkSongplays), "Write songplays through the bulk loader")
	fs.StringVar(&cfg.SongplayKey, "songplay_key", str("SONGPLAY_KEY", base.SongplayKey), "Songplay conflict key: serial or natural")

	// Observability
	fs.StringVar(&cfg.LogLevel, "log_level", str("LOG_LEVEL", base.LogLevel), "Log level")
	fs.StringVar(&cfg.LogFormat, "log_format", str("LOG_FORMAT", base.LogFormat), "Log format: json or console")
	fs.StringVar(&cfg.MetricsBackend, "metrics_backend", str("METRICS_BACKEND", base.MetricsBackend), "Metrics backend: none, pushgateway or datadog")
	fs.StringVar(&cfg.PushgatewayURL, "pushgateway_url", str("PUSHGATEWAY_URL", base.PushgatewayURL), "Prometheus Pushgateway URL")
	fs.StringVar(&cfg.DatadogAddr, "datadog_addr", str("DATADOG_ADDR", base.DatadogAddr), "DogStatsD address host:port")
	fs.StringVar(&cfg.JobName, "job_name", str("JOB_NAME", base.JobName), "Job label for metrics")

	if args == nil {
		args = []string{}
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is the production entry point. It wires the loader to the process
// flag set, reads environment variables via os.Getenv and parses os.Args[1:].
func Load() (*Config, error) {
	return LoadFromArgs(flag.CommandLine, os.Getenv, os.Args[1:])
}

func (c *Config) normalize() {
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	if c.DBDriver == "mssql" {
		c.DBDriver = "sqlserver"
	}
	c.SongplayKey = strings.ToLower(strings.TrimSpace(c.SongplayKey))
	c.MetricsBackend = strings.ToLower(strings.TrimSpace(c.MetricsBackend))
	if c.MetricsBackend == "" {
		c.MetricsBackend = MetricsNone
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.LogFormat = strings.ToLower(c.LogFormat)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrBulkNeedsSerial rejects the bulk songplay path combined with the
// natural key, since bulk writes have no conflict handling.
var ErrBulkNeedsSerial = errors.New("config: bulk_songplays requires songplay_key=serial")

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config: %w", err)
	}
	if c.BulkSongplays && c.SongplayKey != "serial" {
		return ErrBulkNeedsSerial
	}
	return nil
}

// defaultPorts are used when DBPort is empty.
var defaultPorts = map[string]int{
	"postgres":  5432,
	"sqlserver": 1433,
	"mysql":     3306,
}

func (c *Config) hostPort() string {
	port := c.DBPort
	if port == "" {
		port = strconv.Itoa(defaultPorts[c.DBDriver])
	}
	return net.JoinHostPort(c.DBHost, port)
}

// ConnString returns DSN when set, otherwise a DSN assembled from the
// discrete settings in the selected driver's format.
func (c *Config) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	switch c.DBDriver {
	case "sqlite":
		return c.DBName + ".db"
	case "mysql":
		m := mysql.NewConfig()
		m.User = c.DBUser
		m.Passwd = c.DBPassword
		m.Net = "tcp"
		m.Addr = c.hostPort()
		m.DBName = c.DBName
		return m.FormatDSN()
	case "sqlserver":
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(c.DBUser, c.DBPassword),
			Host:     c.hostPort(),
			RawQuery: url.Values{"database": {c.DBName}}.Encode(),
		}
		return u.String()
	default:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(c.DBUser, c.DBPassword),
			Host:   c.hostPort(),
			Path:   "/" + c.DBName,
		}
		return u.String()
	}
}
