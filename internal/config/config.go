// Package config resolves the immutable RunConfig for one invocation from
// flags, environment variables and an optional config file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/viper"

	"omop-lite/internal/cdm"
)

// Supported dialects.
const (
	DialectPostgres = "postgresql"
	DialectMSSQL    = "mssql"
)

// Viper keys. With AutomaticEnv each key is also read from its upper-case env var.
const (
	KeyHost                     = "db_host"
	KeyPort                     = "db_port"
	KeyUser                     = "db_user"
	KeyPassword                 = "db_password"
	KeyName                     = "db_name"
	KeyDialect                  = "dialect"
	KeySchema                   = "schema_name"
	KeyDataDir                  = "data_dir"
	KeySynthetic                = "synthetic"
	KeySyntheticNumber          = "synthetic_number"
	KeySyntheticDir             = "synthetic_dir"
	KeyDelimiter                = "delimiter"
	KeyFTSCreate                = "fts_create"
	KeyLogLevel                 = "log_level"
	KeyConnectTimeout           = "connect_timeout"
	KeyBatchSize                = "batch_size"
	KeySkipConstraintsOnFailure = "skip_constraints_on_failure"
)

// Defaults for every key. Port and schema depend on the dialect, see dialectDefaults.
const (
	DefaultHost            = "db"
	DefaultUser            = "postgres"
	DefaultPassword        = "password"
	DefaultName            = "omop"
	DefaultDialect         = DialectPostgres
	DefaultDataDir         = "data"
	DefaultSyntheticNumber = 100
	DefaultSyntheticDir    = ""
	DefaultDelimiter       = `\t`
	DefaultLogLevel        = "INFO"
	DefaultConnectTimeout  = 30 * time.Second
	DefaultBatchSize       = 1000
)

// SyntheticSizes are the bundled synthetic dataset sizes.
var SyntheticSizes = []int{100, 1000}

type dialectDefaults struct {
	Port   int
	Schema string
}

var defaultsByDialect = map[string]dialectDefaults{
	DialectPostgres: {Port: 5432, Schema: "public"},
	DialectMSSQL:    {Port: 1433, Schema: "dbo"},
}

// RunConfig is the resolved configuration of one run. It is built once and
// never mutated afterwards.
type RunConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string

	Dialect string
	Schema  string

	DataDir         string
	Synthetic       bool
	SyntheticNumber int
	SyntheticDir    string // external synthetic datasets; empty means bundled
	Delimiter       rune

	sourceDir string

	FTSCreate                bool
	SkipConstraintsOnFailure bool

	LogLevel       slog.Level
	ConnectTimeout time.Duration
	BatchSize      int
}

// Resolve builds a RunConfig from v, applying defaults and validating every key.
// Errors wrap cdm.ErrConfig and name the offending key.
func Resolve(v *viper.Viper) (*RunConfig, error) {
	cfg := &RunConfig{
		Host:            stringOr(v, KeyHost, DefaultHost),
		User:            stringOr(v, KeyUser, DefaultUser),
		Password:        stringOr(v, KeyPassword, DefaultPassword),
		Database:        stringOr(v, KeyName, DefaultName),
		Dialect:         strings.ToLower(stringOr(v, KeyDialect, DefaultDialect)),
		DataDir:         stringOr(v, KeyDataDir, DefaultDataDir),
		SyntheticDir:    stringOr(v, KeySyntheticDir, DefaultSyntheticDir),
		Synthetic:       v.GetBool(KeySynthetic),
		SyntheticNumber: DefaultSyntheticNumber,
		ConnectTimeout:  DefaultConnectTimeout,
		BatchSize:       DefaultBatchSize,

		SkipConstraintsOnFailure: v.GetBool(KeySkipConstraintsOnFailure),
	}

	defaults, ok := defaultsByDialect[cfg.Dialect]
	if !ok {
		return nil, fmt.Errorf("%w: %s must be either 'postgresql' or 'mssql', got %q", cdm.ErrConfig, KeyDialect, cfg.Dialect)
	}

	cfg.Port = defaults.Port
	if v.IsSet(KeyPort) {
		port, err := strconv.Atoi(strings.TrimSpace(v.GetString(KeyPort)))
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("%w: %s must be a port number, got %q", cdm.ErrConfig, KeyPort, v.GetString(KeyPort))
		}
		cfg.Port = port
	}
	cfg.Schema = stringOr(v, KeySchema, defaults.Schema)

	if v.IsSet(KeySyntheticNumber) {
		n, err := strconv.Atoi(strings.TrimSpace(v.GetString(KeySyntheticNumber)))
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be a number, got %q", cdm.ErrConfig, KeySyntheticNumber, v.GetString(KeySyntheticNumber))
		}
		cfg.SyntheticNumber = n
	}
	if !isSupportedSize(cfg.SyntheticNumber) {
		return nil, fmt.Errorf("%w: %s must be one of %v, got %d", cdm.ErrConfig, KeySyntheticNumber, SyntheticSizes, cfg.SyntheticNumber)
	}

	delim, err := ParseDelimiter(stringOr(v, KeyDelimiter, DefaultDelimiter))
	if err != nil {
		return nil, fmt.Errorf("%w: %s %v", cdm.ErrConfig, KeyDelimiter, err)
	}
	cfg.Delimiter = delim

	cfg.FTSCreate = presence(v, KeyFTSCreate)
	if cfg.FTSCreate && cfg.Dialect != DialectPostgres {
		return nil, fmt.Errorf("%w: %s is only supported for the postgresql dialect", cdm.ErrConfig, KeyFTSCreate)
	}

	level, err := ParseLevel(stringOr(v, KeyLogLevel, DefaultLogLevel))
	if err != nil {
		return nil, fmt.Errorf("%w: %s %v", cdm.ErrConfig, KeyLogLevel, err)
	}
	cfg.LogLevel = level

	if v.IsSet(KeyConnectTimeout) {
		d, err := time.ParseDuration(v.GetString(KeyConnectTimeout))
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("%w: %s must be a positive duration, got %q", cdm.ErrConfig, KeyConnectTimeout, v.GetString(KeyConnectTimeout))
		}
		cfg.ConnectTimeout = d
	}

	if v.IsSet(KeyBatchSize) {
		n, err := strconv.Atoi(strings.TrimSpace(v.GetString(KeyBatchSize)))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: %s must be a positive number, got %q", cdm.ErrConfig, KeyBatchSize, v.GetString(KeyBatchSize))
		}
		cfg.BatchSize = n
	}

	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: %s must not be empty", cdm.ErrConfig, KeyHost)
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("%w: %s must not be empty", cdm.ErrConfig, KeyName)
	}
	if cfg.Schema == "" {
		return nil, fmt.Errorf("%w: %s must not be empty", cdm.ErrConfig, KeySchema)
	}

	return cfg, nil
}

// SourceDir is the directory data files are read from: a prepared source
// set by WithSourceDir, the external synthetic dataset of the configured size,
// or the user's data directory.
func (c *RunConfig) SourceDir() string {
	if c.sourceDir != "" {
		return c.sourceDir
	}
	if c.Synthetic && c.SyntheticDir != "" {
		return filepath.Join(c.SyntheticDir, strconv.Itoa(c.SyntheticNumber))
	}
	if c.Synthetic {
		return ""
	}
	return c.DataDir
}

// BundledSynthetic reports whether the source is a bundled synthetic dataset
// that has to be prepared before loading.
func (c *RunConfig) BundledSynthetic() bool {
	return c.Synthetic && c.SyntheticDir == "" && c.sourceDir == ""
}

// WithSourceDir returns a copy of c that reads its source files from dir.
func (c *RunConfig) WithSourceDir(dir string) *RunConfig {
	cp := *c
	cp.sourceDir = dir
	return &cp
}

// SourceDelimiter is the field separator of the source files. The 1000-person
// synthetic dataset is comma separated regardless of the configured delimiter.
func (c *RunConfig) SourceDelimiter() rune {
	if c.Synthetic && c.SyntheticNumber == 1000 {
		return ','
	}
	return c.Delimiter
}

// SourceQuoted reports whether source fields may be wrapped in double quotes.
// Vocabulary exports contain bare quote characters, so quoting is off unless
// the source is the 1000-person synthetic dataset.
func (c *RunConfig) SourceQuoted() bool {
	return c.Synthetic && c.SyntheticNumber == 1000
}

// CheckSource verifies the source directory exists.
func (c *RunConfig) CheckSource() error {
	if c.BundledSynthetic() {
		return fmt.Errorf("%w: %s: synthetic dataset %d has not been prepared", cdm.ErrConfig, KeySynthetic, c.SyntheticNumber)
	}
	dir := c.SourceDir()
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		key := KeyDataDir
		if c.Synthetic {
			key = KeySyntheticDir
		}
		return fmt.Errorf("%w: %s: data directory %s does not exist", cdm.ErrConfig, key, dir)
	}
	return nil
}

// IsDefaultSchema reports whether Schema is the dialect's built-in schema,
// which is never created or dropped. Quoted postgresql identifiers are case
// sensitive, so "PUBLIC" is a schema of its own there.
func (c *RunConfig) IsDefaultSchema() bool {
	def := defaultsByDialect[c.Dialect].Schema
	if c.Dialect == DialectMSSQL {
		return strings.EqualFold(c.Schema, def)
	}
	return c.Schema == def
}

// ParseDelimiter accepts a single character or one of the escapes `\t`, "tab".
func ParseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case `\t`, "tab", "\t":
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == '\n' || r == '\r' || r == '"' {
		return 0, fmt.Errorf("must not be a newline or quote, got %q", s)
	}
	return r, nil
}

// ParseLevel maps DEBUG, INFO, WARN/WARNING and ERROR to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO", "":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR", "CRITICAL":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown level %q", s)
}

func stringOr(v *viper.Viper, key, def string) string {
	if !v.IsSet(key) {
		return def
	}
	return v.GetString(key)
}

// presence treats a key as enabled when it is set at all, unless its value is
// an explicit false.
func presence(v *viper.Viper, key string) bool {
	if !v.IsSet(key) {
		return false
	}
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return true
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return true
	}
	return b
}

func isSupportedSize(n int) bool {
	for _, s := range SyntheticSizes {
		if s == n {
			return true
		}
	}
	return false
}
