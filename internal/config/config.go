// Package config loads the modplan configuration file.
//
// A configuration names the backend, the request parameters plans read for
// keys and control values, the discriminator values that select backend
// operations and the bookkeeping column names. Every section is optional;
// missing values keep their defaults.
//
//	store:
//	  driver: sqlite3
//	  dsn: modplan.db
//	  statement_cache: 256
//	params:
//	  content_id: contentId
//	  revision: revision
//	discriminators:
//	  insert: insert
//	columns:
//	  revision: revision
//	engine:
//	  max_rows: 10000
//	log:
//	  level: info
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/roach88/modplan/internal/engine"
	"github.com/roach88/modplan/internal/ir"
	"github.com/roach88/modplan/internal/modify"
	"github.com/roach88/modplan/internal/querysql"
	"github.com/roach88/modplan/internal/store"
)

// StoreConfig selects the relational backend.
type StoreConfig struct {
	Driver         string `yaml:"driver"`
	DSN            string `yaml:"dsn"`
	StatementCache int    `yaml:"statement_cache"`
}

// EngineConfig tunes request execution.
type EngineConfig struct {
	// MaxRows caps the rows one request may dispatch. 0 disables the cap.
	MaxRows int `yaml:"max_rows"`
}

// LogConfig sets the CLI log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Config is the whole configuration file.
type Config struct {
	Store          StoreConfig           `yaml:"store"`
	Params         modify.ParamNames     `yaml:"params"`
	Discriminators modify.Discriminators `yaml:"discriminators"`
	Columns        ir.SystemColumns      `yaml:"columns"`
	Engine         EngineConfig          `yaml:"engine"`
	Log            LogConfig             `yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:         "sqlite3",
			DSN:            "modplan.db",
			StatementCache: store.DefaultStatementCacheSize,
		},
		Params:         modify.DefaultParamNames(),
		Discriminators: modify.DefaultDiscriminators(),
		Columns:        ir.DefaultSystemColumns(),
		Engine:         EngineConfig{MaxRows: engine.DefaultMaxRows},
		Log:            LogConfig{Level: "info"},
	}
}

// Load reads a configuration file over the defaults. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks that every name is set and that names meant to be told
// apart are distinct.
func (c *Config) Validate() error {
	var errs []error

	if _, err := querysql.ParseDialect(c.Store.Driver); err != nil {
		errs = append(errs, fmt.Errorf("store.driver: %w", err))
	}
	if c.Store.DSN == "" {
		errs = append(errs, errors.New("store.dsn is required"))
	}
	if c.Store.StatementCache < 0 {
		errs = append(errs, errors.New("store.statement_cache must not be negative"))
	}
	if c.Engine.MaxRows < 0 {
		errs = append(errs, errors.New("engine.max_rows must not be negative"))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	p := c.Params
	errs = append(errs, distinct("params", map[string]string{
		"content_id":    p.ContentID,
		"revision":      p.Revision,
		"child_id":      p.ChildID,
		"parent_id":     p.ParentID,
		"discriminator": p.Discriminator,
		"document":      p.Document,
	})...)

	d := c.Discriminators
	errs = append(errs, distinct("discriminators", map[string]string{
		"insert": d.Insert,
		"update": d.Update,
		"delete": d.Delete,
	})...)

	cols := c.Columns
	errs = append(errs, distinct("columns", map[string]string{
		"content_id":       cols.ContentID,
		"revision":         cols.Revision,
		"edit_lock":        cols.EditLock,
		"last_modified":    cols.LastModified,
		"last_modified_by": cols.LastModifiedBy,
		"child_id":         cols.ChildID,
		"parent_id":        cols.ParentID,
		"row_order":        cols.RowOrder,
	})...)

	return errors.Join(errs...)
}

// LogLevel returns the configured log level.
func (c *Config) LogLevel() zapcore.Level {
	l, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

// distinct reports empty values and values shared by two keys of a section.
func distinct(section string, values map[string]string) []error {
	var errs []error
	seen := make(map[string]string)
	for _, key := range slices.Sorted(maps.Keys(values)) {
		v := values[key]
		if v == "" {
			errs = append(errs, fmt.Errorf("%s.%s is required", section, key))
			continue
		}
		if other, dup := seen[v]; dup {
			errs = append(errs, fmt.Errorf("%s.%s and %s.%s are both %q", section, other, section, key, v))
			continue
		}
		seen[v] = key
	}
	return errs
}
