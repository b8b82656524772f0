// Package config loads server configuration from a YAML file, environment
// variables, and defaults, in ascending precedence of defaults < file < env.
// Environment variables use the LATTICE_ prefix with underscores for
// nesting, e.g. LATTICE_STORAGE_BACKEND=postgres.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full server configuration tree.
type Config struct {
	Listen  string  `mapstructure:"listen" yaml:"listen"`
	DataDir string  `mapstructure:"datadir" yaml:"datadir"`
	Storage Storage `mapstructure:"storage" yaml:"storage"`
	Locking Locking `mapstructure:"locking" yaml:"locking"`
	Search  Search  `mapstructure:"search" yaml:"search"`
	Log     Log     `mapstructure:"log" yaml:"log"`
}

// Storage selects and configures the metadata backend.
type Storage struct {
	// Backend is one of sqlite, postgres, mysql, mssql.
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Path is the database file for the sqlite backend. Empty derives
	// <datadir>/lattice.db.
	Path string `mapstructure:"path" yaml:"path"`
	// DSN is the connection string for server backends.
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// Locking configures the table-backed object locks taken during ingest.
type Locking struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	TTL     time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// Search tunes query execution.
type Search struct {
	// MaxResults caps a single search page. Requests asking for more are
	// clamped.
	MaxResults int `mapstructure:"maxresults" yaml:"maxresults"`
	// RebuildWorkers bounds concurrent blob reads during index rebuilds.
	RebuildWorkers int `mapstructure:"rebuildworkers" yaml:"rebuildworkers"`
}

// Log configures the structured logger.
type Log struct {
	// Level is debug, info, warn, or error.
	Level string `mapstructure:"level" yaml:"level"`
	// Format is text or json.
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:  "127.0.0.1:8401",
		DataDir: "./data",
		Storage: Storage{Backend: "sqlite"},
		Locking: Locking{Enabled: true, TTL: 30 * time.Second},
		Search:  Search{MaxResults: 1000, RebuildWorkers: 4},
		Log:     Log{Level: "info", Format: "text"},
	}
}

// Load reads configuration. path may be empty, in which case only defaults
// and environment variables apply; a named file that does not exist is an
// error.
func Load(path string) (*Config, error) {
	v := viper.New()
	def := Default()
	v.SetDefault("listen", def.Listen)
	v.SetDefault("datadir", def.DataDir)
	v.SetDefault("storage.backend", def.Storage.Backend)
	v.SetDefault("storage.path", def.Storage.Path)
	v.SetDefault("storage.dsn", def.Storage.DSN)
	v.SetDefault("locking.enabled", def.Locking.Enabled)
	v.SetDefault("locking.ttl", def.Locking.TTL)
	v.SetDefault("search.maxresults", def.Search.MaxResults)
	v.SetDefault("search.rebuildworkers", def.Search.RebuildWorkers)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)

	v.SetEnvPrefix("LATTICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "sqlite", "":
	case "postgres", "mysql", "mssql":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage backend %q requires storage.dsn", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Locking.TTL < 0 {
		return fmt.Errorf("locking.ttl must not be negative")
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.maxresults must be positive")
	}
	return nil
}

// DatabasePath resolves the sqlite file location.
func (c *Config) DatabasePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	return filepath.Join(c.DataDir, "lattice.db")
}

// CollectionsDir is where new collections put their blob directories unless
// the caller names one explicitly.
func (c *Config) CollectionsDir() string {
	return filepath.Join(c.DataDir, "collections")
}

// Render returns the configuration as YAML.
func (c *Config) Render() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}
	return out, nil
}

// WriteTemplate writes a commented starter config file. Refuses to
// overwrite an existing file.
func WriteTemplate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	out, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("render config template: %w", err)
	}
	header := "# Lattice server configuration.\n# Environment variables override: LATTICE_STORAGE_BACKEND, LATTICE_LISTEN, ...\n"
	if err := os.WriteFile(path, append([]byte(header), out...), 0o640); err != nil {
		return fmt.Errorf("write config template: %w", err)
	}
	return nil
}
