// Package config loads the server configuration from YAML with viper.
// Every scalar setting can be overridden by an OPTIMADE_ environment
// variable, e.g. OPTIMADE_SERVER_ADDR for server.addr.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/nlstn/go-optimade/internal/transform"
)

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "OPTIMADE"

// Backends a collection can be stored in.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds the server configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Paging        PagingConfig        `mapstructure:"paging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Collections   []CollectionConfig  `mapstructure:"collections"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// BasePath is the path prefix collections are served under.
	BasePath string `mapstructure:"base_path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type PagingConfig struct {
	DefaultPageLimit int `mapstructure:"default_page_limit"`
	MaxPageLimit     int `mapstructure:"max_page_limit"`
}

type ObservabilityConfig struct {
	ServiceName       string `mapstructure:"service_name"`
	DetailedDBTracing bool   `mapstructure:"detailed_db_tracing"`
	FilterTracing     bool   `mapstructure:"filter_tracing"`
	ServerTiming      bool   `mapstructure:"server_timing"`
}

// CollectionConfig describes one served collection.
type CollectionConfig struct {
	Name    string `mapstructure:"name"`
	Backend string `mapstructure:"backend"`
	// DSN is the database connection string; SQLite defaults to memory.
	DSN string `mapstructure:"dsn"`
	// DataFile is a JSON array of entries loaded at startup.
	DataFile  string           `mapstructure:"data_file"`
	Transform transform.Config `mapstructure:"transform"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	return &Config{
		Server:  ServerConfig{Addr: ":5000", BasePath: "/v1"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Paging:  PagingConfig{DefaultPageLimit: 20, MaxPageLimit: 500},
		Observability: ObservabilityConfig{
			ServiceName:  "optimade-server",
			ServerTiming: true,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.base_path", d.Server.BasePath)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("paging.default_page_limit", d.Paging.DefaultPageLimit)
	v.SetDefault("paging.max_page_limit", d.Paging.MaxPageLimit)
	v.SetDefault("observability.service_name", d.Observability.ServiceName)
	v.SetDefault("observability.detailed_db_tracing", d.Observability.DetailedDBTracing)
	v.SetDefault("observability.filter_tracing", d.Observability.FilterTracing)
	v.SetDefault("observability.server_timing", d.Observability.ServerTiming)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads the configuration file at path. An empty path searches
// optimade.yaml in the user config directory, the working directory and
// ./config; finding none yields the defaults.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("optimade")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "optimade"))
		}
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}
	return decode(v)
}

// Read parses YAML configuration from r.
func Read(r io.Reader) (*Config, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("config: server.addr must not be empty")
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: logging.format must be text or json, got %q", c.Logging.Format)
	}
	if c.Paging.DefaultPageLimit <= 0 || c.Paging.MaxPageLimit <= 0 {
		return errors.New("config: page limits must be positive")
	}
	if c.Paging.DefaultPageLimit > c.Paging.MaxPageLimit {
		return fmt.Errorf("config: default page limit %d exceeds max page limit %d",
			c.Paging.DefaultPageLimit, c.Paging.MaxPageLimit)
	}

	seen := make(map[string]bool, len(c.Collections))
	for i, coll := range c.Collections {
		if coll.Name == "" {
			return fmt.Errorf("config: collection %d has no name", i)
		}
		if strings.Contains(coll.Name, "/") {
			return fmt.Errorf("config: collection name %q must not contain '/'", coll.Name)
		}
		if seen[coll.Name] {
			return fmt.Errorf("config: collection %q is defined twice", coll.Name)
		}
		seen[coll.Name] = true

		switch coll.Backend {
		case BackendMemory, BackendSQLite:
		case BackendPostgres:
			if coll.DSN == "" {
				return fmt.Errorf("config: collection %q: postgres needs a dsn", coll.Name)
			}
		default:
			return fmt.Errorf("config: collection %q: unknown backend %q", coll.Name, coll.Backend)
		}
		if err := coll.Transform.Validate(); err != nil {
			return fmt.Errorf("config: collection %q: %w", coll.Name, err)
		}
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: invalid logging.level %q", s)
	}
	return level, nil
}

// Logger builds the logger described by the logging section.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Logging.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
