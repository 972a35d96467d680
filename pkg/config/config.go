// Package config loads the offline proxy configuration from an optional
// YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/offline-cache/pkg/cache"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config is the proxy configuration. Environment variables override values
// read from the YAML file.
type Config struct {
	OriginURL           string        `yaml:"origin_url" env:"ORIGIN_URL"`
	ListenAddr          string        `yaml:"listen_addr" env:"LISTEN_ADDR"`
	Generation          string        `yaml:"generation" env:"CACHE_GENERATION"`
	PrecachePaths       []string      `yaml:"precache_paths" env:"PRECACHE_PATHS" envSeparator:","`
	PrecacheConcurrency int           `yaml:"precache_concurrency" env:"PRECACHE_CONCURRENCY"`
	StorageBackend      string        `yaml:"storage_backend" env:"STORAGE_BACKEND"`
	RedisURL            string        `yaml:"redis_url" env:"REDIS_URL"`
	RedisPrefix         string        `yaml:"redis_prefix" env:"REDIS_PREFIX"`
	SQLitePath          string        `yaml:"sqlite_path" env:"SQLITE_PATH"`
	HTTPTimeout         time.Duration `yaml:"http_timeout" env:"HTTP_TIMEOUT"`
	DialTimeout         time.Duration `yaml:"dial_timeout" env:"DIAL_TIMEOUT"`
	LogLevel            string        `yaml:"log_level" env:"LOG_LEVEL"`
	LogPretty           bool          `yaml:"log_pretty" env:"LOG_PRETTY"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		ListenAddr:          ":8080",
		Generation:          "v1",
		PrecacheConcurrency: 4,
		StorageBackend:      BackendMemory,
		RedisPrefix:         "offline-cache",
		SQLitePath:          "offline-cache.db",
		HTTPTimeout:         30 * time.Second,
		DialTimeout:         5 * time.Second,
		LogLevel:            "info",
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then environment variables. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config YAML: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required fields and value ranges.
func (c Config) Validate() error {
	if c.OriginURL == "" {
		return errors.New("ORIGIN_URL is required")
	}
	if _, err := c.Origin(); err != nil {
		return fmt.Errorf("invalid ORIGIN_URL: %w", err)
	}
	if c.ListenAddr == "" {
		return errors.New("LISTEN_ADDR is required")
	}
	if c.Generation == "" {
		return errors.New("CACHE_GENERATION is required")
	}
	if c.PrecacheConcurrency <= 0 {
		return fmt.Errorf("PRECACHE_CONCURRENCY must be positive, got %d", c.PrecacheConcurrency)
	}
	for _, p := range c.PrecachePaths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("precache path %q must start with /", p)
		}
	}
	if c.HTTPTimeout < 0 || c.DialTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}

	switch c.StorageBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis backend")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	return nil
}

// Origin parses OriginURL.
func (c Config) Origin() (cache.Origin, error) {
	return cache.ParseOrigin(c.OriginURL)
}
