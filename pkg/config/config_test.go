package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.Generation != "v1" {
		t.Errorf("Generation = %q, want v1", cfg.Generation)
	}
	if cfg.PrecacheConcurrency != 4 {
		t.Errorf("PrecacheConcurrency = %d, want 4", cfg.PrecacheConcurrency)
	}
	if cfg.StorageBackend != BackendMemory {
		t.Errorf("StorageBackend = %q, want memory", cfg.StorageBackend)
	}
	if cfg.HTTPTimeout != 30*time.Second || cfg.DialTimeout != 5*time.Second {
		t.Errorf("timeouts = %v/%v, want 30s/5s", cfg.HTTPTimeout, cfg.DialTimeout)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("ORIGIN_URL", "https://app.example.com")
	t.Setenv("CACHE_GENERATION", "v7")
	t.Setenv("PRECACHE_PATHS", "/offline.html,/app.css")
	t.Setenv("STORAGE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/cache.db")
	t.Setenv("HTTP_TIMEOUT", "10s")
	t.Setenv("LOG_PRETTY", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Generation != "v7" {
		t.Errorf("Generation = %q, want v7", cfg.Generation)
	}
	if len(cfg.PrecachePaths) != 2 || cfg.PrecachePaths[1] != "/app.css" {
		t.Errorf("PrecachePaths = %v", cfg.PrecachePaths)
	}
	if cfg.StorageBackend != BackendSQLite || cfg.SQLitePath != "/tmp/cache.db" {
		t.Errorf("storage = %q %q", cfg.StorageBackend, cfg.SQLitePath)
	}
	if cfg.HTTPTimeout != 10*time.Second {
		t.Errorf("HTTPTimeout = %v, want 10s", cfg.HTTPTimeout)
	}
	if !cfg.LogPretty {
		t.Error("LogPretty = false, want true")
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, default should survive", cfg.ListenAddr)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
origin_url: http://localhost:3000
listen_addr: ":9090"
generation: v2
precache_paths:
  - /index.html
storage_backend: redis
redis_url: redis://localhost:6379/0
dial_timeout: 2s
`)
	t.Setenv("CACHE_GENERATION", "v3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.OriginURL != "http://localhost:3000" {
		t.Errorf("OriginURL = %q", cfg.OriginURL)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want :9090", cfg.ListenAddr)
	}
	if cfg.Generation != "v3" {
		t.Errorf("Generation = %q, env should override file", cfg.Generation)
	}
	if cfg.DialTimeout != 2*time.Second {
		t.Errorf("DialTimeout = %v, want 2s", cfg.DialTimeout)
	}
	if cfg.RedisPrefix != "offline-cache" {
		t.Errorf("RedisPrefix = %q, default should survive", cfg.RedisPrefix)
	}

	origin, err := cfg.Origin()
	if err != nil {
		t.Fatalf("Origin failed: %v", err)
	}
	if origin.String() != "http://localhost:3000" {
		t.Errorf("Origin() = %s", origin)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("bad yaml", func(t *testing.T) {
		if _, err := Load(writeFile(t, "origin_url: [unclosed")); err == nil {
			t.Error("expected error for malformed YAML")
		}
	})

	t.Run("bad env value", func(t *testing.T) {
		t.Setenv("ORIGIN_URL", "https://app.example.com")
		t.Setenv("PRECACHE_CONCURRENCY", "many")
		if _, err := Load(""); err == nil {
			t.Error("expected error for non-numeric PRECACHE_CONCURRENCY")
		}
	})
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.OriginURL = "https://app.example.com"

	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing origin", mutate: func(c *Config) { c.OriginURL = "" }, errorMsg: "ORIGIN_URL is required"},
		{name: "relative origin", mutate: func(c *Config) { c.OriginURL = "/app" }, errorMsg: "invalid ORIGIN_URL"},
		{name: "missing generation", mutate: func(c *Config) { c.Generation = "" }, errorMsg: "CACHE_GENERATION is required"},
		{name: "zero concurrency", mutate: func(c *Config) { c.PrecacheConcurrency = 0 }, errorMsg: "PRECACHE_CONCURRENCY must be positive"},
		{name: "relative precache path", mutate: func(c *Config) { c.PrecachePaths = []string{"app.js"} }, errorMsg: "must start with /"},
		{name: "negative timeout", mutate: func(c *Config) { c.HTTPTimeout = -time.Second }, errorMsg: "must not be negative"},
		{name: "redis without url", mutate: func(c *Config) { c.StorageBackend = BackendRedis }, errorMsg: "REDIS_URL is required"},
		{name: "sqlite without path", mutate: func(c *Config) { c.StorageBackend = BackendSQLite; c.SQLitePath = "" }, errorMsg: "SQLITE_PATH is required"},
		{name: "unknown backend", mutate: func(c *Config) { c.StorageBackend = "etcd" }, errorMsg: "unknown STORAGE_BACKEND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("error = %v, want containing %q", err, tt.errorMsg)
			}
		})
	}
}
