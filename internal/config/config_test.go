package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
logging:
  development: false
  level: warn
auth:
  mode: header
  header: X-User
rate_limit:
  enabled: true
  rps: 1.5
  burst: 4
analysis:
  max_crawl_results: 7
  timeout: 2m
crawler:
  provider: colly
  max_pages: 25
  respect_robots: false
gemini:
  api_key: g-key
  model: gemini-2.5-pro
breaker:
  consecutive_failures: 3
  open_timeout: 1m
database:
  driver: memory
storage:
  backend: local
  local_dir: /tmp/radar
pubsub:
  backend: memory
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Logging.Development || cfg.Logging.Level != "warn" {
		t.Fatalf("expected server and logging overrides, got %+v %+v", cfg.Server, cfg.Logging)
	}
	if cfg.Auth.Mode != "header" || cfg.Auth.Header != "X-User" {
		t.Fatalf("expected header auth, got %+v", cfg.Auth)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.RPS != 1.5 || cfg.RateLimit.Burst != 4 {
		t.Fatalf("expected rate limit overrides, got %+v", cfg.RateLimit)
	}
	if cfg.Analysis.MaxCrawlResults != 7 || cfg.Analysis.Timeout != 2*time.Minute {
		t.Fatalf("expected analysis overrides, got %+v", cfg.Analysis)
	}
	if cfg.Crawler.Provider != "colly" || cfg.Crawler.MaxPages != 25 || cfg.Crawler.RespectRobots {
		t.Fatalf("expected crawler overrides, got %+v", cfg.Crawler)
	}
	if cfg.Gemini.Model != "gemini-2.5-pro" || cfg.Gemini.Timeout != 90*time.Second {
		t.Fatalf("expected gemini override with default timeout, got %+v", cfg.Gemini)
	}
	if cfg.Breaker.ConsecutiveFailures != 3 || cfg.Breaker.OpenTimeout != time.Minute {
		t.Fatalf("expected breaker overrides, got %+v", cfg.Breaker)
	}
	if cfg.Storage.Backend != "local" || cfg.Storage.LocalDir != "/tmp/radar" {
		t.Fatalf("expected storage overrides, got %+v", cfg.Storage)
	}
	if cfg.Crawler.Headless.NavigationTimeout != 45*time.Second {
		t.Fatalf("expected nested headless default, got %v", cfg.Crawler.Headless.NavigationTimeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RADAR_AUTH_MODE", "header")
	t.Setenv("RADAR_GEMINI_API_KEY", "env-key")
	t.Setenv("RADAR_CRAWLER_PROVIDER", "tavily")
	t.Setenv("RADAR_TAVILY_API_KEY", "tvly-key")
	t.Setenv("RADAR_DATABASE_DRIVER", "postgres")
	t.Setenv("RADAR_DATABASE_DSN", "postgres://localhost/radar")
	t.Setenv("RADAR_SERVER_PORT", "7070")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Gemini.APIKey != "env-key" || cfg.Tavily.APIKey != "tvly-key" {
		t.Fatalf("expected API keys from env, got gemini=%q tavily=%q", cfg.Gemini.APIKey, cfg.Tavily.APIKey)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected port from env, got %d", cfg.Server.Port)
	}
	if cfg.Analysis.MaxCrawlResults != 10 || cfg.Tavily.ExtractDepth != "basic" {
		t.Fatalf("expected defaults to apply, got %+v %+v", cfg.Analysis, cfg.Tavily)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func validConfig() Config {
	return Config{
		Server:       ServerConfig{Port: 8080},
		Auth:         AuthConfig{Mode: "header", Header: "X-Owner-ID"},
		Analysis:     AnalysisConfig{MaxCrawlResults: 10, Timeout: time.Minute},
		Reachability: ReachabilityConfig{Timeout: 5 * time.Second},
		Crawler:      CrawlerConfig{Provider: "tavily"},
		Tavily:       TavilyConfig{APIKey: "t"},
		Gemini:       GeminiConfig{APIKey: "g"},
		Database:     DatabaseConfig{Driver: "memory"},
		Storage:      StorageConfig{Backend: "none"},
		PubSub:       PubSubConfig{Backend: "none"},
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected base config to validate, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"unknown log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"zero result cap", func(c *Config) { c.Analysis.MaxCrawlResults = 0 }, "analysis.max_crawl_results"},
		{"zero probe timeout", func(c *Config) { c.Reachability.Timeout = 0 }, "reachability.timeout"},
		{"unknown auth mode", func(c *Config) { c.Auth.Mode = "basic" }, "auth.mode"},
		{"supabase without keys", func(c *Config) { c.Auth.Mode = "supabase" }, "auth.supabase_url"},
		{"rate limit without burst", func(c *Config) { c.RateLimit = RateLimitConfig{Enabled: true, RPS: 1} }, "rate_limit"},
		{"tavily without key", func(c *Config) { c.Tavily.APIKey = "" }, "tavily.api_key"},
		{"unknown crawler", func(c *Config) { c.Crawler.Provider = "scrapy" }, "crawler.provider"},
		{"headless without parallelism", func(c *Config) { c.Crawler.Provider = "headless" }, "crawler.headless.max_parallel"},
		{"gemini without key", func(c *Config) { c.Gemini.APIKey = "" }, "gemini.api_key"},
		{"brightdata without key", func(c *Config) { c.BrightData.Enabled = true }, "brightdata.api_key"},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }, "database.dsn"},
		{"gcs without bucket", func(c *Config) { c.Storage.Backend = "gcs" }, "storage.gcs_bucket"},
		{"local without dir", func(c *Config) { c.Storage.Backend = "local" }, "storage.local_dir"},
		{"gcp pubsub without project", func(c *Config) { c.PubSub.Backend = "gcp" }, "pubsub.project_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
