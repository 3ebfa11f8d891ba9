// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Auth         AuthConfig         `mapstructure:"auth"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Analysis     AnalysisConfig     `mapstructure:"analysis"`
	Reachability ReachabilityConfig `mapstructure:"reachability"`
	Crawler      CrawlerConfig      `mapstructure:"crawler"`
	Tavily       TavilyConfig       `mapstructure:"tavily"`
	Gemini       GeminiConfig       `mapstructure:"gemini"`
	BrightData   BrightDataConfig   `mapstructure:"brightdata"`
	Breaker      BreakerConfig      `mapstructure:"breaker"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Storage      StorageConfig      `mapstructure:"storage"`
	PubSub       PubSubConfig       `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// AuthConfig selects how the request owner is identified.
type AuthConfig struct {
	// Mode is "supabase" or "header".
	Mode              string        `mapstructure:"mode"`
	Header            string        `mapstructure:"header"`
	SupabaseURL       string        `mapstructure:"supabase_url"`
	JWTSecret         string        `mapstructure:"jwt_secret"`
	Audience          string        `mapstructure:"audience"`
	Leeway            time.Duration `mapstructure:"leeway"`
	JWKSRefreshPeriod time.Duration `mapstructure:"jwks_refresh_interval"`
}

// RateLimitConfig throttles submissions per owner.
type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	RPS     float64       `mapstructure:"rps"`
	Burst   int           `mapstructure:"burst"`
	IdleTTL time.Duration `mapstructure:"idle_ttl"`
}

// AnalysisConfig governs the orchestrator.
type AnalysisConfig struct {
	MaxCrawlResults int `mapstructure:"max_crawl_results"`
	// Timeout bounds a single pipeline run.
	Timeout time.Duration `mapstructure:"timeout"`
}

// ReachabilityConfig configures the HEAD probe.
type ReachabilityConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// CrawlerConfig picks the crawling provider and tunes the local ones.
type CrawlerConfig struct {
	// Provider is "tavily", "colly" or "headless".
	Provider      string         `mapstructure:"provider"`
	UserAgent     string         `mapstructure:"user_agent"`
	RespectRobots bool           `mapstructure:"respect_robots"`
	Timeout       time.Duration  `mapstructure:"timeout"`
	MaxPages      int            `mapstructure:"max_pages"`
	MaxDepth      int            `mapstructure:"max_depth"`
	MaxPageBytes  int            `mapstructure:"max_page_bytes"`
	Headless      HeadlessConfig `mapstructure:"headless"`
}

// HeadlessConfig configures the chromedp renderer.
type HeadlessConfig struct {
	MaxParallel       int           `mapstructure:"max_parallel"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
}

// TavilyConfig configures the hosted crawling API.
type TavilyConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	MaxDepth     int           `mapstructure:"max_depth"`
	Limit        int           `mapstructure:"limit"`
	ExtractDepth string        `mapstructure:"extract_depth"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// GeminiConfig configures the summarization provider.
type GeminiConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// BrightDataConfig configures the sentiment dataset provider.
type BrightDataConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	DatasetID  string        `mapstructure:"dataset_id"`
	Date       string        `mapstructure:"date"`
	NumOfPosts int           `mapstructure:"num_of_posts"`
	SortBy     string        `mapstructure:"sort_by"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// BreakerConfig wraps providers in circuit breakers.
type BreakerConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	OpenTimeout         time.Duration `mapstructure:"open_timeout"`
	HalfOpenMaxCalls    uint32        `mapstructure:"half_open_max_calls"`
}

// DatabaseConfig controls access to the record store.
type DatabaseConfig struct {
	// Driver is "postgres" or "memory".
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// StorageConfig selects where pipeline artifacts are archived.
type StorageConfig struct {
	// Backend is "none", "memory", "local" or "gcs".
	Backend   string `mapstructure:"backend"`
	Prefix    string `mapstructure:"prefix"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
}

// PubSubConfig holds metadata for terminal-status events.
type PubSubConfig struct {
	// Backend is "none", "memory" or "gcp".
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from defaults, an optional file and RADAR_* env vars.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("auth.mode", "supabase")
	v.SetDefault("auth.header", "X-Owner-ID")
	v.SetDefault("auth.supabase_url", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.audience", "authenticated")
	v.SetDefault("auth.leeway", "30s")
	v.SetDefault("auth.jwks_refresh_interval", "1h")
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.rps", 0.2)
	v.SetDefault("rate_limit.burst", 3)
	v.SetDefault("rate_limit.idle_ttl", "10m")
	v.SetDefault("analysis.max_crawl_results", 10)
	v.SetDefault("analysis.timeout", "4m")
	v.SetDefault("reachability.timeout", "5s")
	v.SetDefault("reachability.user_agent", "competition-radar/0.1")
	v.SetDefault("crawler.provider", "tavily")
	v.SetDefault("crawler.user_agent", "competition-radar/0.1")
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.timeout", "60s")
	v.SetDefault("crawler.max_pages", 10)
	v.SetDefault("crawler.max_depth", 2)
	v.SetDefault("crawler.max_page_bytes", 20000)
	v.SetDefault("crawler.headless.max_parallel", 2)
	v.SetDefault("crawler.headless.navigation_timeout", "45s")
	v.SetDefault("crawler.headless.settle_delay", "500ms")
	v.SetDefault("tavily.api_key", "")
	v.SetDefault("tavily.base_url", "https://api.tavily.com")
	v.SetDefault("tavily.max_depth", 2)
	v.SetDefault("tavily.limit", 20)
	v.SetDefault("tavily.extract_depth", "basic")
	v.SetDefault("tavily.timeout", "120s")
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta/openai")
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.max_tokens", 0)
	v.SetDefault("gemini.temperature", 0)
	v.SetDefault("gemini.timeout", "90s")
	v.SetDefault("brightdata.enabled", false)
	v.SetDefault("brightdata.api_key", "")
	v.SetDefault("brightdata.base_url", "https://api.brightdata.com")
	v.SetDefault("brightdata.dataset_id", "gd_lvz8ah06191smkebj4")
	v.SetDefault("brightdata.date", "Past year")
	v.SetDefault("brightdata.num_of_posts", 30)
	v.SetDefault("brightdata.sort_by", "Hot")
	v.SetDefault("brightdata.timeout", "30s")
	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.consecutive_failures", 5)
	v.SetDefault("breaker.open_timeout", "30s")
	v.SetDefault("breaker.half_open_max_calls", 1)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.table", "analyses")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", "30m")
	v.SetDefault("storage.backend", "none")
	v.SetDefault("storage.prefix", "analyses")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.local_dir", "")
	v.SetDefault("pubsub.backend", "none")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "analysis-events")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Logging.Level != "" {
		if _, err := zapcore.ParseLevel(strings.ToLower(c.Logging.Level)); err != nil {
			return fmt.Errorf("logging.level %q is not a zap level", c.Logging.Level)
		}
	}
	if c.Analysis.MaxCrawlResults <= 0 {
		return fmt.Errorf("analysis.max_crawl_results must be > 0")
	}
	if c.Analysis.Timeout <= 0 {
		return fmt.Errorf("analysis.timeout must be > 0")
	}
	if c.Reachability.Timeout <= 0 {
		return fmt.Errorf("reachability.timeout must be > 0")
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate_limit.rps and rate_limit.burst must be > 0 when rate limiting is enabled")
	}
	switch c.Crawler.Provider {
	case "tavily":
		if c.Tavily.APIKey == "" {
			return fmt.Errorf("tavily.api_key is required when crawler.provider is tavily")
		}
	case "colly":
		if c.Crawler.MaxPages <= 0 {
			return fmt.Errorf("crawler.max_pages must be > 0")
		}
	case "headless":
		if c.Crawler.Headless.MaxParallel <= 0 {
			return fmt.Errorf("crawler.headless.max_parallel must be > 0")
		}
	default:
		return fmt.Errorf("crawler.provider must be one of tavily, colly, headless (got %q)", c.Crawler.Provider)
	}
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("gemini.api_key is required")
	}
	if c.BrightData.Enabled && c.BrightData.APIKey == "" {
		return fmt.Errorf("brightdata.api_key is required when brightdata is enabled")
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be postgres or memory (got %q)", c.Database.Driver)
	}
	switch c.Storage.Backend {
	case "none", "memory":
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of none, memory, local, gcs (got %q)", c.Storage.Backend)
	}
	switch c.PubSub.Backend {
	case "none", "memory":
	case "gcp":
		if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic_name are required for the gcp backend")
		}
	default:
		return fmt.Errorf("pubsub.backend must be one of none, memory, gcp (got %q)", c.PubSub.Backend)
	}
	return nil
}

func (c Config) validateAuth() error {
	switch c.Auth.Mode {
	case "supabase":
		if c.Auth.SupabaseURL == "" && c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.supabase_url or auth.jwt_secret is required for supabase auth")
		}
	case "header":
		if c.Auth.Header == "" {
			return fmt.Errorf("auth.header is required for header auth")
		}
	default:
		return fmt.Errorf("auth.mode must be supabase or header (got %q)", c.Auth.Mode)
	}
	return nil
}
