package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/adot20/product-search-backend/internal/domain"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Cache     CacheConfig
	Search    SearchConfig
	Fetch     FetchConfig
	Renderer  RendererConfig
	Matching  MatchingConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type string        `mapstructure:"type"` // "sqlite", "postgres" or "memory"
	DSN  string        `mapstructure:"dsn"`
	TTL  time.Duration `mapstructure:"ttl"`
}

// SearchConfig holds the orchestrator budgets
type SearchConfig struct {
	SiteTimeout   time.Duration `mapstructure:"site_timeout"`
	SearchTimeout time.Duration `mapstructure:"search_timeout"`
	Sites         []string      `mapstructure:"sites"`
}

// FetchConfig holds outbound HTTP politeness settings
type FetchConfig struct {
	DelayMin      time.Duration `mapstructure:"delay_min"`
	DelayMax      time.Duration `mapstructure:"delay_max"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	MaxBodyBytes  int64         `mapstructure:"max_body_bytes"`
	Proxy         string        `mapstructure:"proxy"`
}

// RendererConfig holds headless browser settings
type RendererConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Headless  bool   `mapstructure:"headless"`
	NoSandbox bool   `mapstructure:"no_sandbox"`
	Bin       string `mapstructure:"bin"`
	MaxPages  int    `mapstructure:"max_pages"`
}

// MatchingConfig holds fuzzy title matching settings
type MatchingConfig struct {
	MinScore           int  `mapstructure:"min_score"`
	MinTermLength      int  `mapstructure:"min_term_length"`
	MaxCandidates      int  `mapstructure:"max_candidates"`
	EnableDebugLogging bool `mapstructure:"debug_logging"`
}

// RateLimitConfig holds inbound rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"` // requests per minute
	Burst int `mapstructure:"burst"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
	File   string `mapstructure:"file"`   // empty logs to stdout only
}

// Load loads configuration from a .env file, environment variables and config files
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pricelens/")

	// Environment variable settings: server.port -> PRICELENS_SERVER_PORT
	v.SetEnvPrefix("PRICELENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", "10s")

	// Cache defaults
	v.SetDefault("cache.type", "sqlite")
	v.SetDefault("cache.dsn", "")
	v.SetDefault("cache.ttl", "1h")

	// Search defaults
	v.SetDefault("search.site_timeout", "8s")
	v.SetDefault("search.search_timeout", "20s")
	sites := make([]string, 0, len(domain.AllSites()))
	for _, s := range domain.AllSites() {
		sites = append(sites, s.String())
	}
	v.SetDefault("search.sites", sites)

	// Fetch defaults
	v.SetDefault("fetch.delay_min", "500ms")
	v.SetDefault("fetch.delay_max", "1500ms")
	v.SetDefault("fetch.rate_per_second", 1.0)
	v.SetDefault("fetch.burst", 2)
	v.SetDefault("fetch.max_attempts", 2)
	v.SetDefault("fetch.max_body_bytes", 10<<20)
	v.SetDefault("fetch.proxy", "")

	// Renderer defaults
	v.SetDefault("renderer.enabled", false)
	v.SetDefault("renderer.headless", true)
	v.SetDefault("renderer.no_sandbox", false)
	v.SetDefault("renderer.bin", "")
	v.SetDefault("renderer.max_pages", 4)

	// Matching defaults
	v.SetDefault("matching.min_score", 2)
	v.SetDefault("matching.min_term_length", 2)
	v.SetDefault("matching.max_candidates", 20)
	v.SetDefault("matching.debug_logging", false)

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 60)
	v.SetDefault("ratelimit.burst", 10)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
}

// validate validates the configuration
func validate(config *Config) error {
	switch config.Cache.Type {
	case "memory":
	case "sqlite":
		if config.Cache.DSN == "" {
			config.Cache.DSN = "cache.db"
		}
	case "postgres":
		if config.Cache.DSN == "" {
			return fmt.Errorf("cache DSN is required when cache type is 'postgres'")
		}
	default:
		return fmt.Errorf("cache type must be 'sqlite', 'postgres' or 'memory', got: %s", config.Cache.Type)
	}

	if config.Search.SiteTimeout <= 0 {
		return fmt.Errorf("search site timeout must be positive, got: %s", config.Search.SiteTimeout)
	}

	if config.Fetch.DelayMin > config.Fetch.DelayMax {
		return fmt.Errorf("fetch delay_min (%s) must not exceed delay_max (%s)", config.Fetch.DelayMin, config.Fetch.DelayMax)
	}

	if config.Matching.MinScore < 0 {
		return fmt.Errorf("matching min score must not be negative, got: %d", config.Matching.MinScore)
	}

	for _, name := range config.Search.Sites {
		if _, err := domain.ParseSiteID(name); err != nil {
			return fmt.Errorf("search sites: %w", err)
		}
	}

	if config.Log.Format != "json" && config.Log.Format != "console" {
		return fmt.Errorf("log format must be 'json' or 'console', got: %s", config.Log.Format)
	}

	return nil
}

// SiteIDs returns the configured sites as registry identifiers. Load has
// already rejected unknown names.
func (c SearchConfig) SiteIDs() []domain.SiteID {
	out := make([]domain.SiteID, 0, len(c.Sites))
	for _, name := range c.Sites {
		if id, err := domain.ParseSiteID(name); err == nil {
			out = append(out, id)
		}
	}
	return out
}
