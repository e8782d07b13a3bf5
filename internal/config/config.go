// Package config provides configuration management for the STAC catalog
// service.
package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the complete application configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig    `envPrefix:"SERVER_"`
	STAC      STACConfig      `envPrefix:"STAC_"`
	Search    SearchConfig    `envPrefix:"SEARCH_"`
	Store     StoreConfig     `envPrefix:"STORE_"`
	Auth      AuthConfig      `envPrefix:"AUTH_"`
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	Cache     CacheConfig     `envPrefix:"CACHE_"`
	Assets    AssetsConfig    `envPrefix:"ASSETS_"`
	Kafka     KafkaConfig     `envPrefix:"KAFKA_"`
	Audit     AuditConfig     `envPrefix:"AUDIT_"`
	Logging   LoggingConfig   `envPrefix:"LOG_"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10m"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// RequestTimeout bounds JSON routes, DownloadTimeout the archive route.
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"5s"`
	DownloadTimeout time.Duration `env:"DOWNLOAD_TIMEOUT" envDefault:"5m"`
}

// STACConfig contains STAC API metadata configuration.
type STACConfig struct {
	Version string `env:"VERSION" envDefault:"1.0.0"`
	ID      string `env:"ID" envDefault:"stac-catalog"`
	// BaseURL is the public-facing URL. When empty, links are built from the
	// request's scheme and host.
	BaseURL        string `env:"BASE_URL" envDefault:""`
	Title          string `env:"TITLE" envDefault:"STAC Catalog"`
	Description    string `env:"DESCRIPTION" envDefault:"Spatiotemporal catalog of satellite imagery"`
	CollectionsDir string `env:"COLLECTIONS_DIR" envDefault:"./collections"`
}

// SearchConfig contains page size limits per endpoint.
type SearchConfig struct {
	DefaultLimit      int `env:"DEFAULT_LIMIT" envDefault:"10"`
	MaxLimit          int `env:"MAX_LIMIT" envDefault:"50"`
	ItemsDefaultLimit int `env:"ITEMS_DEFAULT_LIMIT" envDefault:"10"`
	ItemsMaxLimit     int `env:"ITEMS_MAX_LIMIT" envDefault:"15"`
}

// StoreConfig selects the item store and its seed data.
type StoreConfig struct {
	Driver        string        `env:"DRIVER" envDefault:"memory"`
	Path          string        `env:"PATH" envDefault:"./data/catalog.db"`
	SeedDir       string        `env:"SEED_DIR" envDefault:""`
	Watch         bool          `env:"WATCH" envDefault:"false"`
	WatchDebounce time.Duration `env:"WATCH_DEBOUNCE" envDefault:"500ms"`
}

// AuthConfig contains bearer token validation settings. Authentication is
// only enforced when key material is configured.
type AuthConfig struct {
	Enabled       bool     `env:"ENABLED" envDefault:"true"`
	Secret        string   `env:"SECRET" envDefault:""`
	PublicKeyFile string   `env:"PUBLIC_KEY_FILE" envDefault:""`
	Issuer        string   `env:"ISSUER" envDefault:""`
	PublicPaths   []string `env:"PUBLIC_PATHS" envSeparator:"," envDefault:"/health,/metrics,/v1/,/v1/conformance"`
}

// Active reports whether requests must carry a valid token.
func (a *AuthConfig) Active() bool {
	return a.Enabled && (a.Secret != "" || a.PublicKeyFile != "")
}

// RateLimitConfig contains the per-client token bucket settings.
type RateLimitConfig struct {
	Enabled           bool `env:"ENABLED" envDefault:"true"`
	RequestsPerMinute int  `env:"REQUESTS_PER_MINUTE" envDefault:"5"`
	Burst             int  `env:"BURST" envDefault:"5"`
	MaxClients        int  `env:"MAX_CLIENTS" envDefault:"10000"`
	// TrustedProxies lists the addresses or CIDR ranges whose
	// X-Forwarded-For / X-Real-IP headers name the client to limit.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:"," envDefault:""`
}

// CacheConfig selects the response cache.
type CacheConfig struct {
	Driver        string        `env:"DRIVER" envDefault:"memory"`
	TTL           time.Duration `env:"TTL" envDefault:"1h"`
	Size          int           `env:"SIZE" envDefault:"1024"`
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	KeyPrefix     string        `env:"KEY_PREFIX" envDefault:"stac:page:"`
}

// AssetsConfig selects the object store downloads are packaged from.
type AssetsConfig struct {
	Driver       string `env:"DRIVER" envDefault:"fs"`
	Dir          string `env:"DIR" envDefault:"./data/assets"`
	Bucket       string `env:"BUCKET" envDefault:""`
	Prefix       string `env:"PREFIX" envDefault:""`
	Region       string `env:"REGION" envDefault:"us-east-1"`
	Endpoint     string `env:"ENDPOINT" envDefault:""`
	UsePathStyle bool   `env:"USE_PATH_STYLE" envDefault:"false"`
}

// KafkaConfig contains the item event consumer settings.
type KafkaConfig struct {
	Enabled bool     `env:"ENABLED" envDefault:"false"`
	Brokers []string `env:"BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	Topic   string   `env:"TOPIC" envDefault:"stac-items"`
	GroupID string   `env:"GROUP_ID" envDefault:"stac-catalog"`
	// A batch of events is applied as one catalog update once it holds
	// BatchSize events or BatchWait after its first event arrived.
	BatchSize int           `env:"BATCH_SIZE" envDefault:"500"`
	BatchWait time.Duration `env:"BATCH_WAIT" envDefault:"250ms"`
}

// AuditConfig contains the request audit log settings.
type AuditConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"false"`
	Path    string `env:"PATH" envDefault:"./data/audit.db"`
	Buffer  int    `env:"BUFFER" envDefault:"1024"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load parses configuration from environment variables.
// It returns an error if required fields are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}

	opts := env.Options{
		RequiredIfNoDef: true,
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func oneOf(field, value string, allowed ...string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return fmt.Errorf("invalid %s %q, must be one of: %v", field, value, allowed)
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	for name, d := range map[string]time.Duration{
		"read timeout":     c.Server.ReadTimeout,
		"write timeout":    c.Server.WriteTimeout,
		"shutdown timeout": c.Server.ShutdownTimeout,
		"request timeout":  c.Server.RequestTimeout,
		"download timeout": c.Server.DownloadTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("server %s must be positive, got %s", name, d)
		}
	}

	if c.STAC.Version == "" {
		return fmt.Errorf("STAC version is required")
	}

	if c.Search.DefaultLimit < 1 {
		return fmt.Errorf("search default limit must be at least 1, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("search max limit (%d) must be >= default limit (%d)", c.Search.MaxLimit, c.Search.DefaultLimit)
	}
	if c.Search.ItemsDefaultLimit < 1 {
		return fmt.Errorf("items default limit must be at least 1, got %d", c.Search.ItemsDefaultLimit)
	}
	if c.Search.ItemsMaxLimit < c.Search.ItemsDefaultLimit {
		return fmt.Errorf("items max limit (%d) must be >= default limit (%d)", c.Search.ItemsMaxLimit, c.Search.ItemsDefaultLimit)
	}

	if err := oneOf("store driver", c.Store.Driver, "memory", "sqlite"); err != nil {
		return err
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		return fmt.Errorf("store path is required for the sqlite driver")
	}
	if c.Store.Watch && c.Store.SeedDir == "" {
		return fmt.Errorf("store watch requires a seed directory")
	}

	if c.Auth.Secret != "" && c.Auth.PublicKeyFile != "" {
		return fmt.Errorf("auth secret and public key file are mutually exclusive")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMinute < 1 {
			return fmt.Errorf("rate limit requests per minute must be at least 1, got %d", c.RateLimit.RequestsPerMinute)
		}
		if c.RateLimit.Burst < 1 {
			return fmt.Errorf("rate limit burst must be at least 1, got %d", c.RateLimit.Burst)
		}
		if c.RateLimit.MaxClients < 1 {
			return fmt.Errorf("rate limit max clients must be at least 1, got %d", c.RateLimit.MaxClients)
		}
	}

	if err := oneOf("cache driver", c.Cache.Driver, "none", "memory", "redis"); err != nil {
		return err
	}
	if c.Cache.Driver != "none" && c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive, got %s", c.Cache.TTL)
	}
	if c.Cache.Driver == "memory" && c.Cache.Size < 1 {
		return fmt.Errorf("cache size must be at least 1, got %d", c.Cache.Size)
	}
	if c.Cache.Driver == "redis" && c.Cache.RedisAddr == "" {
		return fmt.Errorf("cache redis address is required for the redis driver")
	}

	if err := oneOf("assets driver", c.Assets.Driver, "fs", "s3"); err != nil {
		return err
	}
	if c.Assets.Driver == "s3" && c.Assets.Bucket == "" {
		return fmt.Errorf("assets bucket is required for the s3 driver")
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers are required when kafka is enabled")
		}
		if c.Kafka.Topic == "" || c.Kafka.GroupID == "" {
			return fmt.Errorf("kafka topic and group id are required when kafka is enabled")
		}
		if c.Kafka.BatchSize < 1 {
			return fmt.Errorf("kafka batch size must be at least 1, got %d", c.Kafka.BatchSize)
		}
		if c.Kafka.BatchWait <= 0 {
			return fmt.Errorf("kafka batch wait must be positive, got %s", c.Kafka.BatchWait)
		}
	}

	if c.Audit.Enabled {
		if c.Audit.Path == "" {
			return fmt.Errorf("audit path is required when audit is enabled")
		}
		if c.Audit.Buffer < 1 {
			return fmt.Errorf("audit buffer must be at least 1, got %d", c.Audit.Buffer)
		}
	}

	if err := oneOf("log level", c.Logging.Level, "debug", "info", "warn", "error"); err != nil {
		return err
	}
	return oneOf("log format", c.Logging.Format, "json", "text")
}

// Address returns the server listen address in the format "host:port".
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
