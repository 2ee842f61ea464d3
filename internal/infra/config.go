package infra

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv   string `env:"APP_ENV"   envDefault:"development"`
	Port     string `env:"PORT"      envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL"`
	LogFile  string `env:"LOG_FILE"`

	HTTPReadTimeoutSeconds  int      `env:"HTTP_READ_TIMEOUT_SECONDS"  envDefault:"15"`
	HTTPWriteTimeoutSeconds int      `env:"HTTP_WRITE_TIMEOUT_SECONDS" envDefault:"120"`
	HTTPIdleTimeoutSeconds  int      `env:"HTTP_IDLE_TIMEOUT_SECONDS"  envDefault:"60"`
	RateLimitPerMin         int      `env:"RATE_LIMIT_PER_MINUTE"      envDefault:"30"`
	CORSAllowedOrigins      []string `env:"CORS_ALLOWED_ORIGINS"       envDefault:"*" envSeparator:","`
	DefaultLocale           string   `env:"DEFAULT_LOCALE"             envDefault:"en-US"`

	// Optional backing services. Empty URLs disable the feature.
	DatabaseURL    string        `env:"DATABASE_URL"`
	RedisURL       string        `env:"REDIS_URL"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	GeoIPDBPath    string        `env:"GEOIP_DB_PATH"`
	StoragePath    string        `env:"STORAGE_PATH"    envDefault:"./data"`
	CatalogPath    string        `env:"CATALOG_PATH"`

	TileProvider      string        `env:"TILE_PROVIDER"`
	TileURLTemplate   string        `env:"TILE_URL_TEMPLATE"`
	TileScheme        string        `env:"TILE_SCHEME"          envDefault:"xyz"`
	TileUserAgent     string        `env:"TILE_USER_AGENT"      envDefault:"mapengrave/1.0"`
	TileConcurrency   int           `env:"TILE_CONCURRENCY"     envDefault:"8"`
	TileRetries       int           `env:"TILE_RETRIES"         envDefault:"3"`
	TileBackoff       time.Duration `env:"TILE_BACKOFF"         envDefault:"200ms"`
	TileRatePerSecond float64       `env:"TILE_RATE_PER_SECOND" envDefault:"0"`
	TileTimeout       time.Duration `env:"TILE_TIMEOUT"         envDefault:"10s"`

	GeocoderProvider string `env:"GEOCODER_PROVIDER" envDefault:"none"`
	GeocoderBaseURL  string `env:"GEOCODER_BASE_URL" envDefault:"https://nominatim.openstreetmap.org"`

	ExportMinBytes      int     `env:"EXPORT_MIN_BYTES"      envDefault:"65536"`
	ExportMaxBytes      int     `env:"EXPORT_MAX_BYTES"      envDefault:"10485760"`
	ExportMaxIterations int     `env:"EXPORT_MAX_ITERATIONS" envDefault:"10"`
	EditorWidth         float64 `env:"EDITOR_WIDTH"          envDefault:"600"`

	StorefrontDomain     string `env:"STOREFRONT_DOMAIN"`
	StorefrontToken      string `env:"STOREFRONT_TOKEN"`
	StorefrontVariantID  string `env:"STOREFRONT_VARIANT_ID"`
	StorefrontAPIVersion string `env:"STOREFRONT_API_VERSION"`
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if strings.TrimSpace(cfg.TileProvider) == "" {
		// Synthetic tiles are only a development stand-in.
		cfg.TileProvider = "osm"
		if cfg.IsDevelopment() {
			cfg.TileProvider = "synthetic"
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the rules that span several keys.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Port) == "" {
		errs = append(errs, errors.New("PORT is required"))
	}
	if c.ExportMinBytes < 0 || c.ExportMaxBytes <= 0 || c.ExportMaxBytes < c.ExportMinBytes {
		errs = append(errs, fmt.Errorf("EXPORT_MIN_BYTES=%d and EXPORT_MAX_BYTES=%d do not form an envelope", c.ExportMinBytes, c.ExportMaxBytes))
	}
	if c.ExportMaxIterations <= 0 {
		errs = append(errs, errors.New("EXPORT_MAX_ITERATIONS must be positive"))
	}
	if c.EditorWidth <= 0 {
		errs = append(errs, errors.New("EDITOR_WIDTH must be positive"))
	}
	switch strings.ToLower(c.TileScheme) {
	case "xyz", "tms":
	default:
		errs = append(errs, fmt.Errorf("TILE_SCHEME %q must be xyz or tms", c.TileScheme))
	}
	if c.IsProduction() && strings.EqualFold(strings.TrimSpace(c.TileProvider), "synthetic") {
		errs = append(errs, errors.New("TILE_PROVIDER=synthetic is not allowed in production"))
	}
	if strings.EqualFold(c.TileProvider, "custom") && strings.TrimSpace(c.TileURLTemplate) == "" {
		errs = append(errs, errors.New("TILE_URL_TEMPLATE is required for the custom tile provider"))
	}
	if (c.StorefrontDomain == "") != (c.StorefrontVariantID == "") {
		errs = append(errs, errors.New("STOREFRONT_DOMAIN and STOREFRONT_VARIANT_ID must be set together"))
	}
	return errors.Join(errs...)
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction reports whether the service serves real orders.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// StorefrontConfigured reports whether a remote store is configured. The
// access token may still come from the credentials store.
func (c *Config) StorefrontConfigured() bool {
	return c.StorefrontDomain != "" && c.StorefrontVariantID != ""
}

func (c *Config) HTTPReadTimeout() time.Duration {
	return time.Duration(c.HTTPReadTimeoutSeconds) * time.Second
}

func (c *Config) HTTPWriteTimeout() time.Duration {
	return time.Duration(c.HTTPWriteTimeoutSeconds) * time.Second
}

func (c *Config) HTTPIdleTimeout() time.Duration {
	return time.Duration(c.HTTPIdleTimeoutSeconds) * time.Second
}
