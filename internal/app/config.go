package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/sokrith/pos-settlement/internal/domain/currency"
)

// Config holds the complete application configuration, loadable from
// environment variables (POS_ prefix), flags, or YAML config files.
type Config struct {
	Addr             string `default:"0.0.0.0:8090" usage:"settlement API listen address"`
	DatabaseURL      string `usage:"PostgreSQL connection URL (POS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	DatabaseMaxConns int32  `default:"8" usage:"Max PostgreSQL connections in the pool" flag:"db-max-conns"`
	OrderServiceURL  string `default:"http://localhost:8080" usage:"Base URL of the order service" flag:"order-service-url"`
	ExchangeRate     string `default:"4100" usage:"Riel per USD exchange rate" flag:"exchange-rate"`
	RateLimit       RateLimitConfig
	CORS            CORSConfig
	Graceful        GracefulConfig

	rate decimal.Decimal
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// Rate returns the validated riel/USD exchange rate.
func (c *Config) Rate() decimal.Decimal {
	return c.rate
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "POS",
		Files:     []string{"config.yaml", "/etc/pos/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set POS_DATABASE_URL or DATABASE_URL")
	}

	rate, err := decimal.NewFromString(cfg.ExchangeRate)
	if err != nil {
		return nil, errors.Wrap(err, "parse exchange rate")
	}
	if !currency.ValidRate(rate) {
		return nil, errors.Errorf("exchange rate must be positive, got %s", rate)
	}
	cfg.rate = rate

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and PORT to the application's POS_-prefixed
// configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8090" {
		c.Addr = "0.0.0.0:" + port
	}
}
