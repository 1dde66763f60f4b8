package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds the complete application configuration, loadable from
// environment variables (CHECKOUT_ prefix), flags, or YAML config files.
type Config struct {
	Addr          string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage       string `default:"postgres" usage:"Storage driver: postgres or memory"`
	DatabaseURL   string `usage:"PostgreSQL connection URL (CHECKOUT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	PublicBaseURL string `default:"http://localhost:8080" usage:"Public origin used in tracking links" flag:"public-base-url"`
	JWTSecret     string `usage:"HMAC secret for customer bearer tokens (CHECKOUT_JWT_SECRET)" flag:"jwt-secret"`
	APIKeyPepper  string `usage:"HMAC pepper for staff API key hashing (CHECKOUT_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Checkout      CheckoutConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	SMTP          SMTPConfig
	StockSweep    StockSweepConfig
	Seed          SeedConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	Graceful      GracefulConfig
}

// CheckoutConfig holds pricing and loyalty settings.
type CheckoutConfig struct {
	TaxRateBPS           int64  `default:"2300" usage:"Tax rate in basis points" flag:"tax-rate-bps"`
	Currency             string `default:"EUR" usage:"ISO 4217 currency code"`
	LoyaltyPointsPerUnit int64  `default:"1" usage:"Loyalty points per whole currency unit" flag:"loyalty-points-per-unit"`
}

// RedisConfig selects the cart store. An empty URL keeps carts in memory.
type RedisConfig struct {
	URL string `usage:"Redis URL for the cart store (CHECKOUT_REDIS_URL or REDIS_URL)" flag:"redis-url"`
}

// KafkaConfig enables order event publishing when brokers are set.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka broker addresses"`
	Topic   string   `default:"order-events" usage:"Order events topic" flag:"kafka-topic"`
}

// SMTPConfig enables customer emails when Host is set.
type SMTPConfig struct {
	Host     string `usage:"SMTP host" flag:"smtp-host"`
	Port     int    `default:"587" usage:"SMTP port" flag:"smtp-port"`
	Username string `usage:"SMTP username" flag:"smtp-username"`
	Password string `usage:"SMTP password" flag:"smtp-password"`
	From     string `default:"orders@localhost" usage:"Sender address" flag:"smtp-from"`
}

// StockSweepConfig controls the low-stock job. Zero disables it.
type StockSweepConfig struct {
	Interval time.Duration `default:"5m" usage:"Low-stock sweep interval" flag:"stock-sweep-interval"`
}

// SeedConfig fills the in-memory storage at startup. Postgres is seeded with
// cmd/seed-db instead.
type SeedConfig struct {
	MenuFile    string `default:"db/seed/menu.json" usage:"Menu seed file for memory storage" flag:"seed-menu-file"`
	StaffAPIKey string `usage:"Staff API key seeded into memory storage (CHECKOUT_SEED_STAFF_API_KEY)" flag:"seed-staff-api-key"`
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

// LoadConfig loads configuration from a .env file, environment variables,
// YAML config files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CHECKOUT",
		Files:     []string{"config.yaml", "/etc/checkout/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set CHECKOUT_DATABASE_URL or DATABASE_URL")
		}
	case StorageMemory:
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage)
	}
	if c.JWTSecret == "" {
		return errors.New("jwt secret is required: set CHECKOUT_JWT_SECRET")
	}
	if c.Checkout.TaxRateBPS < 0 {
		return errors.New("tax rate must not be negative")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's CHECKOUT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.Redis.URL == "" {
		if v := os.Getenv("REDIS_URL"); v != "" {
			c.Redis.URL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
