package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (MAKEHIVE_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	ImageBaseURL string `default:"" usage:"Base URL prefixed to relative product image paths" flag:"image-base-url"`
	Store        StoreConfig
	Auth         AuthConfig
	UPI          UPIConfig
	Checkout     CheckoutConfig
	Sellers      SellersConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Search       SearchConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// StoreConfig selects and locates the persistence backend.
type StoreConfig struct {
	Driver        string `default:"postgres" usage:"Store driver: postgres or mongo"`
	PostgresURL   string `usage:"PostgreSQL connection URL (or DATABASE_URL)" flag:"postgres-url"`
	MongoURI      string `usage:"MongoDB connection URI (or MONGODB_URI)" flag:"mongo-uri"`
	MongoDatabase string `default:"makehive" usage:"MongoDB database name" flag:"mongo-database"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	Secret string `usage:"HS256 secret used to verify bearer tokens"`
	Issuer string `default:"" usage:"Required token issuer; empty accepts any"`
}

// UPIConfig controls payment URI and QR generation.
type UPIConfig struct {
	Scheme   string `default:"upi" usage:"Payment URI scheme"`
	Currency string `default:"INR" usage:"Payment currency code"`
	QRSize   int    `default:"256" usage:"QR image size in pixels" flag:"qr-size"`
	QRLevel  string `default:"medium" usage:"QR recovery level: low, medium, high, highest" flag:"qr-level"`
}

// CheckoutConfig controls how checkout treats unknown products.
type CheckoutConfig struct {
	StrictProducts bool `default:"false" usage:"Reject checkout requests naming unknown products" flag:"strict-products"`
}

// SellersConfig controls seller onboarding.
type SellersConfig struct {
	AutoVerify bool `default:"true" usage:"Verify sellers on registration" flag:"auto-verify"`
}

// RedisConfig enables the QR image cache when Addr is set.
type RedisConfig struct {
	Addr     string        `default:"" usage:"Redis address for the QR cache; empty disables it"`
	Password string        `default:"" usage:"Redis password"`
	DB       int           `default:"0" usage:"Redis database"`
	TTL      time.Duration `default:"24h" usage:"QR cache entry lifetime"`
}

// KafkaConfig enables order notifications when Brokers is set.
type KafkaConfig struct {
	Brokers         []string      `usage:"Kafka brokers for order events; empty logs events instead"`
	Topic           string        `default:"orders.confirmed" usage:"Order event topic"`
	Timeout         time.Duration `default:"3s" usage:"Notification timeout per order"`
	BreakerFailures uint32        `default:"5" usage:"Consecutive failures that open the notifier circuit" flag:"kafka-breaker-failures"`
	BreakerCooldown time.Duration `default:"30s" usage:"How long the notifier circuit stays open" flag:"kafka-breaker-cooldown"`
}

// SearchConfig enables Elasticsearch product search when Addresses is set.
type SearchConfig struct {
	Addresses []string `usage:"Elasticsearch addresses; empty searches the store"`
	Username  string   `default:"" usage:"Elasticsearch username"`
	Password  string   `default:"" usage:"Elasticsearch password"`
	Index     string   `default:"products" usage:"Product index name"`
	Size      int      `default:"50" usage:"Maximum search hits"`
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

// LoadConfig loads configuration from environment variables and YAML config
// files, applies platform defaults and validates the result.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "MAKEHIVE",
		Files:     []string{"config.yaml", "/etc/makehive/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that
// use standard names like DATABASE_URL and PORT onto the configuration.
func (c *Config) applyPlatformDefaults(getenv func(string) string) {
	if c.Store.PostgresURL == "" {
		c.Store.PostgresURL = getenv("DATABASE_URL")
	}
	if c.Store.MongoURI == "" {
		c.Store.MongoURI = getenv("MONGODB_URI")
	}
	if port := getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

// Validate reports configuration that would prevent the server from running.
func (c *Config) Validate() error {
	if c.Auth.Secret == "" {
		return errors.New("auth secret is required: set MAKEHIVE_AUTH_SECRET")
	}
	switch strings.ToLower(c.Store.Driver) {
	case DriverPostgres:
		if c.Store.PostgresURL == "" {
			return errors.New("postgres URL is required: set MAKEHIVE_STORE_POSTGRES_URL or DATABASE_URL")
		}
	case DriverMongo, "mongodb":
		if c.Store.MongoURI == "" {
			return errors.New("mongo URI is required: set MAKEHIVE_STORE_MONGO_URI or MONGODB_URI")
		}
		if c.Store.MongoDatabase == "" {
			return errors.New("mongo database name is required")
		}
	default:
		return errors.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.UPI.Scheme == "" || c.UPI.Currency == "" {
		return errors.New("upi scheme and currency must not be empty")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka topic is required when brokers are set")
	}
	return nil
}

// driver returns the normalized store driver.
func (c *Config) driver() string {
	d := strings.ToLower(c.Store.Driver)
	if d == "mongodb" {
		return DriverMongo
	}
	return d
}
