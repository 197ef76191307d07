package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (STORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (STORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	// InMemory replaces PostgreSQL with process-local storage. Data is lost
	// on restart.
	InMemory     bool     `default:"false" usage:"Use in-memory storage instead of PostgreSQL" flag:"in-memory"`
	RedisURL     string   `usage:"Redis URL for the product cache; empty disables caching" flag:"redis-url"`
	KafkaBrokers []string `usage:"Kafka brokers for order events; empty disables publishing" flag:"kafka-brokers"`
	KafkaTopic   string   `default:"store.orders" usage:"Kafka topic for order events" flag:"kafka-topic"`
	ImageBaseURL string   `default:"" usage:"Base URL prepended to product image references" flag:"image-base-url"`
	JWT          JWTConfig
	Payment      PaymentConfig
	Uploads      UploadsConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// JWTConfig controls access token issuing.
type JWTConfig struct {
	Secret string        `usage:"HMAC secret for access tokens (STORE_JWT_SECRET)"`
	TTL    time.Duration `default:"24h" usage:"Access token lifetime"`
}

// PaymentConfig holds the Razorpay credentials and checkout currency.
type PaymentConfig struct {
	KeyID     string        `usage:"Razorpay key id" flag:"payment-key-id"`
	KeySecret string        `usage:"Razorpay key secret" flag:"payment-key-secret"`
	BaseURL   string        `default:"https://api.razorpay.com" usage:"Razorpay API base URL"`
	Currency  string        `default:"INR" usage:"Checkout currency"`
	Timeout   time.Duration `default:"10s" usage:"Gateway request timeout"`
}

// UploadsConfig controls product image storage.
type UploadsConfig struct {
	Dir       string `default:"uploads" usage:"Directory for uploaded images"`
	MaxBytes  int64  `default:"16777216" usage:"Maximum multipart request size"`
	URLPrefix string `default:"/uploads/" usage:"Path uploaded images are served under"`
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

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STORE",
		Files:     []string{"config.yaml", "/etc/store/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" && !c.InMemory {
		return errors.New("database URL is required: set STORE_DATABASE_URL or DATABASE_URL")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("JWT secret is required: set STORE_JWT_SECRET")
	}
	if c.Payment.Timeout <= 0 {
		return errors.New("payment timeout must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's STORE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
