// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LEVEL"`       // trace|debug|info|warn|error
	Format   string `yaml:"format" env:"FORMAT"`     // json|console
	Sampling bool   `yaml:"sampling" env:"SAMPLING"` // enable sampling in prod
}

type HTTPConfig struct {
	Addr           string        `yaml:"addr" env:"ADDR"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	RateLimit      int           `yaml:"rate_limit" env:"RATE_LIMIT"` // requests per window per client on verify/claim/oto
	RateWindow     time.Duration `yaml:"rate_window" env:"RATE_WINDOW"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url" env:"URL"`
	MaxConns int32  `yaml:"max_conns" env:"MAX_CONNS"`
}

type RedisConfig struct {
	URL      string        `yaml:"url" env:"URL"`
	Password string        `yaml:"password" env:"PASSWORD"`
	DB       int           `yaml:"db" env:"DB"`
	TTL      time.Duration `yaml:"ttl" env:"TTL"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
}

type WebhookConfig struct {
	Secret  string        `yaml:"secret" env:"SECRET"`
	SeenTTL time.Duration `yaml:"seen_ttl" env:"SEEN_TTL"`
}

type AdminConfig struct {
	APIKey string `yaml:"api_key" env:"API_KEY"`
}

type CheckoutConfig struct {
	PendingTTL time.Duration `yaml:"pending_ttl" env:"PENDING_TTL"`
	Currency   string        `yaml:"currency" env:"CURRENCY"`
}

type OtoConfig struct {
	DefaultWindowMinutes int `yaml:"default_window_minutes" env:"DEFAULT_WINDOW_MINUTES"`
}

type SchedulerConfig struct {
	SweepInterval     time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval" env:"RECONCILE_INTERVAL"`
	StaleAfter        time.Duration `yaml:"stale_after" env:"STALE_AFTER"` // completed-but-unfulfilled age before recovery
	BatchSize         int           `yaml:"batch_size" env:"BATCH_SIZE"`
	Workers           int           `yaml:"workers" env:"WORKERS"`
}

type Config struct {
	Log       LogConfig       `yaml:"log" envPrefix:"LOG_"`
	HTTP      HTTPConfig      `yaml:"http" envPrefix:"HTTP_"`
	Database  DatabaseConfig  `yaml:"database" envPrefix:"DATABASE_"`
	Redis     RedisConfig     `yaml:"redis" envPrefix:"REDIS_"`
	Auth      AuthConfig      `yaml:"auth"`
	Webhook   WebhookConfig   `yaml:"webhook" envPrefix:"WEBHOOK_"`
	Admin     AdminConfig     `yaml:"admin" envPrefix:"ADMIN_"`
	Checkout  CheckoutConfig  `yaml:"checkout" envPrefix:"CHECKOUT_"`
	Oto       OtoConfig       `yaml:"oto" envPrefix:"OTO_"`
	Scheduler SchedulerConfig `yaml:"scheduler" envPrefix:"SCHEDULER_"`

	Runtime RuntimeConfig `yaml:"-"`
}

// EnvPrefix prefixes every environment override, e.g. COMMERCE_DATABASE_URL.
const EnvPrefix = "COMMERCE_"

// LoadConfig reads the YAML file at path (optional when empty), applies
// environment overrides, fills defaults and validates required settings.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 15 * time.Second
	}
	if cfg.HTTP.RateLimit <= 0 {
		cfg.HTTP.RateLimit = 30
	}
	if cfg.HTTP.RateWindow <= 0 {
		cfg.HTTP.RateWindow = time.Minute
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Webhook.SeenTTL <= 0 {
		cfg.Webhook.SeenTTL = 24 * time.Hour
	}
	if cfg.Checkout.PendingTTL <= 0 {
		cfg.Checkout.PendingTTL = 30 * time.Minute
	}
	if cfg.Checkout.Currency == "" {
		cfg.Checkout.Currency = "USD"
	}
	if cfg.Oto.DefaultWindowMinutes <= 0 {
		cfg.Oto.DefaultWindowMinutes = 15
	}
	if cfg.Scheduler.SweepInterval <= 0 {
		cfg.Scheduler.SweepInterval = time.Minute
	}
	if cfg.Scheduler.ReconcileInterval <= 0 {
		cfg.Scheduler.ReconcileInterval = 5 * time.Minute
	}
	if cfg.Scheduler.StaleAfter <= 0 {
		cfg.Scheduler.StaleAfter = 2 * time.Minute
	}
	if cfg.Scheduler.BatchSize <= 0 {
		cfg.Scheduler.BatchSize = 100
	}
	if cfg.Scheduler.Workers <= 0 {
		cfg.Scheduler.Workers = 4
	}
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if len(c.Webhook.Secret) < 16 {
		return errors.New("webhook.secret must be at least 16 characters")
	}
	if c.Admin.APIKey == "" {
		return errors.New("admin.api_key is required")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
