package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port int `yaml:"port"`
	// FrontendOrigin is the origin the hosted payment page reports back to.
	FrontendOrigin string `yaml:"frontend_origin"`
	// Environment tags checkout flows ("production" | "sandbox").
	Environment string `yaml:"environment"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AuthConfig struct {
	// HMACSecret verifies the identity tokens the auth provider issues.
	HMACSecret string `yaml:"hmac_secret"`
}

type PaymentConfig struct {
	PayPlus struct {
		APIKey       string `yaml:"api_key"`
		SecretKey    string `yaml:"secret_key"`
		PageUID      string `yaml:"page_uid"`
		RecurringUID string `yaml:"recurring_page_uid"`
		Sandbox      bool   `yaml:"sandbox"`
	} `yaml:"payplus"`
}

type ReconcilerConfig struct {
	// PendingTimeout is how long a record may sit pending before it is
	// reset. The same value drives the client-facing retry predicate.
	PendingTimeout time.Duration `yaml:"pending_timeout"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
}

type AccessConfig struct {
	// Timezone is the reference location for access-window arithmetic.
	Timezone string `yaml:"timezone"`
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	Payment    PaymentConfig    `yaml:"payment"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Access     AccessConfig     `yaml:"access"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig() (*Config, error) {
	var configPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Environment == "" {
		cfg.Server.Environment = "production"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Reconciler.PendingTimeout <= 0 {
		cfg.Reconciler.PendingTimeout = 5 * time.Minute
	}
	if cfg.Reconciler.SweepInterval <= 0 {
		cfg.Reconciler.SweepInterval = time.Minute
	}
	if cfg.Access.Timezone == "" {
		cfg.Access.Timezone = "Asia/Jerusalem"
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Auth.HMACSecret == "" {
		return nil, errors.New("auth.hmac_secret is required")
	}
	if cfg.Payment.PayPlus.APIKey == "" {
		return nil, errors.New("payment.payplus.api_key is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// Location resolves the reference timezone; bad values fall back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Access.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
