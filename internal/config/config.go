package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration.
type Config struct {
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"text"` // text or json
	Workers         int           `env:"ANALYZER_WORKERS" envDefault:"4"`
	SniffBytes      int           `env:"SNIFF_BYTES" envDefault:"4096"`
	MaxMemberBytes  int64         `env:"MAX_MEMBER_BYTES" envDefault:"268435456"` // 256MB
	DuplicatePolicy string        `env:"DUPLICATE_POLICY" envDefault:"apply"`
	ApplyFailed     bool          `env:"APPLY_FAILED" envDefault:"false"`
	SevereOverdraft string        `env:"SEVERE_OVERDRAFT_THRESHOLD" envDefault:"-100"`
	RapidWindow     time.Duration `env:"RAPID_WINDOW" envDefault:"5m"`
	TrendWindow     time.Duration `env:"TREND_WINDOW" envDefault:"24h"`
	ServerAddr      string        `env:"SERVER_ADDR" envDefault:":8080"`
	MaxUploadBytes  int           `env:"MAX_UPLOAD_BYTES" envDefault:"67108864"` // 64MB
	OutputDir       string        `env:"OUTPUT_DIR" envDefault:"reports"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values env.Parse cannot check on its own.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("ANALYZER_WORKERS must be at least 1, got %d", c.Workers)
	}
	if c.SniffBytes < 64 {
		return fmt.Errorf("SNIFF_BYTES must be at least 64, got %d", c.SniffBytes)
	}
	if c.MaxMemberBytes <= 0 {
		return fmt.Errorf("MAX_MEMBER_BYTES must be positive, got %d", c.MaxMemberBytes)
	}
	switch c.DuplicatePolicy {
	case "apply", "skip":
	default:
		return fmt.Errorf("DUPLICATE_POLICY must be apply or skip, got %q", c.DuplicatePolicy)
	}
	if _, err := c.SevereThreshold(); err != nil {
		return err
	}
	return nil
}

// SevereThreshold parses SEVERE_OVERDRAFT_THRESHOLD as an exact decimal.
func (c *Config) SevereThreshold() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.SevereOverdraft)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid SEVERE_OVERDRAFT_THRESHOLD %q: %w", c.SevereOverdraft, err)
	}
	return d, nil
}
