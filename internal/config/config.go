package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	BackendURL     string        `mapstructure:"BACKEND_URL"`
	BackendTimeout time.Duration `mapstructure:"BACKEND_TIMEOUT"`
	// BackendMaxResponse caps backend response bodies in bytes. Zero keeps
	// the client default.
	BackendMaxResponse int64         `mapstructure:"BACKEND_MAX_RESPONSE"`
	PollInterval       time.Duration `mapstructure:"POLL_INTERVAL"`
	SettleDelay        time.Duration `mapstructure:"SETTLE_DELAY"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	BodyLimit          string        `mapstructure:"BODY_LIMIT"`
	DatabaseURL        string        `mapstructure:"DATABASE_URL"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("BACKEND_URL", "http://localhost:8000")
	v.SetDefault("BACKEND_TIMEOUT", "60s")
	v.SetDefault("BACKEND_MAX_RESPONSE", 32<<20)
	v.SetDefault("POLL_INTERVAL", "3s")
	v.SetDefault("SETTLE_DELAY", "500ms")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("BODY_LIMIT", "25M")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "BACKEND_URL", "BACKEND_TIMEOUT", "BACKEND_MAX_RESPONSE",
		"POLL_INTERVAL", "SETTLE_DELAY", "CORS_ORIGINS", "BODY_LIMIT",
		"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// A comma separated env value arrives as a single element.
	if len(cfg.CORSOrigins) <= 1 {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}
	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// JournalEnabled reports whether transitions are journaled to PostgreSQL.
func (c *Config) JournalEnabled() bool {
	return c.DatabaseURL != ""
}

// Validate checks that the backend URL is usable and that every timing knob
// is positive.
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("BACKEND_URL is required")
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return fmt.Errorf("BACKEND_URL is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("BACKEND_URL must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("BACKEND_URL must include a host")
	}
	if c.BackendTimeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be positive, got %s", c.BackendTimeout)
	}
	if c.BackendMaxResponse < 0 {
		return fmt.Errorf("BACKEND_MAX_RESPONSE must not be negative, got %d", c.BackendMaxResponse)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.SettleDelay <= 0 {
		return fmt.Errorf("SETTLE_DELAY must be positive, got %s", c.SettleDelay)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
