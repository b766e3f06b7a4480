// Package config loads server settings from the environment.
//
// Values come from process environment variables (an optional .env file is
// loaded into the environment by cmd/* before Load runs). Every key has a
// default except JWT_SECRET, which must be set.
//
// LOOKUP ORDER:
//  1. Real environment variables (PORT=8080 ./server)
//  2. .env entries, which godotenv.Load only sets when the variable is unset
//  3. The defaults map below
//
// VIPER AND AutomaticEnv:
// AutomaticEnv makes v.Get("db_path") look up DB_PATH. Unmarshal only sees
// keys viper already knows about, so every key gets SetDefault and BindEnv
// first; a key with neither would be silently skipped even if its
// environment variable were set.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const minSecretLength = 16

// Config is the complete server configuration.
type Config struct {
	Port     int    `mapstructure:"port"`
	DBDriver string `mapstructure:"db_driver"`
	DBPath   string `mapstructure:"db_path"`
	// DatabaseURL is the PostgreSQL DSN, used when DBDriver is "postgres".
	DatabaseURL string `mapstructure:"database_url"`

	JWTSecret  string        `mapstructure:"jwt_secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`

	CORSOrigins        string `mapstructure:"cors_origins"`
	LogLevel           string `mapstructure:"log_level"`
	LoginRatePerMinute int    `mapstructure:"login_rate_per_minute"`

	GitHubClientID     string `mapstructure:"github_client_id"`
	GitHubClientSecret string `mapstructure:"github_client_secret"`
	GitHubCallbackURL  string `mapstructure:"github_callback_url"`
	FrontendURL        string `mapstructure:"frontend_url"`
}

var defaults = map[string]any{
	"port":                  5000,
	"db_driver":             DriverSQLite,
	"db_path":               "data/stackit.db",
	"database_url":          "",
	"jwt_secret":            "",
	"token_ttl":             "24h",
	"bcrypt_cost":           10,
	"cors_origins":          "*",
	"log_level":             "info",
	"login_rate_per_minute": 20,
	"github_client_id":      "",
	"github_client_secret":  "",
	"github_callback_url":   "",
	"frontend_url":          "http://localhost:3000",
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, val := range defaults {
		v.SetDefault(key, val)
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("config: binding %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}

	if cfg.GitHubCallbackURL == "" {
		cfg.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/api/auth/github/callback", cfg.Port)
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error

	if len(c.JWTSecret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters", minSecretLength))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q is not one of sqlite, postgres", c.DBDriver))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.LoginRatePerMinute <= 0 {
		errs = append(errs, errors.New("LOGIN_RATE_PER_MINUTE must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// GitHubEnabled reports whether GitHub sign-in is configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to Info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// AllowedOrigins splits CORSOrigins on commas. "*" (or empty) allows any origin.
func (c *Config) AllowedOrigins() []string {
	if c.CORSOrigins == "" || c.CORSOrigins == "*" {
		return []string{"*"}
	}
	parts := strings.Split(c.CORSOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}
