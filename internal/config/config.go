// Package config loads application settings from a .env file, an optional
// config.yml, and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultJWTSecret is only good enough for local development; Validate
// refuses it in production.
const DefaultJWTSecret = "dev-secret-change-me-in-production"

// Config holds every setting the server and habitctl read at start-up.
type Config struct {
	Env            string `mapstructure:"APP_ENV"`
	Port           int    `mapstructure:"PORT"`
	DBPath         string `mapstructure:"DB_PATH"`
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	RedisURL       string `mapstructure:"REDIS_URL"` // empty disables Redis
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	LogFile        string `mapstructure:"LOG_FILE"` // empty logs to stdout only

	GitHubClientID     string `mapstructure:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `mapstructure:"GITHUB_CLIENT_SECRET"`
	GitHubCallbackURL  string `mapstructure:"GITHUB_CALLBACK_URL"`

	// RequestTTL > 0 enables the hourly job that prunes stale pending requests.
	RequestTTL   time.Duration `mapstructure:"REQUEST_TTL"`
	StandingsTTL time.Duration `mapstructure:"STANDINGS_TTL"`
}

// Load reads configuration. A missing .env or config.yml is not an error;
// a malformed one is.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Unmarshal only sees keys viper knows about, so every key needs a
	// default for its environment override to be picked up.
	setDefaults(v)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}

	if cfg.GitHubCallbackURL == "" {
		cfg.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", 8080)
	v.SetDefault("DB_PATH", "data/habits.db")
	v.SetDefault("JWT_SECRET", DefaultJWTSecret)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("GITHUB_CLIENT_ID", "")
	v.SetDefault("GITHUB_CLIENT_SECRET", "")
	v.SetDefault("GITHUB_CALLBACK_URL", "")
	v.SetDefault("REQUEST_TTL", "0s")
	v.SetDefault("STANDINGS_TTL", "30s")
}

// Validate checks required values. Production gets the strict rules.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("DB_PATH is required")
	}
	if len(c.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}
	if c.RequestTTL < 0 {
		return errors.New("REQUEST_TTL must not be negative")
	}
	if c.StandingsTTL < 0 {
		return errors.New("STANDINGS_TTL must not be negative")
	}

	if c.IsProduction() {
		if c.JWTSecret == DefaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if strings.TrimSpace(c.AllowedOrigins) == "*" {
			return errors.New("ALLOWED_ORIGINS must list explicit origins in production")
		}
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// GitHubEnabled reports whether GitHub sign-in is configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}
