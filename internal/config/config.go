// Package config loads server settings from an optional YAML file and
// PROJECTAPI_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// DatabaseConfig selects and locates the database.
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver string `mapstructure:"driver" yaml:"driver"`
	URL    string `mapstructure:"url" yaml:"url"`
	Path   string `mapstructure:"path" yaml:"path"`
}

// CacheConfig selects the dashboard cache.
type CacheConfig struct {
	// Backend is "postgres", "memory" or "none".
	Backend string        `mapstructure:"backend" yaml:"backend"`
	TTL     time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// AuthConfig holds the token settings.
type AuthConfig struct {
	Secret     string        `mapstructure:"secret" yaml:"secret"`
	AccessTTL  time.Duration `mapstructure:"access_ttl" yaml:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl" yaml:"refresh_ttl"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Config is the top-level configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// Load reads path (if non-empty) and the environment on top of defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PROJECTAPI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// No defaults here: an unset value is resolved after PORT and the
	// database driver are known.
	_ = v.BindEnv("server.addr")
	_ = v.BindEnv("cache.backend")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.path", "project-api.db")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.access_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_ttl", 7*24*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
		if port := os.Getenv("PORT"); port != "" {
			cfg.Server.Addr = ":" + port
		}
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "postgres"
		if cfg.Database.Driver == "sqlite" {
			cfg.Cache.Backend = "memory"
		}
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	switch c.Cache.Backend {
	case "postgres", "memory", "none":
	default:
		return fmt.Errorf("cache.backend must be postgres, memory or none, got %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "postgres" && c.Database.Driver != "postgres" {
		return errors.New("cache.backend postgres requires database.driver postgres")
	}
	return nil
}
