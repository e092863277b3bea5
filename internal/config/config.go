// Package config loads the service settings from defaults, an optional
// config file, a .env file and GARRISON_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. GARRISON_HTTP_ADDR.
const EnvPrefix = "GARRISON"

// Config is the resolved service configuration.
type Config struct {
	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`

	DB struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"db"`

	Auth struct {
		// JWTSecret overrides the secret persisted in the database.
		JWTSecret         string        `mapstructure:"jwt_secret"`
		TokenTTL          time.Duration `mapstructure:"token_ttl"`
		AllowRegistration bool          `mapstructure:"allow_registration"`
	} `mapstructure:"auth"`

	Admin struct {
		Username string `mapstructure:"username"`
	} `mapstructure:"admin"`

	Log struct {
		Level string `mapstructure:"level"`
		Path  string `mapstructure:"path"`
	} `mapstructure:"log"`

	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"metrics"`

	Jobs struct {
		ReturnRetry  string `mapstructure:"return_retry"`
		TokenCleanup string `mapstructure:"token_cleanup"`
	} `mapstructure:"jobs"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("db.path", "garrison.sqlite3")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.allow_registration", false)
	v.SetDefault("admin.username", "admin")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("jobs.return_retry", "@every 5m")
	v.SetDefault("jobs.token_cleanup", "@hourly")
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadDotEnv loads variables from path into the process environment. A
// missing file is not an error. Variables already set are kept.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads the optional config file into v and decodes the result.
func Load(v *viper.Viper, file string) (Config, error) {
	var c Config
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return c, fmt.Errorf("reading config %s: %w", file, err)
		}
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decoding config: %w", err)
	}
	return c, c.Validate()
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.DB.Path == "" {
		return errors.New("db.path is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	if strings.TrimSpace(c.Admin.Username) == "" {
		return errors.New("admin.username is required")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: unknown level %q", s)
	}
	return l, nil
}

// LogLevel returns the configured slog level.
func (c *Config) LogLevel() slog.Level {
	l, _ := ParseLevel(c.Log.Level)
	return l
}
