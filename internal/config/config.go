// Package config loads the server configuration.
//
// SOURCES, LOWEST PRIORITY FIRST:
//  1. Built-in defaults (Default)
//  2. An optional YAML file, named by the -config flag or BLOG_CONFIG
//  3. A .env file in the working directory, if present
//  4. Environment variables
//
// A .env file never overrides a variable that is already set in the real
// environment; godotenv only fills gaps.
//
// Example YAML:
//
//	port: 8080
//	db_path: instance/blog.sqlite
//	secret_key: a-long-random-string
//	bcrypt_cost: 12
//	session_lifetime: 744h
//	log_level: info
//	cookie_secure: true
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/blog/internal/auth"
)

// DevSecretKey is the signing secret used when none is configured.
// Anyone who knows it can forge sessions, so the server warns about it.
const DevSecretKey = "dev-secret-change-me"

// ConfigPathEnv names the environment variable holding the YAML file path.
const ConfigPathEnv = "BLOG_CONFIG"

// Config holds everything the server needs to start.
type Config struct {
	Port            int           `yaml:"port"`
	DBPath          string        `yaml:"db_path"`
	SecretKey       string        `yaml:"secret_key"`
	BcryptCost      int           `yaml:"bcrypt_cost"`
	SessionLifetime time.Duration `yaml:"session_lifetime"`
	LogLevel        string        `yaml:"log_level"`
	CookieSecure    bool          `yaml:"cookie_secure"`
}

// Default returns the development configuration.
func Default() *Config {
	return &Config{
		Port:            8080,
		DBPath:          "instance/blog.sqlite",
		SecretKey:       DevSecretKey,
		BcryptCost:      auth.DefaultCost,
		SessionLifetime: auth.DefaultSessionLifetime,
		LogLevel:        "info",
	}
}

// Load builds the configuration from all sources and validates it.
//
// path is the YAML file; empty means BLOG_CONFIG, and if that is empty too
// no file is read. A file that is named but missing is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: reading .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile overlays the YAML file onto cfg. Keys the file leaves out keep
// their current values.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays the environment variables that are set.
func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid PORT %q", v)
		}
		c.Port = port
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("SECRET_KEY"); v != "" {
		c.SecretKey = v
	}
	if v := os.Getenv("BCRYPT_COST"); v != "" {
		cost, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid BCRYPT_COST %q", v)
		}
		c.BcryptCost = cost
	}
	if v := os.Getenv("SESSION_LIFETIME"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid SESSION_LIFETIME %q: %w", v, err)
		}
		c.SessionLifetime = d
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: invalid COOKIE_SECURE %q", v)
		}
		c.CookieSecure = secure
	}
	return nil
}

// Validate reports the first setting the server cannot start with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("config: db_path is required")
	}
	if len(c.SecretKey) < auth.MinSecretLength {
		return fmt.Errorf("config: secret_key must be at least %d characters", auth.MinSecretLength)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("config: bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.SessionLifetime <= 0 {
		return errors.New("config: session_lifetime must be positive")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// UsingDevSecret reports whether sessions are signed with DevSecretKey.
func (c *Config) UsingDevSecret() bool {
	return c.SecretKey == DevSecretKey
}

// SlogLevel parses LogLevel ("debug", "info", "warn", "error").
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: invalid log_level %q", c.LogLevel)
	}
	return level, nil
}
