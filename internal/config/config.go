// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mstoykov/envconfig"
)

// Config holds all service configuration
type Config struct {
	// Remote ends
	RemoteURLs          []string      `envconfig:"REMOTE_URLS"`
	CommandTimeout      time.Duration `envconfig:"COMMAND_TIMEOUT"`
	DebugURL            string        `envconfig:"DEBUG_URL"`
	HealthCheckInterval time.Duration `envconfig:"HEALTH_CHECK_INTERVAL"`

	// Server
	ServerPort         string        `envconfig:"SERVER_PORT"`
	MaxSessions        int           `envconfig:"MAX_SESSIONS"`
	SessionIdleTimeout time.Duration `envconfig:"SESSION_IDLE_TIMEOUT"`
	CleanupInterval    time.Duration `envconfig:"CLEANUP_INTERVAL"`
	Env                string        `envconfig:"ENV"`

	// Redis; an empty address runs without persistence
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		RemoteURLs:          []string{"http://localhost:4444"},
		CommandTimeout:      60 * time.Second,
		HealthCheckInterval: 30 * time.Second,
		ServerPort:          "8080",
		MaxSessions:         50,
		SessionIdleTimeout:  30 * time.Minute,
		CleanupInterval:     time.Minute,
		Env:                 "development",
		SessionTTL:          time.Hour,
	}
}

// Load reads the process environment over the defaults.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads configuration through lookup over the defaults.
func LoadFrom(lookup func(key string) (string, bool)) (*Config, error) {
	cfg := Default()
	if err := envconfig.Process("", &cfg, lookup); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	for i, u := range cfg.RemoteURLs {
		cfg.RemoteURLs[i] = strings.TrimSpace(u)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if len(c.RemoteURLs) == 0 {
		return errors.New("REMOTE_URLS must name at least one remote end")
	}
	for _, raw := range c.RemoteURLs {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("invalid remote url %q", raw)
		}
	}
	if c.CommandTimeout <= 0 {
		return errors.New("COMMAND_TIMEOUT must be positive")
	}
	if c.MaxSessions <= 0 {
		return errors.New("MAX_SESSIONS must be positive")
	}
	if c.ServerPort == "" {
		return errors.New("SERVER_PORT is required")
	}
	if c.CleanupInterval <= 0 || c.SessionIdleTimeout <= 0 {
		return errors.New("CLEANUP_INTERVAL and SESSION_IDLE_TIMEOUT must be positive")
	}
	return nil
}

// Production reports whether the service runs in production mode.
func (c *Config) Production() bool {
	return c.Env == "production"
}
