// Package config loads the grimoire.yml service configuration. Every key can
// be overridden from the environment so containerized deployments need no
// config file at all.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level grimoire.yml configuration.
type Config struct {
	// ListenAddr is the host:port the HTTP and websocket server binds to.
	ListenAddr string `yaml:"listen_addr"`
	// Instance namespaces all Redis keys so several deployments can share
	// one Redis server.
	Instance string `yaml:"instance"`
	// RedisURL is the primary document store, e.g. redis://localhost:6379/0.
	RedisURL string `yaml:"redis_url"`
	// PostgresURL switches document storage to Postgres when set.
	PostgresURL string `yaml:"postgres_url,omitempty"`

	Auth    AuthConfig    `yaml:"auth"`
	CORS    CORSConfig    `yaml:"cors,omitempty"`
	Refdata RefdataConfig `yaml:"refdata,omitempty"`
}

// AuthConfig holds the two credential tiers.
type AuthConfig struct {
	// JWTSecret signs and verifies user tokens.
	JWTSecret string `yaml:"jwt_secret"`
	// ServiceToken is the static full-access token for trusted services.
	// Empty disables the service tier.
	ServiceToken string `yaml:"service_token,omitempty"`
}

// CORSConfig controls the Access-Control-Allow-Origin header.
type CORSConfig struct {
	Origin string `yaml:"origin,omitempty"`
}

// RefdataConfig controls the reference-data cache.
type RefdataConfig struct {
	// Path is the tutorials/commands YAML file; empty disables the cache.
	Path string `yaml:"path,omitempty"`
	// RefreshInterval is how often tutorials and commands are re-pulled.
	RefreshInterval time.Duration `yaml:"refresh_interval,omitempty"`
}

// Environment override keys. Any set variable wins over the file value.
const (
	EnvListenAddr   = "GRIMOIRE_LISTEN_ADDR"
	EnvInstance     = "GRIMOIRE_INSTANCE"
	EnvRedisURL     = "GRIMOIRE_REDIS_URL"
	EnvPostgresURL  = "GRIMOIRE_POSTGRES_URL"
	EnvJWTSecret    = "GRIMOIRE_JWT_SECRET"
	EnvServiceToken = "GRIMOIRE_SERVICE_TOKEN"
	EnvCORSOrigin   = "GRIMOIRE_CORS_ORIGIN"
)

// Defaults applied before validation.
const (
	DefaultListenAddr      = ":8080"
	DefaultInstance        = "grimoire"
	DefaultRedisURL        = "redis://localhost:6379/0"
	DefaultRefreshInterval = 15 * time.Minute
)

// Load reads path (when it exists), applies environment overrides and
// validates the result. A missing file is fine as long as the environment
// carries the required keys.
func Load(path string) (*Config, error) {
	var config Config

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	config.applyEnv()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

func (c *Config) applyEnv() {
	overrides := []struct {
		env    string
		target *string
	}{
		{EnvListenAddr, &c.ListenAddr},
		{EnvInstance, &c.Instance},
		{EnvRedisURL, &c.RedisURL},
		{EnvPostgresURL, &c.PostgresURL},
		{EnvJWTSecret, &c.Auth.JWTSecret},
		{EnvServiceToken, &c.Auth.ServiceToken},
		{EnvCORSOrigin, &c.CORS.Origin},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.env); ok {
			*o.target = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.Instance == "" {
		c.Instance = DefaultInstance
	}
	if c.RedisURL == "" && c.PostgresURL == "" {
		c.RedisURL = DefaultRedisURL
	}
	if c.Refdata.RefreshInterval == 0 {
		c.Refdata.RefreshInterval = DefaultRefreshInterval
	}
}

// Validate performs strict validation on the configuration.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required (or set %s)", EnvJWTSecret)
	}

	if c.RedisURL != "" {
		if _, err := url.Parse(c.RedisURL); err != nil {
			return fmt.Errorf("invalid redis_url: %w", err)
		}
	}
	if c.PostgresURL != "" {
		if _, err := url.Parse(c.PostgresURL); err != nil {
			return fmt.Errorf("invalid postgres_url: %w", err)
		}
	}
	if c.RedisURL == "" && c.PostgresURL == "" {
		return fmt.Errorf("either redis_url or postgres_url must be set")
	}

	if c.Refdata.RefreshInterval < time.Second {
		return fmt.Errorf("refdata.refresh_interval must be at least 1s, got %s", c.Refdata.RefreshInterval)
	}
	return nil
}
