package platform

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimeout       = 15 * time.Second
	defaultRatePerSecond = 1.0
	defaultBurst         = 3
)

// Config holds the platform connection settings and acts as the delivery
// pipeline's activation gate: no attempt is made while Active() is false.
//
// The API token is never stored in the YAML file; TokenEnv names the
// environment variable that carries it.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	BaseURL  string `yaml:"base_url"`
	TokenEnv string `yaml:"token_env"`

	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`

	token string
}

type configFile struct {
	Platform Config `yaml:"platform"`
}

// LoadConfig reads the platform configuration from a YAML file and resolves
// the API token from the environment.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path comes from a CLI flag or env, not user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read platform config: %w", err)
	}

	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse platform config: %w", err)
	}

	cfg := file.Platform
	cfg.applyDefaults()
	if cfg.TokenEnv != "" {
		cfg.token = os.Getenv(cfg.TokenEnv)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfigFromEnv builds the configuration from environment variables.
// Used when no config file is supplied.
//
// Environment variables:
//   - PLATFORM_ENABLED: "true" to enable syndication (default: false)
//   - PLATFORM_BASE_URL: API base URL (required if enabled)
//   - PLATFORM_TOKEN: API token (required if enabled)
func LoadConfigFromEnv() (*Config, error) {
	cfg := &Config{
		Enabled: os.Getenv("PLATFORM_ENABLED") == "true",
		BaseURL: os.Getenv("PLATFORM_BASE_URL"),
		token:   os.Getenv("PLATFORM_TOKEN"),
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = defaultRatePerSecond
	}
	if c.Burst <= 0 {
		c.Burst = defaultBurst
	}
}

func (c *Config) validate() error {
	if !c.Enabled {
		return nil
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid platform base_url %q", c.BaseURL)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("platform base_url must be http(s), got %q", u.Scheme)
	}
	return nil
}

// Active reports whether the pipeline may attempt deliveries: the platform
// integration is enabled and a credential is present.
func (c *Config) Active() bool {
	return c != nil && c.Enabled && c.BaseURL != "" && c.token != ""
}

// Token returns the resolved API token.
func (c *Config) Token() string {
	return c.token
}

// SetToken overrides the resolved token. Intended for tests.
func (c *Config) SetToken(token string) {
	c.token = token
}
