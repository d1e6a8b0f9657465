package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all service configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Plugins   PluginsConfig
	Loader    LoaderConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// PluginsConfig holds plugin-rule file configuration.
type PluginsConfig struct {
	// Path to a YAML or TOML file of scope/escape rules; empty disables.
	Path string `envconfig:"PLUGINS_PATH" default:""`
}

// LoaderConfig holds remote script loader configuration.
type LoaderConfig struct {
	MaxScriptBytes int64 `envconfig:"LOADER_MAX_SCRIPT_BYTES" default:"5242880"`
	RetryMax       int   `envconfig:"LOADER_RETRY_MAX" default:"3"`
	TimeoutSeconds int   `envconfig:"LOADER_TIMEOUT_SECONDS" default:"15"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Loader: LoaderConfig{
			MaxScriptBytes: 5 * 1024 * 1024,
			RetryMax:       3,
			TimeoutSeconds: 15,
		},
	}
}
