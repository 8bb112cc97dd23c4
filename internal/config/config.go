// ABOUTME: Configuration loading and parsing for callguardd
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete callguardd configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Dedup    DedupConfig    `yaml:"dedup"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the ingest API address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds ingest API authentication configuration
type AuthConfig struct {
	TokenSecret string `yaml:"token_secret"`
}

// DedupConfig holds TTL and sweep timing for the dedup engine
type DedupConfig struct {
	ProcessedTTL  time.Duration `yaml:"-"`
	CancelledTTL  time.Duration `yaml:"-"`
	SweepInterval time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ProcessedTTLRaw  string `yaml:"processed_ttl"`
	CancelledTTLRaw  string `yaml:"cancelled_ttl"`
	SweepIntervalRaw string `yaml:"sweep_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("auth.token_secret is required")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Dedup.ProcessedTTLRaw != "" {
		cfg.Dedup.ProcessedTTL, err = time.ParseDuration(cfg.Dedup.ProcessedTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing processed_ttl %q: %w", cfg.Dedup.ProcessedTTLRaw, err)
		}
	}

	if cfg.Dedup.CancelledTTLRaw != "" {
		cfg.Dedup.CancelledTTL, err = time.ParseDuration(cfg.Dedup.CancelledTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing cancelled_ttl %q: %w", cfg.Dedup.CancelledTTLRaw, err)
		}
	}

	if cfg.Dedup.SweepIntervalRaw != "" {
		cfg.Dedup.SweepInterval, err = time.ParseDuration(cfg.Dedup.SweepIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing sweep_interval %q: %w", cfg.Dedup.SweepIntervalRaw, err)
		}
	}

	return nil
}
