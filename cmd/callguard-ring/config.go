// ABOUTME: Configuration loading for the callguard-ring simulator
// ABOUTME: Loads TOML profile from XDG path with environment variable expansion

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Daemon DaemonConfig `toml:"daemon"`
	Device DeviceConfig `toml:"device"`
}

type DaemonConfig struct {
	URL         string `toml:"url"`
	TokenSecret string `toml:"token_secret"`
}

type DeviceConfig struct {
	ID string `toml:"id"`
}

// Load reads config from the given path, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables (${VAR} syntax)
	expanded := expandEnvVars(string(data))

	var cfg Config
	if _, err := toml.Decode(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Daemon.URL == "" {
		return fmt.Errorf("daemon.url is required")
	}
	if c.Daemon.TokenSecret == "" {
		return fmt.Errorf("daemon.token_secret is required")
	}
	if c.Device.ID == "" {
		c.Device.ID = "callguard-ring"
	}
	return nil
}

func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// defaultConfigPath returns the XDG path of the ring profile.
func defaultConfigPath() string {
	if envPath := os.Getenv("CALLGUARD_RING_CONFIG"); envPath != "" {
		return envPath
	}
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "callguard-ring.toml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "callguard", "ring.toml")
}
