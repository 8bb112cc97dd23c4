// Package config handles configuration loading for callguardd.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from CALLGUARD_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/callguard/callguardd.yaml
//  3. ~/.config/callguard/callguardd.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  token_secret: "${CALLGUARD_TOKEN_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	dedup:
//	  processed_ttl: "5m"
//	  cancelled_ttl: "2m"
//	  sweep_interval: "60s"
//
// Supported units: ns, us, ms, s, m, h
package config
