// Package config loads, validates, and normalizes threadsync
// configuration from a TOML file with sensible defaults.
package config
