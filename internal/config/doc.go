// Package config loads, normalizes, and validates chorusd configuration
// from TOML files with sensible defaults for every field.
package config
