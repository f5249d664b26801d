// Package config loads, normalizes, and validates flowpool configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FLOWPOOL_POSTGRES_DSN. The Config type centralizes every knob the daemon,
// the pool supervisor and the CLI need.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical log formats, and clear validation errors.
package config
