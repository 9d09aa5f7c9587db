// Package config loads, normalizes, and validates relay configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), resolves relative paths against the configured home directory,
// and reads TOML files. Stage entries receive derived queue, lock, and speed
// file locations so the processor never has to guess at filesystem layout.
//
// Always obtain settings through this package so downstream code receives
// absolute paths and clear validation errors.
package config
