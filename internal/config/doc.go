// Package config loads, normalizes, and validates consentsync configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CONSENTSYNC_DATABASE_DSN and CONSENTSYNC_SCHEMA_NAMESPACE. The Config type
// centralizes every knob the CLI and the reconciliation engine need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
