// Package config loads, normalizes, and validates dmmsync configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DMMSYNC_POSTGRES_DSN. The Config type centralizes every knob the ingestion
// run and CLI need so queue capacities, storage targets and parser backends
// are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
