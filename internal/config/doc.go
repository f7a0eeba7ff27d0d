// Package config loads, normalizes, and validates LSM configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// LSM_DATABASE_DSN. The Config type centralizes every knob the server and CLI
// need, so data directories, database connection details, and upload limits
// are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
