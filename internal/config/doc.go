// Package config loads, normalizes, and validates TeslaBox configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// AWS_ACCESS_KEY_ID and TESLABOX_RAM_DIR. The Config type centralizes every
// knob the daemon and CLI need, so the ram directory, object store
// credentials and pipeline tuning are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical quality tiers, and clear validation errors.
package config
