// Package config loads, normalizes, and validates the TOML configuration
// shared by the cognivoice worker and gateway services.
package config
