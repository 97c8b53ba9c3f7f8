// Package config loads, validates, and normalizes libretto configuration.
//
// Configuration is TOML with defaults for every field; a missing config file
// is not an error. Paths are tilde-expanded and made absolute during load so
// the rest of the codebase never handles relative paths.
package config
