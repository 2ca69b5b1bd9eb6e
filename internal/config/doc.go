// Package config provides configuration loading and validation for the
// speechcoach client. Configuration is YAML, overlaid onto Default, with
// per-section validation and environment overrides for credentials.
package config
