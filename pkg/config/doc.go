// Package config handles server-side configuration loading from an optional
// YAML file, environment overrides and built-in defaults.
package config
