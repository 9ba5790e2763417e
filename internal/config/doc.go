// Package config loads the server configuration from an optional YAML file
// layered over built-in defaults. Command-line flags are applied on top by
// the entry point.
package config
