// Package config loads and validates chatsync configuration from YAML
// files with environment variable expansion.
package config
