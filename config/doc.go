// Package config provides configuration management for the engine.
//
// Configuration merges defaults, a YAML file, and environment variables,
// in that order. A polling watcher supports hot reload of the file for
// long-running deployments.
package config
