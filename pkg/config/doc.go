// Package config provides configuration management for the event gateway.
//
// This package handles loading, validating, and managing configuration from
// YAML or TOML files with environment variable overrides. It provides a
// type-safe configuration system with validation and sensible defaults.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// Files ending in .toml are parsed as TOML; everything else is parsed as
// YAML. Both formats use the same keys.
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention EVENTGATE_SECTION_FIELD.
// For example:
//
//   - EVENTGATE_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - EVENTGATE_STORE_PATH overrides store.path
//   - EVENTGATE_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// Environment variables always take precedence over file-based configuration.
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from the configuration file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Singleton Pattern
//
// For application-wide configuration access, use the singleton:
//
//	if err := config.Initialize("config.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//	cfg := config.GetConfig()
//
// # Hot Reload
//
// A Watcher reloads the singleton when the file changes on disk. A reload
// that fails validation leaves the previous configuration in place.
package config
