// Package config provides configuration management for spendcap.
//
// This package handles loading and validating configuration from YAML files
// with environment variable overrides. Every field has a default, so an
// empty file (or no file at all) yields a runnable single-node setup backed
// by SQLite.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("spendcap.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("spendcap.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention SPENDCAP_SECTION_FIELD.
// For example:
//
//   - SPENDCAP_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - SPENDCAP_STORAGE_POSTGRES_DSN overrides storage.postgres.dsn
//   - SPENDCAP_EVENTS_BROKERS overrides events.brokers (comma separated)
//
// A variable that fails to parse is reported as a validation error rather
// than silently ignored.
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Validation
//
// All errors are collected and reported together with field paths:
//
//	configuration validation failed with 2 errors:
//	  - storage.backend: backend must be one of memory, sqlite, postgres, redis; got "mysql"
//	  - retention.horizon: horizon must be at least 8784h0m0s (366 days), got 720h0m0s
//
// # Example Configuration
//
//	server:
//	  listen_address: "127.0.0.1:8080"
//	  internal_auth_secret: "change-me"
//
//	storage:
//	  backend: "postgres"
//	  postgres:
//	    dsn: "postgres://spendcap@db:5432/spendcap?sslmode=disable"
//
//	limits:
//	  fenced_record: true
//	  provisioning:
//	    file: "caps.yaml"
//	    watch: true
//	    state_file: "/var/lib/spendcap/caps.state.yaml"
//
//	retention:
//	  schedule: "0 3 * * *"
//	  horizon: "9600h"
package config
