package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SPENDCAP_"

// LoadConfig loads configuration from a YAML file at the specified path.
// The YAML is decoded over Default(), then validated. Environment variables
// are not consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention SPENDCAP_SECTION_FIELD (e.g., SPENDCAP_SERVER_LISTEN_ADDRESS)
// and always take precedence over the file. An empty path skips the file.
//
// The loading sequence is:
// 1. Start from Default()
// 2. Decode YAML from file
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = readFile(path); err != nil {
			return nil, err
		}
	}

	if errs := applyEnvOverrides(cfg, os.LookupEnv); len(errs) > 0 {
		return nil, ValidationError{Errors: errs}
	}
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// readFile decodes path over the defaults.
func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	// Explicit zero values in the file fall back to defaults.
	ApplyDefaults(cfg)
	return cfg, nil
}

// lookupFunc matches os.LookupEnv.
type lookupFunc func(key string) (string, bool)

// envOverrides collects parse errors while applying overrides.
type envOverrides struct {
	lookup lookupFunc
	errs   []FieldError
}

func (e *envOverrides) get(name string) (string, bool) {
	val, ok := e.lookup(EnvPrefix + name)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

func (e *envOverrides) invalid(name, val, kind string) {
	e.errs = append(e.errs, FieldError{
		Field:   EnvPrefix + name,
		Message: fmt.Sprintf("invalid %s %q", kind, val),
	})
}

func (e *envOverrides) str(name string, dst *string) {
	if val, ok := e.get(name); ok {
		*dst = val
	}
}

func (e *envOverrides) duration(name string, dst *time.Duration) {
	if val, ok := e.get(name); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			e.invalid(name, val, "duration")
			return
		}
		*dst = d
	}
}

func (e *envOverrides) boolean(name string, dst *bool) {
	if val, ok := e.get(name); ok {
		b, err := strconv.ParseBool(val)
		if err != nil {
			e.invalid(name, val, "boolean")
			return
		}
		*dst = b
	}
}

func (e *envOverrides) integer(name string, dst *int) {
	if val, ok := e.get(name); ok {
		i, err := strconv.Atoi(val)
		if err != nil {
			e.invalid(name, val, "integer")
			return
		}
		*dst = i
	}
}

func (e *envOverrides) float(name string, dst *float64) {
	if val, ok := e.get(name); ok {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			e.invalid(name, val, "number")
			return
		}
		*dst = f
	}
}

func (e *envOverrides) list(name string, dst *[]string) {
	if val, ok := e.get(name); ok {
		var out []string
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*dst = out
	}
}

// applyEnvOverrides applies SPENDCAP_* variables to cfg and returns one
// FieldError per value that failed to parse.
func applyEnvOverrides(cfg *Config, lookup lookupFunc) []FieldError {
	e := &envOverrides{lookup: lookup}

	// Server overrides
	e.str("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	e.duration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	e.duration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	e.duration("SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	e.duration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	e.str("SERVER_INTERNAL_AUTH_SECRET", &cfg.Server.InternalAuthSecret)
	e.str("SERVER_INTERNAL_AUTH_SECONDARY_SECRET", &cfg.Server.InternalAuthSecondarySecret)
	e.str("SERVER_INTERNAL_AUTH_HEADER", &cfg.Server.InternalAuthHeader)
	e.boolean("SERVER_TLS_ENABLED", &cfg.Server.TLS.Enabled)
	e.str("SERVER_TLS_CERT_FILE", &cfg.Server.TLS.CertFile)
	e.str("SERVER_TLS_KEY_FILE", &cfg.Server.TLS.KeyFile)
	e.str("SERVER_TLS_CLIENT_CA_FILE", &cfg.Server.TLS.ClientCAFile)

	// Storage overrides
	e.str("STORAGE_BACKEND", &cfg.Storage.Backend)
	e.str("STORAGE_SQLITE_PATH", &cfg.Storage.SQLite.Path)
	e.str("STORAGE_SQLITE_DRIVER", &cfg.Storage.SQLite.Driver)
	e.duration("STORAGE_SQLITE_BUSY_TIMEOUT", &cfg.Storage.SQLite.BusyTimeout)
	e.str("STORAGE_POSTGRES_DSN", &cfg.Storage.Postgres.DSN)
	e.str("STORAGE_POSTGRES_HOST", &cfg.Storage.Postgres.Host)
	e.integer("STORAGE_POSTGRES_PORT", &cfg.Storage.Postgres.Port)
	e.str("STORAGE_POSTGRES_DATABASE", &cfg.Storage.Postgres.Database)
	e.str("STORAGE_POSTGRES_USER", &cfg.Storage.Postgres.User)
	e.str("STORAGE_POSTGRES_PASSWORD", &cfg.Storage.Postgres.Password)
	e.str("STORAGE_POSTGRES_SSL_MODE", &cfg.Storage.Postgres.SSLMode)
	e.integer("STORAGE_POSTGRES_MAX_OPEN_CONNS", &cfg.Storage.Postgres.MaxOpenConns)
	e.str("STORAGE_REDIS_ADDRESS", &cfg.Storage.Redis.Address)
	e.str("STORAGE_REDIS_PASSWORD", &cfg.Storage.Redis.Password)
	e.integer("STORAGE_REDIS_DB", &cfg.Storage.Redis.DB)
	e.str("STORAGE_REDIS_KEY_PREFIX", &cfg.Storage.Redis.KeyPrefix)

	// Limits overrides
	e.duration("LIMITS_OPERATION_TIMEOUT", &cfg.Limits.OperationTimeout)
	e.boolean("LIMITS_FENCED_RECORD", &cfg.Limits.FencedRecord)
	e.str("LIMITS_PROVISIONING_FILE", &cfg.Limits.Provisioning.File)
	e.boolean("LIMITS_PROVISIONING_WATCH", &cfg.Limits.Provisioning.Watch)
	e.str("LIMITS_PROVISIONING_STATE_FILE", &cfg.Limits.Provisioning.StateFile)

	// Retention overrides
	e.boolean("RETENTION_ENABLED", &cfg.Retention.Enabled)
	e.str("RETENTION_SCHEDULE", &cfg.Retention.Schedule)
	e.duration("RETENTION_HORIZON", &cfg.Retention.Horizon)
	e.boolean("RETENTION_RUN_ON_START", &cfg.Retention.RunOnStart)

	// Events overrides
	e.boolean("EVENTS_ENABLED", &cfg.Events.Enabled)
	e.list("EVENTS_BROKERS", &cfg.Events.Brokers)
	e.str("EVENTS_TOPIC", &cfg.Events.Topic)

	// Secrets overrides
	e.str("SECRETS_ENV_PREFIX", &cfg.Secrets.EnvPrefix)
	e.str("SECRETS_DIR", &cfg.Secrets.Dir)

	// Telemetry overrides
	e.str("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	e.str("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	e.boolean("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	e.str("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	e.boolean("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	e.str("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	e.float("TELEMETRY_TRACING_SAMPLE_RATIO", &cfg.Telemetry.Tracing.SampleRatio)

	return e.errs
}
