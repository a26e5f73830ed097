package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// MinRetentionHorizon is the shortest horizon that never deletes an entry
// the annual window still counts.
const MinRetentionHorizon = 366 * 24 * time.Hour

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// HasField reports whether any error concerns field.
func (e ValidationError) HasField(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateLimits(&cfg.Limits)...)
	errs = append(errs, validateRetention(&cfg.Retention)...)
	errs = append(errs, validateEvents(&cfg.Events)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// validateServer validates server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid host:port %q", cfg.ListenAddress),
		})
	}

	timeouts := []struct {
		field string
		value time.Duration
	}{
		{"server.read_timeout", cfg.ReadTimeout},
		{"server.write_timeout", cfg.WriteTimeout},
		{"server.idle_timeout", cfg.IdleTimeout},
		{"server.shutdown_timeout", cfg.ShutdownTimeout},
	}
	for _, t := range timeouts {
		if t.value < 0 {
			errs = append(errs, FieldError{Field: t.field, Message: "timeout must not be negative"})
		}
	}

	if cfg.InternalAuthHeader == "" {
		errs = append(errs, FieldError{
			Field:   "server.internal_auth_header",
			Message: "auth header name is required",
		})
	}
	if cfg.InternalAuthSecret == "" && cfg.ListenAddress != "" && !isLoopback(cfg.ListenAddress) {
		errs = append(errs, FieldError{
			Field:   "server.internal_auth_secret",
			Message: fmt.Sprintf("required when listening on non-loopback address %q", cfg.ListenAddress),
		})
	}
	if cfg.InternalAuthSecondarySecret != "" && cfg.InternalAuthSecret == "" {
		errs = append(errs, FieldError{
			Field:   "server.internal_auth_secondary_secret",
			Message: "secondary secret requires internal_auth_secret",
		})
	}

	errs = append(errs, validateTLS(&cfg.TLS)...)
	return errs
}

// isLoopback reports whether a host:port only accepts local connections.
// An empty host binds every interface.
func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// validateTLS validates server TLS settings. Certificate contents are
// verified when the server loads them.
func validateTLS(cfg *TLSConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}
	var errs []FieldError

	if cfg.CertFile == "" {
		errs = append(errs, FieldError{Field: "server.tls.cert_file", Message: "cert_file is required when TLS is enabled"})
	}
	if cfg.KeyFile == "" {
		errs = append(errs, FieldError{Field: "server.tls.key_file", Message: "key_file is required when TLS is enabled"})
	}
	if cfg.MinVersion != "1.2" && cfg.MinVersion != "1.3" {
		errs = append(errs, FieldError{
			Field:   "server.tls.min_version",
			Message: fmt.Sprintf("min_version must be 1.2 or 1.3, got %q", cfg.MinVersion),
		})
	}
	if cfg.ClientAuth != "require" && cfg.ClientAuth != "verify_if_given" {
		errs = append(errs, FieldError{
			Field:   "server.tls.client_auth",
			Message: fmt.Sprintf("client_auth must be require or verify_if_given, got %q", cfg.ClientAuth),
		})
	}
	switch cfg.IdentitySource {
	case "subject.CN", "subject.OU", "subject.O", "SAN":
	default:
		errs = append(errs, FieldError{
			Field:   "server.tls.identity_source",
			Message: fmt.Sprintf("unsupported identity source %q", cfg.IdentitySource),
		})
	}

	return errs
}

// validateStorage validates the selected backend's settings.
func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.path",
				Message: "path is required for sqlite backend",
			})
		}
		if cfg.SQLite.Driver != "sqlite" && cfg.SQLite.Driver != "sqlite3" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.driver",
				Message: fmt.Sprintf("driver must be \"sqlite\" or \"sqlite3\", got %q", cfg.SQLite.Driver),
			})
		}
		if cfg.SQLite.BusyTimeout < 0 {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.busy_timeout",
				Message: "busy timeout must not be negative",
			})
		}
	case "postgres":
		pg := cfg.Postgres
		if pg.DSN == "" {
			if pg.Host == "" {
				errs = append(errs, FieldError{
					Field:   "storage.postgres.host",
					Message: "host or dsn is required for postgres backend",
				})
			}
			if pg.Database == "" {
				errs = append(errs, FieldError{
					Field:   "storage.postgres.database",
					Message: "database or dsn is required for postgres backend",
				})
			}
			if pg.Port <= 0 || pg.Port > 65535 {
				errs = append(errs, FieldError{
					Field:   "storage.postgres.port",
					Message: fmt.Sprintf("port must be between 1 and 65535, got %d", pg.Port),
				})
			}
		}
		if pg.MaxOpenConns < 0 || pg.MaxIdleConns < 0 {
			errs = append(errs, FieldError{
				Field:   "storage.postgres.max_open_conns",
				Message: "connection limits must not be negative",
			})
		}
		if pg.MaxOpenConns > 0 && pg.MaxIdleConns > pg.MaxOpenConns {
			errs = append(errs, FieldError{
				Field:   "storage.postgres.max_idle_conns",
				Message: "max idle connections cannot exceed max open connections",
			})
		}
	case "redis":
		if cfg.Redis.Address == "" {
			errs = append(errs, FieldError{
				Field:   "storage.redis.address",
				Message: "address is required for redis backend",
			})
		}
		if cfg.Redis.DB < 0 {
			errs = append(errs, FieldError{
				Field:   "storage.redis.db",
				Message: "db must not be negative",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("backend must be one of memory, sqlite, postgres, redis; got %q", cfg.Backend),
		})
	}

	return errs
}

// validateLimits validates engine and provisioning settings.
func validateLimits(cfg *LimitsConfig) []FieldError {
	var errs []FieldError

	if cfg.OperationTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "limits.operation_timeout",
			Message: "operation timeout must not be negative",
		})
	}
	if cfg.Provisioning.Watch && cfg.Provisioning.File == "" {
		errs = append(errs, FieldError{
			Field:   "limits.provisioning.watch",
			Message: "watch requires limits.provisioning.file",
		})
	}
	if cfg.Provisioning.StateFile != "" && cfg.Provisioning.StateFile == cfg.Provisioning.File {
		errs = append(errs, FieldError{
			Field:   "limits.provisioning.state_file",
			Message: "state file must differ from the provisioning file",
		})
	}
	if cfg.Provisioning.Debounce < 0 {
		errs = append(errs, FieldError{
			Field:   "limits.provisioning.debounce",
			Message: "debounce must not be negative",
		})
	}

	return errs
}

// validateRetention validates the sweeper settings. The horizon is checked
// even when the scheduler is disabled since one-shot sweeps use it too.
func validateRetention(cfg *RetentionConfig) []FieldError {
	var errs []FieldError

	if cfg.Horizon < MinRetentionHorizon {
		errs = append(errs, FieldError{
			Field:   "retention.horizon",
			Message: fmt.Sprintf("horizon must be at least %s (366 days), got %s", MinRetentionHorizon, cfg.Horizon),
		})
	}
	if cfg.Enabled {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "retention.schedule",
				Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.Schedule, err),
			})
		}
	}

	return errs
}

// validateEvents validates Kafka publishing settings.
func validateEvents(cfg *EventsConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return nil
	}
	if len(cfg.Brokers) == 0 {
		errs = append(errs, FieldError{
			Field:   "events.brokers",
			Message: "at least one broker is required when events are enabled",
		})
	}
	for i, b := range cfg.Brokers {
		if _, _, err := net.SplitHostPort(b); err != nil {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("events.brokers[%d]", i),
				Message: fmt.Sprintf("invalid host:port %q", b),
			})
		}
	}
	if cfg.Topic == "" {
		errs = append(errs, FieldError{
			Field:   "events.topic",
			Message: "topic is required when events are enabled",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "events.write_timeout",
			Message: "write timeout must not be negative",
		})
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be debug, info, warn, or error)", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be json or text)", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	if cfg.Tracing.Enabled {
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.endpoint",
				Message: "endpoint is required when tracing is enabled",
			})
		}
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sample_ratio",
				Message: fmt.Sprintf("sample ratio must be between 0.0 and 1.0, got %g", cfg.Tracing.SampleRatio),
			})
		}
	}

	return errs
}
