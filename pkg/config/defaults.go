package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress      = "127.0.0.1:8080"
	DefaultReadTimeout        = 10 * time.Second
	DefaultWriteTimeout       = 10 * time.Second
	DefaultIdleTimeout        = 120 * time.Second
	DefaultShutdownTimeout    = 30 * time.Second
	DefaultInternalAuthHeader = "X-Internal-Auth"
	DefaultTLSMinVersion      = "1.3"
	DefaultTLSClientAuth      = "require"
	DefaultTLSIdentitySource  = "subject.CN"

	// Storage defaults
	DefaultStorageBackend           = "sqlite"
	DefaultSQLitePath               = "data/spendcap.db"
	DefaultSQLiteDriver             = "sqlite"
	DefaultSQLiteBusyTimeout        = 5 * time.Second
	DefaultSQLiteCheckpointInterval = 5 * time.Minute
	DefaultPostgresPort             = 5432
	DefaultPostgresSSLMode          = "require"
	DefaultPostgresMaxOpenConns     = 20
	DefaultPostgresMaxIdleConns     = 5
	DefaultPostgresConnMaxLifetime  = 30 * time.Minute
	DefaultRedisAddress             = "127.0.0.1:6379"
	DefaultRedisKeyPrefix           = "spendcap"

	// Limits defaults
	DefaultOperationTimeout     = 2 * time.Second
	DefaultProvisioningDebounce = 250 * time.Millisecond

	// Retention defaults
	DefaultRetentionEnabled  = true
	DefaultRetentionSchedule = "0 3 * * *"
	DefaultRetentionHorizon  = 400 * 24 * time.Hour

	// Secrets defaults
	DefaultSecretsEnvPrefix = "SPENDCAP_SECRET_"

	// Events defaults
	DefaultEventsTopic        = "spend.recorded"
	DefaultEventsWriteTimeout = 5 * time.Second

	// Telemetry defaults
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
	DefaultLogRedactSecrets   = true
	DefaultMetricsEnabled     = true
	DefaultMetricsPath        = "/metrics"
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingSampleRatio = 1.0
	DefaultTracingServiceName = "spendcap"
)

// Default returns a configuration with every default applied. Loading
// decodes YAML on top of it, so booleans whose default is true stay true
// unless the file sets them to false.
func Default() *Config {
	cfg := &Config{
		Retention: RetentionConfig{Enabled: DefaultRetentionEnabled},
		Telemetry: TelemetryConfig{
			Logging: LoggingConfig{RedactSecrets: DefaultLogRedactSecrets},
			Metrics: MetricsConfig{Enabled: DefaultMetricsEnabled},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults. Boolean
// fields are left alone since false is indistinguishable from unset.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.InternalAuthHeader == "" {
		cfg.Server.InternalAuthHeader = DefaultInternalAuthHeader
	}
	if cfg.Server.TLS.MinVersion == "" {
		cfg.Server.TLS.MinVersion = DefaultTLSMinVersion
	}
	if cfg.Server.TLS.ClientAuth == "" {
		cfg.Server.TLS.ClientAuth = DefaultTLSClientAuth
	}
	if cfg.Server.TLS.IdentitySource == "" {
		cfg.Server.TLS.IdentitySource = DefaultTLSIdentitySource
	}

	// Storage defaults
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	applySQLiteDefaults(&cfg.Storage.SQLite)
	applyPostgresDefaults(&cfg.Storage.Postgres)
	if cfg.Storage.Redis.Address == "" {
		cfg.Storage.Redis.Address = DefaultRedisAddress
	}
	if cfg.Storage.Redis.KeyPrefix == "" {
		cfg.Storage.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// Limits defaults
	if cfg.Limits.OperationTimeout == 0 {
		cfg.Limits.OperationTimeout = DefaultOperationTimeout
	}
	if cfg.Limits.Provisioning.Debounce == 0 {
		cfg.Limits.Provisioning.Debounce = DefaultProvisioningDebounce
	}

	// Retention defaults
	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = DefaultRetentionSchedule
	}
	if cfg.Retention.Horizon == 0 {
		cfg.Retention.Horizon = DefaultRetentionHorizon
	}

	// Events defaults
	if cfg.Events.Topic == "" {
		cfg.Events.Topic = DefaultEventsTopic
	}
	if cfg.Events.WriteTimeout == 0 {
		cfg.Events.WriteTimeout = DefaultEventsWriteTimeout
	}

	if cfg.Secrets.EnvPrefix == "" {
		cfg.Secrets.EnvPrefix = DefaultSecretsEnvPrefix
	}

	applyTelemetryDefaults(&cfg.Telemetry)
}

func applySQLiteDefaults(cfg *SQLiteConfig) {
	if cfg.Path == "" {
		cfg.Path = DefaultSQLitePath
	}
	if cfg.Driver == "" {
		cfg.Driver = DefaultSQLiteDriver
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = DefaultSQLiteCheckpointInterval
	}
}

func applyPostgresDefaults(cfg *PostgresConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPostgresPort
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = DefaultPostgresSSLMode
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = DefaultPostgresMaxOpenConns
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = DefaultPostgresMaxIdleConns
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = DefaultPostgresConnMaxLifetime
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = DefaultTracingServiceName
	}
}
