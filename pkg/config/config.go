package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config is the root configuration structure for spendcap.
type Config struct {
	// Server contains HTTP server configuration including listen address,
	// timeouts and the internal authentication secret.
	Server ServerConfig `yaml:"server"`

	// Storage selects and configures the cap and ledger backend.
	Storage StorageConfig `yaml:"storage"`

	// Limits contains admission engine settings and cap provisioning.
	Limits LimitsConfig `yaml:"limits"`

	// Retention controls the ledger sweeper.
	Retention RetentionConfig `yaml:"retention"`

	// Events configures publication of recorded spend to Kafka.
	Events EventsConfig `yaml:"events"`

	// Telemetry contains configuration for logging, metrics and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Secrets configures resolution of ${secret:name} references.
	Secrets SecretsConfig `yaml:"secrets"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Format: "host:port" (e.g., "127.0.0.1:8080", "0.0.0.0:8080").
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 10s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the
	// response.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request
	// when keep-alives are enabled.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// InternalAuthSecret is the shared secret callers present in
	// InternalAuthHeader. Empty disables authentication, which is only
	// acceptable on a loopback listener.
	InternalAuthSecret string `yaml:"internal_auth_secret"`

	// InternalAuthSecondarySecret is also accepted while callers roll over
	// to a new InternalAuthSecret.
	InternalAuthSecondarySecret string `yaml:"internal_auth_secondary_secret"`

	// InternalAuthHeader is the request header carrying the secret.
	// Default: "X-Internal-Auth"
	InternalAuthHeader string `yaml:"internal_auth_header"`

	// TLS configures HTTPS and optional client certificate authentication.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig configures TLS for the HTTP server.
type TLSConfig struct {
	// Enabled serves HTTPS instead of plain HTTP.
	Enabled bool `yaml:"enabled"`

	// CertFile is the PEM-encoded server certificate chain.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the PEM-encoded private key.
	KeyFile string `yaml:"key_file"`

	// MinVersion is "1.2" or "1.3".
	// Default: "1.3"
	MinVersion string `yaml:"min_version"`

	// ClientCAFile enables mTLS when set. Client certificates are verified
	// against the CA bundle in this file.
	ClientCAFile string `yaml:"client_ca_file"`

	// ClientAuth is "require" or "verify_if_given".
	// Default: "require"
	ClientAuth string `yaml:"client_auth"`

	// IdentitySource selects the certificate field logged as the caller:
	// "subject.CN", "subject.OU", "subject.O" or "SAN".
	// Default: "subject.CN"
	IdentitySource string `yaml:"identity_source"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	// Backend is one of "memory", "sqlite", "postgres" or "redis".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite-specific configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Postgres contains PostgreSQL-specific configuration.
	Postgres PostgresConfig `yaml:"postgres"`

	// Redis contains Redis-specific configuration.
	Redis RedisConfig `yaml:"redis"`
}

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/spendcap.db"
	Path string `yaml:"path"`

	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo).
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// BusyTimeout is how long to wait on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// CheckpointInterval is how often the WAL is checkpointed.
	// Default: 5m
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
}

// PostgresConfig contains PostgreSQL-specific configuration.
// Either DSN or the individual connection fields may be set.
type PostgresConfig struct {
	// DSN is a full connection string. Takes precedence over the fields below.
	DSN string `yaml:"dsn"`

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// SSLMode is the libpq sslmode.
	// Default: "require"
	SSLMode string `yaml:"ssl_mode"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 20
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// ConnMaxLifetime is the maximum lifetime of a connection.
	// Default: 30m
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// ConnectionString returns DSN, or a URL built from the individual fields.
func (c PostgresConfig) ConnectionString() string {
	if c.DSN != "" {
		return c.DSN
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	if c.SSLMode != "" {
		u.RawQuery = "sslmode=" + url.QueryEscape(c.SSLMode)
	}
	return u.String()
}

// RedisConfig contains Redis-specific configuration.
type RedisConfig struct {
	// Address is host:port of the Redis server.
	// Default: "127.0.0.1:6379"
	Address string `yaml:"address"`

	// Password for AUTH. Empty disables AUTH.
	Password string `yaml:"password"`

	// DB is the logical database number.
	DB int `yaml:"db"`

	// KeyPrefix namespaces every key.
	// Default: "spendcap"
	KeyPrefix string `yaml:"key_prefix"`
}

// LimitsConfig contains admission engine configuration.
type LimitsConfig struct {
	// OperationTimeout bounds the storage work of a single operation.
	// Zero leaves the request context in control.
	// Default: 2s
	OperationTimeout time.Duration `yaml:"operation_timeout"`

	// FencedRecord makes the record route check and insert atomically,
	// rejecting spend that would exceed a cap.
	// Default: false
	FencedRecord bool `yaml:"fenced_record"`

	// Provisioning configures declarative caps from a YAML file.
	Provisioning ProvisioningConfig `yaml:"provisioning"`
}

// ProvisioningConfig configures the cap provisioning file.
type ProvisioningConfig struct {
	// File is the provisioning file path. Empty disables provisioning.
	File string `yaml:"file"`

	// Watch re-applies the file when it changes.
	Watch bool `yaml:"watch"`

	// Debounce is the quiet period before a change is applied.
	// Default: 250ms
	Debounce time.Duration `yaml:"debounce"`

	// StateFile records which resources the file manages so that resources
	// dropped while the process was down are cleared on the next apply.
	// Empty keeps the record in memory only.
	StateFile string `yaml:"state_file"`
}

// RetentionConfig controls ledger sweeping.
type RetentionConfig struct {
	// Enabled turns on the scheduled sweeper.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Schedule is a five-field cron expression.
	// Default: "0 3 * * *"
	Schedule string `yaml:"schedule"`

	// Horizon is how long ledger entries are kept. Must be at least 366 days.
	// Default: 9600h (400 days)
	Horizon time.Duration `yaml:"horizon"`

	// RunOnStart sweeps once when the server starts.
	RunOnStart bool `yaml:"run_on_start"`
}

// EventsConfig configures spend event publication.
type EventsConfig struct {
	// Enabled turns on publishing.
	Enabled bool `yaml:"enabled"`

	// Brokers is the list of Kafka bootstrap brokers.
	Brokers []string `yaml:"brokers"`

	// Topic receives SpendRecorded events.
	// Default: "spend.recorded"
	Topic string `yaml:"topic"`

	// WriteTimeout bounds a single publish.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// SecretsConfig configures where ${secret:name} references in secret-bearing
// fields are resolved from. Providers are tried in order: environment, then
// directory.
type SecretsConfig struct {
	// EnvPrefix is prepended to the upper-cased secret name to form the
	// environment variable name.
	// Default: "SPENDCAP_SECRET_"
	EnvPrefix string `yaml:"env_prefix"`

	// Dir holds one file per secret, named after the secret, as mounted by
	// Kubernetes or Docker secrets. Empty disables the file provider.
	Dir string `yaml:"dir"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line in records.
	AddSource bool `yaml:"add_source"`

	// RedactSecrets masks credentials in log attributes.
	// Default: true
	RedactSecrets bool `yaml:"redact_secrets"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled exposes the metrics endpoint.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path of the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled turns on span export.
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// SampleRatio is the fraction of traces sampled, 0.0 to 1.0.
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName is reported as service.name.
	// Default: "spendcap"
	ServiceName string `yaml:"service_name"`
}

// Redacted returns a copy with secrets masked, suitable for printing.
func (c *Config) Redacted() *Config {
	cp := *c
	cp.Server.InternalAuthSecret = mask(cp.Server.InternalAuthSecret)
	cp.Server.InternalAuthSecondarySecret = mask(cp.Server.InternalAuthSecondarySecret)
	cp.Storage.Postgres.Password = mask(cp.Storage.Postgres.Password)
	cp.Storage.Redis.Password = mask(cp.Storage.Redis.Password)
	if cp.Storage.Postgres.DSN != "" {
		if u, err := url.Parse(cp.Storage.Postgres.DSN); err == nil && u.User != nil {
			if _, ok := u.User.Password(); ok {
				u.User = url.UserPassword(u.User.Username(), "***")
				cp.Storage.Postgres.DSN = u.String()
			}
		}
	}
	cp.Events.Brokers = append([]string(nil), c.Events.Brokers...)
	return &cp
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
