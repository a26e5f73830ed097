package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{
			name:   "empty listen address",
			modify: func(c *Config) { c.Server.ListenAddress = "" },
			field:  "server.listen_address",
		},
		{
			name:   "listen address without port",
			modify: func(c *Config) { c.Server.ListenAddress = "localhost" },
			field:  "server.listen_address",
		},
		{
			name:   "negative read timeout",
			modify: func(c *Config) { c.Server.ReadTimeout = -time.Second },
			field:  "server.read_timeout",
		},
		{
			name:   "empty auth header",
			modify: func(c *Config) { c.Server.InternalAuthHeader = "" },
			field:  "server.internal_auth_header",
		},
		{
			name:   "public listener without secret",
			modify: func(c *Config) { c.Server.ListenAddress = "0.0.0.0:8080" },
			field:  "server.internal_auth_secret",
		},
		{
			name:   "all interfaces without secret",
			modify: func(c *Config) { c.Server.ListenAddress = ":8080" },
			field:  "server.internal_auth_secret",
		},
		{
			name:   "secondary secret without primary",
			modify: func(c *Config) { c.Server.InternalAuthSecondarySecret = "old" },
			field:  "server.internal_auth_secondary_secret",
		},
		{
			name:   "tls without cert",
			modify: func(c *Config) { c.Server.TLS.Enabled = true; c.Server.TLS.KeyFile = "key.pem" },
			field:  "server.tls.cert_file",
		},
		{
			name: "tls 1.1",
			modify: func(c *Config) {
				c.Server.TLS = TLSConfig{Enabled: true, CertFile: "c.pem", KeyFile: "k.pem", MinVersion: "1.1", ClientAuth: "require", IdentitySource: "SAN"}
			},
			field: "server.tls.min_version",
		},
		{
			name: "unknown client auth",
			modify: func(c *Config) {
				c.Server.TLS = TLSConfig{Enabled: true, CertFile: "c.pem", KeyFile: "k.pem", MinVersion: "1.3", ClientAuth: "request", IdentitySource: "SAN"}
			},
			field: "server.tls.client_auth",
		},
		{
			name: "unknown identity source",
			modify: func(c *Config) {
				c.Server.TLS = TLSConfig{Enabled: true, CertFile: "c.pem", KeyFile: "k.pem", MinVersion: "1.3", ClientAuth: "require", IdentitySource: "email"}
			},
			field: "server.tls.identity_source",
		},
		{
			name:   "unknown backend",
			modify: func(c *Config) { c.Storage.Backend = "mysql" },
			field:  "storage.backend",
		},
		{
			name:   "unknown sqlite driver",
			modify: func(c *Config) { c.Storage.SQLite.Driver = "sqlcipher" },
			field:  "storage.sqlite.driver",
		},
		{
			name: "postgres without dsn or host",
			modify: func(c *Config) {
				c.Storage.Backend = "postgres"
				c.Storage.Postgres.Database = "spendcap"
			},
			field: "storage.postgres.host",
		},
		{
			name: "postgres idle above open",
			modify: func(c *Config) {
				c.Storage.Backend = "postgres"
				c.Storage.Postgres.DSN = "postgres://db/x"
				c.Storage.Postgres.MaxOpenConns = 2
				c.Storage.Postgres.MaxIdleConns = 5
			},
			field: "storage.postgres.max_idle_conns",
		},
		{
			name: "redis without address",
			modify: func(c *Config) {
				c.Storage.Backend = "redis"
				c.Storage.Redis.Address = ""
			},
			field: "storage.redis.address",
		},
		{
			name:   "watch without file",
			modify: func(c *Config) { c.Limits.Provisioning.Watch = true },
			field:  "limits.provisioning.watch",
		},
		{
			name: "state file is the provisioning file",
			modify: func(c *Config) {
				c.Limits.Provisioning.File = "caps.yaml"
				c.Limits.Provisioning.StateFile = "caps.yaml"
			},
			field: "limits.provisioning.state_file",
		},
		{
			name:   "negative operation timeout",
			modify: func(c *Config) { c.Limits.OperationTimeout = -1 },
			field:  "limits.operation_timeout",
		},
		{
			name:   "horizon equal to annual window",
			modify: func(c *Config) { c.Retention.Horizon = 365 * 24 * time.Hour },
			field:  "retention.horizon",
		},
		{
			name:   "invalid schedule",
			modify: func(c *Config) { c.Retention.Schedule = "every night" },
			field:  "retention.schedule",
		},
		{
			name:   "events without brokers",
			modify: func(c *Config) { c.Events.Enabled = true },
			field:  "events.brokers",
		},
		{
			name: "events with bad broker",
			modify: func(c *Config) {
				c.Events.Enabled = true
				c.Events.Brokers = []string{"kafka"}
			},
			field: "events.brokers[0]",
		},
		{
			name:   "bad log level",
			modify: func(c *Config) { c.Telemetry.Logging.Level = "trace" },
			field:  "telemetry.logging.level",
		},
		{
			name:   "bad log format",
			modify: func(c *Config) { c.Telemetry.Logging.Format = "xml" },
			field:  "telemetry.logging.format",
		},
		{
			name:   "metrics path",
			modify: func(c *Config) { c.Telemetry.Metrics.Path = "metrics" },
			field:  "telemetry.metrics.path",
		},
		{
			name: "sample ratio",
			modify: func(c *Config) {
				c.Telemetry.Tracing.Enabled = true
				c.Telemetry.Tracing.SampleRatio = 1.5
			},
			field: "telemetry.tracing.sample_ratio",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := Validate(cfg)
			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if !verr.HasField(tt.field) {
				t.Errorf("expected error on %s, got %v", tt.field, verr)
			}
		})
	}
}

func TestValidate_AuthSecretByListener(t *testing.T) {
	tests := []struct {
		listen  string
		secret  string
		wantErr bool
	}{
		{"127.0.0.1:8080", "", false},
		{"localhost:8080", "", false},
		{"[::1]:8080", "", false},
		{"10.0.0.5:8080", "", true},
		{"[::]:8080", "", true},
		{"api.internal:8080", "", true},
		{"0.0.0.0:8080", "s3cret", false},
	}

	for _, tt := range tests {
		t.Run(tt.listen, func(t *testing.T) {
			cfg := Default()
			cfg.Server.ListenAddress = tt.listen
			cfg.Server.InternalAuthSecret = tt.secret

			err := Validate(cfg)
			var verr ValidationError
			hasErr := errors.As(err, &verr) && verr.HasField("server.internal_auth_secret")
			if hasErr != tt.wantErr {
				t.Errorf("Validate(%q, secret=%q) error on internal_auth_secret = %v, want %v (err: %v)",
					tt.listen, tt.secret, hasErr, tt.wantErr, err)
			}
		})
	}
}

func TestValidate_DisabledSectionsSkipped(t *testing.T) {
	cfg := Default()
	cfg.Retention.Enabled = false
	cfg.Retention.Schedule = "not a cron"
	cfg.Telemetry.Tracing.SampleRatio = 7

	if err := Validate(cfg); err != nil {
		t.Errorf("disabled sections should not be validated: %v", err)
	}
}

func TestValidate_MemoryBackend(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "memory"
	cfg.Storage.SQLite.Driver = "bogus"

	if err := Validate(cfg); err != nil {
		t.Errorf("sqlite settings should be ignored for the memory backend: %v", err)
	}
}

func TestValidationError_Error(t *testing.T) {
	one := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}}}
	if got := one.Error(); got != "configuration validation failed: a: bad" {
		t.Errorf("single error = %q", got)
	}

	two := ValidationError{Errors: []FieldError{{Field: "a", Message: "bad"}, {Field: "b", Message: "worse"}}}
	got := two.Error()
	if !strings.Contains(got, "2 errors") || !strings.Contains(got, "  - b: worse") {
		t.Errorf("multi error = %q", got)
	}
}
