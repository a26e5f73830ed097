package config

import (
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("listen address = %q", cfg.Server.ListenAddress)
	}
	if cfg.Server.InternalAuthHeader != "X-Internal-Auth" {
		t.Errorf("auth header = %q", cfg.Server.InternalAuthHeader)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Storage.SQLite.Driver != "sqlite" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if !cfg.Retention.Enabled {
		t.Error("retention should be enabled by default")
	}
	if cfg.Retention.Horizon != 400*24*time.Hour {
		t.Errorf("horizon = %s, want 400 days", cfg.Retention.Horizon)
	}
	if cfg.Limits.FencedRecord {
		t.Error("fenced record should be off by default")
	}
	if !cfg.Telemetry.Logging.RedactSecrets || !cfg.Telemetry.Metrics.Enabled {
		t.Error("redaction and metrics should be on by default")
	}
	if cfg.Telemetry.Tracing.Enabled {
		t.Error("tracing should be off by default")
	}
	if cfg.Server.TLS.Enabled || cfg.Server.TLS.MinVersion != "1.3" || cfg.Server.TLS.ClientAuth != "require" {
		t.Errorf("tls = %+v", cfg.Server.TLS)
	}
	if cfg.Secrets.EnvPrefix != "SPENDCAP_SECRET_" {
		t.Errorf("secrets env prefix = %q", cfg.Secrets.EnvPrefix)
	}
	if cfg.Events.Topic != "spend.recorded" {
		t.Errorf("events topic = %q", cfg.Events.Topic)
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("default configuration should validate: %v", err)
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{
		Server:  ServerConfig{ListenAddress: "0.0.0.0:9000", ReadTimeout: time.Second},
		Storage: StorageConfig{Backend: "redis", Redis: RedisConfig{KeyPrefix: "tenant-a"}},
	}
	ApplyDefaults(cfg)

	if cfg.Server.ListenAddress != "0.0.0.0:9000" {
		t.Errorf("listen address overwritten: %q", cfg.Server.ListenAddress)
	}
	if cfg.Server.ReadTimeout != time.Second {
		t.Errorf("read timeout overwritten: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != DefaultWriteTimeout {
		t.Errorf("write timeout = %s, want default", cfg.Server.WriteTimeout)
	}
	if cfg.Storage.Redis.KeyPrefix != "tenant-a" {
		t.Errorf("key prefix overwritten: %q", cfg.Storage.Redis.KeyPrefix)
	}
	if cfg.Storage.Redis.Address != DefaultRedisAddress {
		t.Errorf("redis address = %q, want default", cfg.Storage.Redis.Address)
	}
}

func TestPostgresConfig_ConnectionString(t *testing.T) {
	tests := []struct {
		name string
		cfg  PostgresConfig
		want string
	}{
		{
			name: "dsn wins",
			cfg:  PostgresConfig{DSN: "host=db dbname=x", Host: "ignored"},
			want: "host=db dbname=x",
		},
		{
			name: "fields",
			cfg: PostgresConfig{
				Host: "db", Port: 5432, Database: "spendcap",
				User: "app", Password: "p@ss", SSLMode: "disable",
			},
			want: "postgres://app:p%40ss@db:5432/spendcap?sslmode=disable",
		},
		{
			name: "no credentials",
			cfg:  PostgresConfig{Host: "db", Port: 6543, Database: "spendcap"},
			want: "postgres://db:6543/spendcap",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ConnectionString(); got != tt.want {
				t.Errorf("ConnectionString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfig_Redacted(t *testing.T) {
	cfg := Default()
	cfg.Server.InternalAuthSecret = "topsecret"
	cfg.Storage.Postgres.DSN = "postgres://app:hunter2@db/spendcap"
	cfg.Storage.Redis.Password = "redispw"

	r := cfg.Redacted()
	if r.Server.InternalAuthSecret != "***" || r.Storage.Redis.Password != "***" {
		t.Errorf("secrets not masked: %+v", r.Server)
	}
	if r.Storage.Postgres.DSN != "postgres://app:%2A%2A%2A@db/spendcap" && r.Storage.Postgres.DSN != "postgres://app:***@db/spendcap" {
		t.Errorf("dsn password not masked: %q", r.Storage.Postgres.DSN)
	}
	if cfg.Server.InternalAuthSecret != "topsecret" {
		t.Error("Redacted modified the original")
	}
}
