package storage

import (
	"context"
	"os"
	"testing"
)

// TestPostgresBackend runs the backend suite against a live database.
// Set SPENDCAP_TEST_POSTGRES_DSN to enable it.
func TestPostgresBackend(t *testing.T) {
	dsn := os.Getenv("SPENDCAP_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SPENDCAP_TEST_POSTGRES_DSN not set")
	}

	runBackendSuite(t, func(t *testing.T) Backend {
		ctx := context.Background()
		b, err := NewPostgresBackend(ctx, PostgresBackendConfig{DSN: dsn})
		if err != nil {
			t.Fatalf("Failed to create postgres backend: %v", err)
		}
		if _, err := b.db.ExecContext(ctx, `TRUNCATE spend_caps, spend_ledger`); err != nil {
			t.Fatalf("Failed to truncate tables: %v", err)
		}
		t.Cleanup(func() { b.Close() })
		return b
	})
}

func TestPostgresBackend_RequiresDSN(t *testing.T) {
	if _, err := NewPostgresBackend(context.Background(), PostgresBackendConfig{}); err == nil {
		t.Error("Expected error for empty DSN")
	}
}
