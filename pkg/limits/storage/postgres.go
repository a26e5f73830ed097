package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver, registered as "postgres"
)

// PostgresBackend implements Backend on PostgreSQL.
// It is the backend for multi-instance deployments: fenced inserts take a
// transaction-scoped advisory lock keyed by resource, so concurrent
// InsertEntryIfWithin calls for the same resource serialise across processes.
type PostgresBackend struct {
	*sqlStore

	closeOnce sync.Once
}

// PostgresBackendConfig configures the PostgreSQL backend.
type PostgresBackendConfig struct {
	// DSN is the lib/pq connection string.
	DSN string

	// MaxOpenConns bounds the connection pool.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns bounds idle pooled connections.
	// Default: 5
	MaxIdleConns int

	// ConnMaxLifetime recycles connections after this duration.
	// Default: 30 minutes
	ConnMaxLifetime time.Duration

	// Clock stamps rows that arrive without a timestamp.
	// Default: time.Now
	Clock func() time.Time
}

// NewPostgresBackend opens a PostgreSQL backend and creates the schema.
func NewPostgresBackend(ctx context.Context, cfg PostgresBackendConfig) (*PostgresBackend, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn cannot be empty")
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 10
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	backend := &PostgresBackend{
		sqlStore: &sqlStore{
			db:  db,
			d:   postgresDialect(),
			now: cfg.Clock,
		},
	}

	if err := backend.prepare(); err != nil {
		backend.closeStatements()
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return backend, nil
}

func postgresDialect() dialect {
	return dialect{
		name: "postgres",
		bind: func(n int) string { return "$" + strconv.Itoa(n) },
		encodeTime: func(t time.Time) any {
			return t.UTC()
		},
		timeDest: func() (any, func() time.Time) {
			var t time.Time
			return &t, func() time.Time { return t }
		},
		sumCast: func(expr string) string { return expr + "::BIGINT" },
		lockResource: func(ctx context.Context, tx *sql.Tx, resourceID string) error {
			_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, resourceID)
			return err
		},
	}
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS spend_caps (
	resource_id  VARCHAR(255) PRIMARY KEY,
	daily_sats   BIGINT,
	weekly_sats  BIGINT,
	monthly_sats BIGINT,
	annual_sats  BIGINT,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS spend_ledger (
	id           UUID PRIMARY KEY,
	resource_id  VARCHAR(255) NOT NULL,
	amount_sats  BIGINT NOT NULL CHECK (amount_sats > 0),
	external_ref TEXT,
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_spend_ledger_resource_created ON spend_ledger(resource_id, created_at);
CREATE INDEX IF NOT EXISTS idx_spend_ledger_created ON spend_ledger(created_at);
`

// Close releases the connection pool. Close is idempotent.
func (p *PostgresBackend) Close() error {
	var closeErr error
	p.closeOnce.Do(func() {
		p.closeStatements()
		closeErr = p.db.Close()
	})
	return closeErr
}
