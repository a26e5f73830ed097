package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // cgo SQLite driver, registered as "sqlite3"
	_ "modernc.org/sqlite"          // pure Go SQLite driver, registered as "sqlite"
)

// SQLiteBackend implements Backend using SQLite for persistence.
// This backend is suitable for single-instance deployments where caps and
// the ledger must survive restarts.
//
// SQLiteBackend uses a write-ahead log (WAL) for better concurrent read
// performance and checkpoints it periodically. SQLite allows a single
// writer, so the pool is limited to one connection and every operation,
// including fenced inserts, is serialised.
type SQLiteBackend struct {
	*sqlStore

	dbPath             string
	checkpointInterval time.Duration
	done               chan struct{}
	closeOnce          sync.Once
}

// SQLiteBackendConfig configures the SQLite backend.
type SQLiteBackendConfig struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for a throwaway database.
	DBPath string

	// Driver selects the database/sql driver: "sqlite" (modernc.org/sqlite,
	// pure Go) or "sqlite3" (github.com/mattn/go-sqlite3, cgo).
	// Default: "sqlite"
	Driver string

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	CheckpointInterval time.Duration

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// Clock stamps rows that arrive without a timestamp.
	// Default: time.Now
	Clock func() time.Time
}

// NewSQLiteBackend creates a new SQLite storage backend with default settings.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	return NewSQLiteBackendWithConfig(SQLiteBackendConfig{DBPath: dbPath})
}

// NewSQLiteBackendWithConfig creates a new SQLite backend with custom configuration.
func NewSQLiteBackendWithConfig(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.Driver == "" {
		cfg.Driver = "sqlite"
	}
	if cfg.Driver != "sqlite" && cfg.Driver != "sqlite3" {
		return nil, fmt.Errorf("unsupported sqlite driver %q", cfg.Driver)
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(cfg.Driver, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// DSN parameters differ between the two drivers, PRAGMAs do not.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout.Milliseconds()),
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	backend := &SQLiteBackend{
		sqlStore: &sqlStore{
			db:  db,
			d:   sqliteDialect(),
			now: cfg.Clock,
		},
		dbPath:             cfg.DBPath,
		checkpointInterval: cfg.CheckpointInterval,
		done:               make(chan struct{}),
	}

	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := backend.prepare(); err != nil {
		backend.closeStatements()
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	go backend.checkpointLoop()

	return backend, nil
}

func sqliteDialect() dialect {
	return dialect{
		name: "sqlite",
		bind: func(int) string { return "?" },
		encodeTime: func(t time.Time) any {
			return t.UnixNano()
		},
		timeDest: func() (any, func() time.Time) {
			var n int64
			return &n, func() time.Time { return time.Unix(0, n) }
		},
		sumCast: func(expr string) string { return expr },
	}
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS spend_caps (
	resource_id  TEXT PRIMARY KEY,
	daily_sats   INTEGER,
	weekly_sats  INTEGER,
	monthly_sats INTEGER,
	annual_sats  INTEGER,
	created_at   INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS spend_ledger (
	id          TEXT PRIMARY KEY,
	resource_id TEXT NOT NULL,
	amount_sats INTEGER NOT NULL CHECK (amount_sats > 0),
	external_ref TEXT,
	created_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_spend_ledger_resource_created ON spend_ledger(resource_id, created_at);
CREATE INDEX IF NOT EXISTS idx_spend_ledger_created ON spend_ledger(created_at);
`

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteBackend) initSchema() error {
	_, err := s.db.Exec(sqliteSchema)
	return err
}

// Path returns the database file path.
func (s *SQLiteBackend) Path() string {
	return s.dbPath
}

// Close releases any resources held by the backend.
// Close is idempotent and safe to call multiple times.
func (s *SQLiteBackend) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		close(s.done)
		s.closeStatements()

		// Run final checkpoint
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		closeErr = s.db.Close()
	})

	return closeErr
}

// checkpointLoop runs periodic WAL checkpoints.
func (s *SQLiteBackend) checkpointLoop() {
	ticker := time.NewTicker(s.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}
