package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/spendcap/pkg/limits/window"
)

// dialect captures the differences between the SQL engines sharing sqlStore.
type dialect struct {
	// name is reported in StorageError.Backend.
	name string

	// bind returns the placeholder for the n-th (1-based) argument.
	bind func(n int) string

	// encodeTime converts a timestamp into a driver argument.
	encodeTime func(time.Time) any

	// timeDest returns a scan destination and a decoder for it.
	timeDest func() (any, func() time.Time)

	// sumCast wraps a SUM expression so the driver returns an integer.
	sumCast func(expr string) string

	// lockResource serialises fenced inserts for one resource inside tx.
	// When nil, sqlStore falls back to a process-local mutex.
	lockResource func(ctx context.Context, tx *sql.Tx, resourceID string) error
}

// sqlStore implements the Backend operations on top of database/sql.
// SQLiteBackend and PostgresBackend embed it and own the connection lifecycle.
type sqlStore struct {
	db *sql.DB
	d  dialect

	// now stamps rows that arrive without a timestamp.
	now func() time.Time

	// fence serialises InsertEntryIfWithin when the dialect has no row lock.
	fence sync.Mutex

	getCapStmt    *sql.Stmt
	deleteCapStmt *sql.Stmt
	insertStmt    *sql.Stmt
	sweepStmt     *sql.Stmt
}

// capColumn maps a window onto its nullable column in spend_caps.
func capColumn(w window.Window) (string, error) {
	switch w {
	case window.Daily:
		return "daily_sats", nil
	case window.Weekly:
		return "weekly_sats", nil
	case window.Monthly:
		return "monthly_sats", nil
	case window.Annual:
		return "annual_sats", nil
	default:
		return "", window.ErrUnknown
	}
}

func (s *sqlStore) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewStorageError(s.d.name, op, err)
}

// prepare compiles the statements whose shape never changes.
func (s *sqlStore) prepare() error {
	b := s.d.bind
	var err error

	s.getCapStmt, err = s.db.Prepare(fmt.Sprintf(`
		SELECT resource_id, daily_sats, weekly_sats, monthly_sats, annual_sats, created_at, updated_at
		FROM spend_caps
		WHERE resource_id = %s
	`, b(1)))
	if err != nil {
		return fmt.Errorf("failed to prepare get cap statement: %w", err)
	}

	s.deleteCapStmt, err = s.db.Prepare(fmt.Sprintf(`
		DELETE FROM spend_caps WHERE resource_id = %s
	`, b(1)))
	if err != nil {
		return fmt.Errorf("failed to prepare delete cap statement: %w", err)
	}

	s.insertStmt, err = s.db.Prepare(insertEntrySQL(b))
	if err != nil {
		return fmt.Errorf("failed to prepare insert entry statement: %w", err)
	}

	s.sweepStmt, err = s.db.Prepare(fmt.Sprintf(`
		DELETE FROM spend_ledger WHERE created_at < %s
	`, b(1)))
	if err != nil {
		return fmt.Errorf("failed to prepare sweep statement: %w", err)
	}

	return nil
}

func (s *sqlStore) closeStatements() {
	for _, stmt := range []*sql.Stmt{s.getCapStmt, s.deleteCapStmt, s.insertStmt, s.sweepStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
}

func insertEntrySQL(b func(int) string) string {
	return fmt.Sprintf(`
		INSERT INTO spend_ledger (id, resource_id, amount_sats, external_ref, created_at)
		VALUES (%s, %s, %s, %s, %s)
	`, b(1), b(2), b(3), b(4), b(5))
}

// GetCap returns the cap row for a resource, or nil when none exists.
func (s *sqlStore) GetCap(ctx context.Context, resourceID string) (*SpendCap, error) {
	var (
		c                  = &SpendCap{}
		daily, weekly      sql.NullInt64
		monthly, annual    sql.NullInt64
		createdAt, decodeC = s.d.timeDest()
		updatedAt, decodeU = s.d.timeDest()
	)

	err := s.getCapStmt.QueryRowContext(ctx, resourceID).Scan(
		&c.ResourceID, &daily, &weekly, &monthly, &annual, createdAt, updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.wrap("get_cap", err)
	}

	c.Daily = Limit{Sats: daily.Int64, Valid: daily.Valid}
	c.Weekly = Limit{Sats: weekly.Int64, Valid: weekly.Valid}
	c.Monthly = Limit{Sats: monthly.Int64, Valid: monthly.Valid}
	c.Annual = Limit{Sats: annual.Int64, Valid: annual.Valid}
	c.CreatedAt = decodeC()
	c.UpdatedAt = decodeU()

	// A row with every field NULL is treated as absent.
	if c.IsEmpty() {
		return nil, nil
	}
	return c, nil
}

// SetCapField upserts one window column.
func (s *sqlStore) SetCapField(ctx context.Context, resourceID string, w window.Window, sats int64) error {
	col, err := capColumn(w)
	if err != nil {
		return s.wrap("set_cap", err)
	}

	b := s.d.bind
	query := fmt.Sprintf(`
		INSERT INTO spend_caps (resource_id, %[1]s, created_at, updated_at)
		VALUES (%[2]s, %[3]s, %[4]s, %[5]s)
		ON CONFLICT (resource_id) DO UPDATE SET
			%[1]s = excluded.%[1]s,
			updated_at = excluded.updated_at
	`, col, b(1), b(2), b(3), b(4))

	now := s.d.encodeTime(s.now())
	_, err = s.db.ExecContext(ctx, query, resourceID, sats, now, now)
	return s.wrap("set_cap", err)
}

// ClearCapField nulls one column and deletes the row if it is now empty.
// Both statements run in one transaction so no empty row is ever visible.
func (s *sqlStore) ClearCapField(ctx context.Context, resourceID string, w window.Window) (err error) {
	col, err := capColumn(w)
	if err != nil {
		return s.wrap("clear_cap", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap("clear_cap", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	b := s.d.bind
	update := fmt.Sprintf(`UPDATE spend_caps SET %s = NULL, updated_at = %s WHERE resource_id = %s`,
		col, b(1), b(2))
	if _, err = tx.ExecContext(ctx, update, s.d.encodeTime(s.now()), resourceID); err != nil {
		return s.wrap("clear_cap", err)
	}

	cleanup := fmt.Sprintf(`
		DELETE FROM spend_caps
		WHERE resource_id = %s
		  AND daily_sats IS NULL
		  AND weekly_sats IS NULL
		  AND monthly_sats IS NULL
		  AND annual_sats IS NULL
	`, b(1))
	if _, err = tx.ExecContext(ctx, cleanup, resourceID); err != nil {
		return s.wrap("clear_cap", err)
	}

	if err = tx.Commit(); err != nil {
		return s.wrap("clear_cap", err)
	}
	return nil
}

// DeleteCap removes the cap row.
func (s *sqlStore) DeleteCap(ctx context.Context, resourceID string) error {
	_, err := s.deleteCapStmt.ExecContext(ctx, resourceID)
	return s.wrap("delete_cap", err)
}

// stamp fills the ID and timestamp of an entry that lacks them.
func (s *sqlStore) stamp(entry *LedgerEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
}

func (s *sqlStore) entryArgs(entry *LedgerEntry) []any {
	var ref sql.NullString
	if entry.ExternalRef != "" {
		ref = sql.NullString{String: entry.ExternalRef, Valid: true}
	}
	return []any{entry.ID, entry.ResourceID, entry.AmountSats, ref, s.d.encodeTime(entry.CreatedAt)}
}

// InsertEntry appends a ledger entry.
func (s *sqlStore) InsertEntry(ctx context.Context, entry *LedgerEntry) error {
	if entry == nil {
		return s.wrap("insert_entry", ErrNilEntry)
	}
	s.stamp(entry)
	_, err := s.insertStmt.ExecContext(ctx, s.entryArgs(entry)...)
	return s.wrap("insert_entry", err)
}

// InsertEntryIfWithin evaluates caps and appends inside one transaction.
func (s *sqlStore) InsertEntryIfWithin(ctx context.Context, entry *LedgerEntry, caps []WindowCap) (ok bool, err error) {
	if entry == nil {
		return false, s.wrap("insert_entry_fenced", ErrNilEntry)
	}

	if s.d.lockResource == nil {
		s.fence.Lock()
		defer s.fence.Unlock()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, s.wrap("insert_entry_fenced", err)
	}
	defer func() {
		if err != nil || !ok {
			tx.Rollback()
		}
	}()

	if s.d.lockResource != nil {
		if err = s.d.lockResource(ctx, tx, entry.ResourceID); err != nil {
			return false, s.wrap("insert_entry_fenced", err)
		}
	}

	if len(caps) > 0 {
		since := make([]time.Time, len(caps))
		for i, c := range caps {
			since[i] = c.Since
		}
		var totals []WindowTotal
		totals, err = s.aggregate(ctx, tx, entry.ResourceID, since)
		if err != nil {
			return false, s.wrap("insert_entry_fenced", err)
		}
		for i, c := range caps {
			if !fits(c.CapSats, totals[i].SpentSats, entry.AmountSats) {
				return false, nil
			}
		}
	}

	s.stamp(entry)
	if _, err = tx.ExecContext(ctx, insertEntrySQL(s.d.bind), s.entryArgs(entry)...); err != nil {
		return false, s.wrap("insert_entry_fenced", err)
	}
	if err = tx.Commit(); err != nil {
		return false, s.wrap("insert_entry_fenced", err)
	}
	return true, nil
}

// Aggregate runs the single-pass multi-range sum.
func (s *sqlStore) Aggregate(ctx context.Context, resourceID string, since []time.Time) ([]WindowTotal, error) {
	totals, err := s.aggregate(ctx, s.db, resourceID, since)
	if err != nil {
		return nil, s.wrap("aggregate", err)
	}
	return totals, nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// aggregate builds conditional SUMs and a COUNT per lower bound and scans
// them from a single row. The WHERE clause restricts the scan to the widest
// range so the (resource_id, created_at) index bounds the work.
//
// Amounts are summed as high and low 32-bit halves so neither engine
// overflows; joinSats recombines them and saturates at math.MaxInt64.
func (s *sqlStore) aggregate(ctx context.Context, q queryer, resourceID string, since []time.Time) ([]WindowTotal, error) {
	totals := make([]WindowTotal, len(since))
	if len(since) == 0 {
		return totals, nil
	}

	var (
		sb   strings.Builder
		args []any
		dest []any
	)
	next := func(v any) string {
		args = append(args, v)
		return s.d.bind(len(args))
	}

	hi := make([]int64, len(since))
	lo := make([]int64, len(since))

	sb.WriteString("SELECT ")
	for i, t := range since {
		totals[i].Since = t
		if i > 0 {
			sb.WriteString(", ")
		}
		bound := s.d.encodeTime(t)
		high := fmt.Sprintf("SUM(CASE WHEN created_at >= %s THEN amount_sats >> 32 ELSE 0 END)", next(bound))
		low := fmt.Sprintf("SUM(CASE WHEN created_at >= %s THEN amount_sats & 4294967295 ELSE 0 END)", next(bound))
		fmt.Fprintf(&sb, "COALESCE(%s, 0), COALESCE(%s, 0), ", s.d.sumCast(high), s.d.sumCast(low))
		fmt.Fprintf(&sb, "COUNT(CASE WHEN created_at >= %s THEN 1 END)", next(bound))
		dest = append(dest, &hi[i], &lo[i], &totals[i].Count)
	}
	fmt.Fprintf(&sb, " FROM spend_ledger WHERE resource_id = %s AND created_at >= %s",
		next(resourceID), next(s.d.encodeTime(earliest(since))))

	if err := q.QueryRowContext(ctx, sb.String(), args...).Scan(dest...); err != nil {
		return nil, err
	}
	for i := range totals {
		totals[i].SpentSats = joinSats(hi[i], lo[i])
	}
	return totals, nil
}

// DeleteEntriesBefore removes ledger rows older than cutoff.
func (s *sqlStore) DeleteEntriesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.sweepStmt.ExecContext(ctx, s.d.encodeTime(cutoff))
	if err != nil {
		return 0, s.wrap("delete_entries", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, s.wrap("delete_entries", err)
	}
	return deleted, nil
}

// Ping checks database connectivity.
func (s *sqlStore) Ping(ctx context.Context) error {
	return s.wrap("ping", s.db.PingContext(ctx))
}
