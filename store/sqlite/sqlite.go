/*
Package sqlite provides a SQLite-backed implementation of attendance.Store.

PURPOSE:
  Production persistence for attendance logs and schedules. The same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  attendance_logs:     One row per (user, calendar date)
  attendance_segments: Ordered clock-in/out pairs, child of a log
  schedules:           Per-user scheduled hours and required-hours target

UPSERT SEMANTICS:
  UpsertLog replaces the whole record for (user_id, log_date) atomically:
  the log row is upserted and its segments are rewritten in one database
  transaction, so a reader never observes a half-replaced segment list.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's single-writer
  model. Opened with WAL so readers don't block.

USAGE:
  store, err := sqlite.New("./data/attendance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := attendance.NewEngine(store, nil)

SEE ALSO:
  - attendance/store.go: Interface definition
  - attendance/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/attendance-engine/attendance"
)

// Store implements attendance.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS attendance_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		log_date TEXT NOT NULL,
		total_rendered_seconds INTEGER NOT NULL DEFAULT 0,
		is_late INTEGER NOT NULL DEFAULT 0,
		grace_notified INTEGER NOT NULL DEFAULT 0,
		UNIQUE(user_id, log_date)
	);

	CREATE INDEX IF NOT EXISTS idx_logs_user_date
		ON attendance_logs(user_id, log_date);

	CREATE TABLE IF NOT EXISTS attendance_segments (
		log_id TEXT NOT NULL REFERENCES attendance_logs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		time_in TEXT NOT NULL,
		time_out TEXT,
		PRIMARY KEY (log_id, position)
	);

	CREATE TABLE IF NOT EXISTS schedules (
		user_id TEXT PRIMARY KEY,
		scheduled_time_in TEXT NOT NULL DEFAULT '',
		scheduled_time_out TEXT NOT NULL DEFAULT '',
		required_hours TEXT NOT NULL DEFAULT '0',
		configured_at TEXT,
		imported_rendered_minutes INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOGS
// =============================================================================

func (s *Store) ReadLog(ctx context.Context, userID, date string) (*attendance.Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, log_date, total_rendered_seconds, is_late, grace_notified
		FROM attendance_logs WHERE user_id = ? AND log_date = ?`,
		userID, date)

	log, err := scanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, attendance.ErrLogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	if err := s.loadSegments(ctx, log); err != nil {
		return nil, err
	}
	return log, nil
}

func (s *Store) UpsertLog(ctx context.Context, log *attendance.Log) (*attendance.Log, error) {
	if err := log.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("upsert log: %w", err)
	}
	defer tx.Rollback()

	// Keep the existing row's id when replacing, so segment rows stay keyed
	// consistently even if the caller minted a fresh one.
	id := log.ID
	var existingID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM attendance_logs WHERE user_id = ? AND log_date = ?`,
		log.UserID, log.LogDate).Scan(&existingID)
	switch {
	case err == nil:
		id = existingID
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("upsert log: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendance_logs (id, user_id, log_date, total_rendered_seconds, is_late, grace_notified)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, log_date) DO UPDATE SET
			total_rendered_seconds = excluded.total_rendered_seconds,
			is_late = excluded.is_late,
			grace_notified = excluded.grace_notified`,
		id, log.UserID, log.LogDate, log.TotalRenderedSeconds,
		boolToInt(log.IsLate), boolToInt(log.GraceNotified))
	if err != nil {
		return nil, fmt.Errorf("upsert log: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM attendance_segments WHERE log_id = ?`, id); err != nil {
		return nil, fmt.Errorf("upsert log segments: %w", err)
	}
	for i, seg := range log.Segments {
		var out any
		if seg.TimeOut != nil {
			out = seg.TimeOut.Format(time.RFC3339Nano)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO attendance_segments (log_id, position, time_in, time_out)
			VALUES (?, ?, ?, ?)`,
			id, i, seg.TimeIn.Format(time.RFC3339Nano), out)
		if err != nil {
			return nil, fmt.Errorf("upsert log segments: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("upsert log: %w", err)
	}

	stored := log.Clone()
	stored.ID = id
	return stored, nil
}

func (s *Store) ListLogs(ctx context.Context, filter attendance.ListFilter) ([]*attendance.Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, user_id, log_date, total_rendered_seconds, is_late, grace_notified
		FROM attendance_logs WHERE 1=1`
	var args []any
	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.From != "" {
		query += ` AND log_date >= ?`
		args = append(args, filter.From)
	}
	if filter.To != "" {
		query += ` AND log_date <= ?`
		args = append(args, filter.To)
	}
	query += ` ORDER BY user_id, log_date`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var result []*attendance.Log
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("list logs: %w", err)
		}
		result = append(result, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}

	for _, log := range result {
		if err := s.loadSegments(ctx, log); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (s *Store) loadSegments(ctx context.Context, log *attendance.Log) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT time_in, time_out FROM attendance_segments
		WHERE log_id = ? ORDER BY position`, log.ID)
	if err != nil {
		return fmt.Errorf("load segments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			in  string
			out sql.NullString
		)
		if err := rows.Scan(&in, &out); err != nil {
			return fmt.Errorf("load segments: %w", err)
		}
		seg := attendance.Segment{}
		seg.TimeIn, err = time.Parse(time.RFC3339Nano, in)
		if err != nil {
			return fmt.Errorf("load segments: %w", err)
		}
		if out.Valid {
			t, err := time.Parse(time.RFC3339Nano, out.String)
			if err != nil {
				return fmt.Errorf("load segments: %w", err)
			}
			seg.TimeOut = &t
		}
		log.Segments = append(log.Segments, seg)
	}
	return rows.Err()
}

// =============================================================================
// SCHEDULES
// =============================================================================

func (s *Store) ReadSchedule(ctx context.Context, userID string) (*attendance.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.readSchedule(ctx, userID)
}

func (s *Store) readSchedule(ctx context.Context, userID string) (*attendance.Schedule, error) {
	var (
		cfg          attendance.Schedule
		required     string
		configuredAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, scheduled_time_in, scheduled_time_out, required_hours,
		       configured_at, imported_rendered_minutes
		FROM schedules WHERE user_id = ?`, userID).
		Scan(&cfg.UserID, &cfg.ScheduledTimeIn, &cfg.ScheduledTimeOut,
			&required, &configuredAt, &cfg.ImportedRenderedMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, attendance.ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read schedule: %w", err)
	}

	cfg.RequiredHours, err = decimal.NewFromString(required)
	if err != nil {
		return nil, fmt.Errorf("read schedule: bad required_hours %q: %w", required, err)
	}
	if configuredAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, configuredAt.String)
		if err != nil {
			return nil, fmt.Errorf("read schedule: %w", err)
		}
		cfg.ConfiguredAt = &t
	}
	return &cfg, nil
}

func (s *Store) WriteSchedule(ctx context.Context, cfg *attendance.Schedule) (*attendance.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var configuredAt any
	if cfg.ConfiguredAt != nil {
		configuredAt = cfg.ConfiguredAt.Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedules (user_id, scheduled_time_in, scheduled_time_out,
			required_hours, configured_at, imported_rendered_minutes)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			scheduled_time_in = excluded.scheduled_time_in,
			scheduled_time_out = excluded.scheduled_time_out,
			required_hours = excluded.required_hours,
			configured_at = excluded.configured_at,
			imported_rendered_minutes = excluded.imported_rendered_minutes`,
		cfg.UserID, cfg.ScheduledTimeIn, cfg.ScheduledTimeOut,
		cfg.RequiredHours.String(), configuredAt, cfg.ImportedRenderedMinutes)
	if err != nil {
		return nil, fmt.Errorf("write schedule: %w", err)
	}

	return s.readSchedule(ctx, cfg.UserID)
}

// =============================================================================
// HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLog(r rowScanner) (*attendance.Log, error) {
	var (
		log           attendance.Log
		late, noticed int
	)
	err := r.Scan(&log.ID, &log.UserID, &log.LogDate,
		&log.TotalRenderedSeconds, &late, &noticed)
	if err != nil {
		return nil, err
	}
	log.IsLate = late != 0
	log.GraceNotified = noticed != 0
	return &log, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
