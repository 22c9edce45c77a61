/*
store.go - Persistence interface for logs and schedules

PURPOSE:
  Defines the interface between the engine and whatever holds the records.
  The store is the source of truth: the engine never treats an unconfirmed
  write as applied, and cached copies elsewhere are never authoritative.

IMPLEMENTATIONS:
  - store/memory.go: In-memory, for tests and dev
  - store/sqlite (module root): Production SQLite

UPSERT SEMANTICS:
  UpsertLog creates or wholly replaces the record keyed by (UserID, LogDate)
  and returns the stored record. The engine commits only that echo, so a
  failed round trip leaves prior confirmed state intact.

SEE ALSO:
  - engine.go: The only writer of logs
  - ../store/sqlite/sqlite.go: Concrete implementation
*/
package attendance

import "context"

// Store persists attendance logs and per-user schedules.
type Store interface {
	// ReadLog returns the log for (userID, date), or ErrLogNotFound.
	ReadLog(ctx context.Context, userID, date string) (*Log, error)

	// UpsertLog creates or replaces the log keyed by (UserID, LogDate) and
	// returns the stored record.
	UpsertLog(ctx context.Context, log *Log) (*Log, error)

	// ReadSchedule returns the user's schedule, or ErrScheduleNotFound.
	ReadSchedule(ctx context.Context, userID string) (*Schedule, error)

	// WriteSchedule creates or replaces the user's schedule and returns
	// the stored record.
	WriteSchedule(ctx context.Context, cfg *Schedule) (*Schedule, error)

	// ListLogs returns logs matching the filter, ordered by (UserID, LogDate).
	ListLogs(ctx context.Context, filter ListFilter) ([]*Log, error)
}
