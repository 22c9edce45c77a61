/*
engine.go - Clock-in/clock-out state machine

PURPOSE:
  The Engine owns the per-user-per-day attendance state machine:

    NoLog -> OpenSegment -> ClosedSegment -> OpenSegment -> ... (repeatable)

  There is no close-of-day event; a log simply stops receiving segments
  until the next calendar date creates a new one.

CRITICAL INVARIANTS:
  1. At most the last segment of a log is open
  2. IsLate/GraceNotified are fixed at the day's first clock-in, never
     recomputed
  3. No optimistic commit: every mutation goes to the store first and only
     the confirmed response is returned; a failed write changes nothing
  4. Single-flight per user: a second ClockIn/ClockOut for the same user is
     rejected while one is still on its persistence round trip

CONCURRENCY:
  The UI convention of disabling the active button is not trusted. A second
  tab or device can race, so preconditions are re-validated against the
  freshly loaded log, and the in-flight guard lives here rather than in the
  caller. The store remains the final arbiter of whether a write lands.

SEE ALSO:
  - duration.go: Lateness classification and rendered-time math
  - store.go: Persistence interface
*/
package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invalidator drops cached aggregates for a user after a confirmed write.
// A nil Invalidator disables cache coupling; engine correctness does not
// depend on it.
type Invalidator interface {
	InvalidateUser(userID string)
}

// Engine executes clock operations against a Store.
type Engine struct {
	store       Store
	invalidator Invalidator

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewEngine creates an engine over the given store. invalidator may be nil.
func NewEngine(store Store, invalidator Invalidator) *Engine {
	return &Engine{
		store:       store,
		invalidator: invalidator,
		inFlight:    make(map[string]bool),
	}
}

// acquire marks a user's clock operation as in flight.
func (e *Engine) acquire(userID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[userID] {
		return fmt.Errorf("user %s: %w", userID, ErrOperationInFlight)
	}
	e.inFlight[userID] = true
	return nil
}

func (e *Engine) release(userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, userID)
}

func (e *Engine) invalidate(userID string) {
	if e.invalidator != nil {
		e.invalidator.InvalidateUser(userID)
	}
}

// =============================================================================
// CLOCK IN
// =============================================================================

// ClockIn opens a new segment for (userID, today). The first clock-in of the
// day creates the log and fixes its lateness flags; later clock-ins only
// append. Fails with ErrAlreadyClockedIn if the last segment is open, with
// ErrOperationInFlight if another clock operation for this user is pending.
// Returns the stored log.
func (e *Engine) ClockIn(ctx context.Context, userID string, now time.Time) (*Log, error) {
	if err := e.acquire(userID); err != nil {
		return nil, err
	}
	defer e.release(userID)

	today := DateOf(now)
	log, err := e.store.ReadLog(ctx, userID, today)
	switch {
	case errors.Is(err, ErrLogNotFound):
		return e.firstClockIn(ctx, userID, today, now)
	case err != nil:
		return nil, fmt.Errorf("clock-in read for %s: %w", userID, err)
	}

	if open := log.OpenSegment(); open != nil {
		return nil, &ClockStateError{
			UserID:  userID,
			LogDate: today,
			OpenAt:  open.TimeIn.Format(time.RFC3339),
			Op:      "clock-in",
		}
	}

	// Re-entry after a clock-out: append only, lateness flags stay as set
	// at the day's first clock-in.
	next := log.Clone()
	next.Segments = append(next.Segments, Segment{TimeIn: now})

	stored, err := e.store.UpsertLog(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("clock-in write for %s: %w", userID, err)
	}
	e.invalidate(userID)
	return stored, nil
}

// firstClockIn creates today's log with a single open segment and classifies
// lateness against the user's schedule (defaults when none is configured).
func (e *Engine) firstClockIn(ctx context.Context, userID, today string, now time.Time) (*Log, error) {
	scheduledIn := DefaultScheduledTimeIn
	sched, err := e.store.ReadSchedule(ctx, userID)
	switch {
	case errors.Is(err, ErrScheduleNotFound):
		// No schedule configured; default applies.
	case err != nil:
		return nil, fmt.Errorf("clock-in schedule read for %s: %w", userID, err)
	case sched.ScheduledTimeIn != "":
		scheduledIn = sched.ScheduledTimeIn
	}

	lateness, err := Classify(scheduledIn, now)
	if err != nil {
		return nil, fmt.Errorf("clock-in for %s: %w", userID, err)
	}

	log := &Log{
		ID:            uuid.NewString(),
		UserID:        userID,
		LogDate:       today,
		Segments:      []Segment{{TimeIn: now}},
		IsLate:        lateness.IsLate,
		GraceNotified: lateness.GraceNotified,
	}

	stored, err := e.store.UpsertLog(ctx, log)
	if err != nil {
		return nil, fmt.Errorf("clock-in write for %s: %w", userID, err)
	}
	e.invalidate(userID)
	return stored, nil
}

// =============================================================================
// CLOCK OUT
// =============================================================================

// ClockOut closes today's open segment and folds its floored duration into
// TotalRenderedSeconds. Fails with ErrNotClockedIn if there is no log for
// today or its last segment is already closed, and with ErrClockOutBeforeIn
// if now precedes the open segment's clock-in. Returns the stored log.
func (e *Engine) ClockOut(ctx context.Context, userID string, now time.Time) (*Log, error) {
	if err := e.acquire(userID); err != nil {
		return nil, err
	}
	defer e.release(userID)

	today := DateOf(now)
	log, err := e.store.ReadLog(ctx, userID, today)
	switch {
	case errors.Is(err, ErrLogNotFound):
		return nil, &ClockStateError{UserID: userID, LogDate: today, Op: "clock-out"}
	case err != nil:
		return nil, fmt.Errorf("clock-out read for %s: %w", userID, err)
	}
	open := log.OpenSegment()
	if open == nil {
		return nil, &ClockStateError{UserID: userID, LogDate: today, Op: "clock-out"}
	}
	if now.Before(open.TimeIn) {
		return nil, fmt.Errorf("user %s: clock-out at %s precedes clock-in at %s: %w",
			userID, now.Format(time.RFC3339), open.TimeIn.Format(time.RFC3339), ErrClockOutBeforeIn)
	}

	next := log.Clone()
	seg := &next.Segments[len(next.Segments)-1]
	out := now
	seg.TimeOut = &out
	next.TotalRenderedSeconds += seg.Seconds()

	stored, err := e.store.UpsertLog(ctx, next)
	if err != nil {
		return nil, fmt.Errorf("clock-out write for %s: %w", userID, err)
	}
	e.invalidate(userID)
	return stored, nil
}

// =============================================================================
// READS
// =============================================================================

// Status is the live view backing the elapsed-time display.
type Status struct {
	Log             *Log
	ClockedIn       bool
	RenderedSeconds int64
	Elapsed         string // HH:MM:SS of RenderedSeconds
}

// Status returns today's state for a user. A missing log is not an error;
// it reports zero rendered time, not clocked in.
func (e *Engine) Status(ctx context.Context, userID string, now time.Time) (*Status, error) {
	log, err := e.store.ReadLog(ctx, userID, DateOf(now))
	if errors.Is(err, ErrLogNotFound) {
		return &Status{Elapsed: FormatElapsed(0)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("status read for %s: %w", userID, err)
	}
	rendered := RenderedSeconds(log, now)
	return &Status{
		Log:             log,
		ClockedIn:       log.OpenSegment() != nil,
		RenderedSeconds: rendered,
		Elapsed:         FormatElapsed(rendered),
	}, nil
}

// Summary is the aggregate view against the required-hours target.
type Summary struct {
	UserID           string
	RenderedSeconds  int64
	RemainingSeconds int64
	RenderedHours    decimal.Decimal
	RemainingHours   decimal.Decimal
	RequiredHours    decimal.Decimal
}

// Summary aggregates all of a user's logs plus any imported carry-over and
// computes the remaining balance against the configured required hours.
func (e *Engine) Summary(ctx context.Context, userID string, now time.Time) (*Summary, error) {
	var (
		required decimal.Decimal
		imported int64
	)
	sched, err := e.store.ReadSchedule(ctx, userID)
	switch {
	case errors.Is(err, ErrScheduleNotFound):
		// No target configured; remaining stays zero.
	case err != nil:
		return nil, fmt.Errorf("summary schedule read for %s: %w", userID, err)
	default:
		required = sched.RequiredHours
		imported = sched.ImportedRenderedMinutes
	}

	logs, err := e.store.ListLogs(ctx, ListFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("summary log list for %s: %w", userID, err)
	}

	rendered := AggregateRenderedSeconds(logs, imported, now)
	remaining := RemainingSeconds(required, rendered)
	return &Summary{
		UserID:           userID,
		RenderedSeconds:  rendered,
		RemainingSeconds: remaining,
		RenderedHours:    SecondsToHours(rendered),
		RemainingHours:   SecondsToHours(remaining),
		RequiredHours:    required,
	}, nil
}
