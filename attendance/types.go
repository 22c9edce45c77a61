/*
Package attendance provides the core time-accumulation engine.

PURPOSE:
  This package contains the types and algorithms for daily work-time
  tracking: ordered clock-in/clock-out segments per user per calendar day,
  rendered-duration accumulation, and lateness classification against a
  configured schedule with a grace window.

KEY CONCEPTS IN THIS FILE (types.go):
  - Log: One record per (user, calendar date) holding ordered Segments
  - Segment: A single clock-in-to-clock-out interval; open while TimeOut is nil
  - Schedule: Per-user scheduled hours, required-hours target, and any
    rendered time imported from a prior system

DESIGN PRINCIPLES:
  1. Confirmed writes only: engine state derives from the store's response,
     never from an optimistic local mutation
  2. Precision: required/rendered hours use decimal.Decimal, durations are
     whole seconds (floored)
  3. One open segment: only the last segment of a log may be open

USAGE:
  log := attendance.NewLog("usr-1", attendance.DateOf(now))
  open := log.OpenSegment() // nil unless currently clocked in

SEE ALSO:
  - engine.go: ClockIn/ClockOut state machine
  - duration.go: Rendered-time math and formatting
  - store.go: Persistence interface
*/
package attendance

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SEGMENT - One continuous clock-in-to-clock-out interval within a day
// =============================================================================

// Segment is one worked interval. TimeOut == nil means the segment is open
// (the user is currently clocked in).
type Segment struct {
	TimeIn  time.Time
	TimeOut *time.Time
}

// Open reports whether the segment has no clock-out yet.
func (s Segment) Open() bool { return s.TimeOut == nil }

// Seconds returns the closed segment's duration floored to whole seconds.
// Returns 0 for an open segment; use RenderedSeconds for live elapsed time.
func (s Segment) Seconds() int64 {
	if s.TimeOut == nil {
		return 0
	}
	return int64(s.TimeOut.Sub(s.TimeIn) / time.Second)
}

// =============================================================================
// LOG - One record per (user, calendar date)
// =============================================================================

// Log is the attendance record for one user on one calendar date.
//
// INVARIANTS:
//   - At most the LAST segment may be open; all earlier segments are closed.
//   - TotalRenderedSeconds equals the sum of Seconds() over closed segments.
//     It never includes the open segment; that is added at read time.
//   - IsLate and GraceNotified are fixed at the first clock-in of the day
//     and never recomputed, even if the schedule changes later that day.
type Log struct {
	ID                   string
	UserID               string
	LogDate              string // YYYY-MM-DD
	Segments             []Segment
	TotalRenderedSeconds int64
	IsLate               bool
	GraceNotified        bool
}

// NewLog returns an empty log for the given user and date.
func NewLog(userID, logDate string) *Log {
	return &Log{UserID: userID, LogDate: logDate}
}

// OpenSegment returns a pointer to the trailing open segment, or nil if the
// user is not clocked in on this log.
func (l *Log) OpenSegment() *Segment {
	if len(l.Segments) == 0 {
		return nil
	}
	last := &l.Segments[len(l.Segments)-1]
	if last.Open() {
		return last
	}
	return nil
}

// Clone returns a deep copy. Engine operations mutate copies and commit only
// the store's confirmed response.
func (l *Log) Clone() *Log {
	cp := *l
	cp.Segments = make([]Segment, len(l.Segments))
	for i, s := range l.Segments {
		cp.Segments[i] = s
		if s.TimeOut != nil {
			out := *s.TimeOut
			cp.Segments[i].TimeOut = &out
		}
	}
	return &cp
}

// Validate checks the one-open-segment invariant.
func (l *Log) Validate() error {
	for i, s := range l.Segments {
		if s.Open() && i != len(l.Segments)-1 {
			return fmt.Errorf("segment %d of log %s/%s is open but not last", i, l.UserID, l.LogDate)
		}
	}
	return nil
}

// =============================================================================
// SCHEDULE - Per-user configuration
// =============================================================================

// Schedule holds a user's expected hours and required-hours target.
// ImportedRenderedMinutes is a one-time carry-over from a prior system; it is
// added to computed totals but never mutated by clock events.
type Schedule struct {
	UserID                  string
	ScheduledTimeIn         string // "HH:MM"
	ScheduledTimeOut        string // "HH:MM"
	RequiredHours           decimal.Decimal
	ConfiguredAt            *time.Time
	ImportedRenderedMinutes int64
}

// DefaultScheduledTimeIn applies when a user has no schedule configured.
const DefaultScheduledTimeIn = "09:00"

// ParseClock converts an "HH:MM" wall-clock string to minutes since
// midnight. The whole string must be a valid time; trailing text is an
// error, not ignored.
func ParseClock(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, fmt.Errorf("invalid clock value %q: %w", hhmm, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// DateOf formats a timestamp as the YYYY-MM-DD log date, in the timestamp's
// own location. The calendar day boundary follows the clock the user punched.
func DateOf(t time.Time) string {
	return t.Format("2006-01-02")
}

// =============================================================================
// LIST FILTER
// =============================================================================

// ListFilter narrows ListLogs queries. Zero values mean "no constraint":
// empty UserID matches all users, empty From/To match all dates.
type ListFilter struct {
	UserID string
	From   string // YYYY-MM-DD inclusive
	To     string // YYYY-MM-DD inclusive
}

// Matches reports whether a log satisfies the filter. String comparison is
// valid because YYYY-MM-DD sorts lexicographically.
func (f ListFilter) Matches(l *Log) bool {
	if f.UserID != "" && l.UserID != f.UserID {
		return false
	}
	if f.From != "" && l.LogDate < f.From {
		return false
	}
	if f.To != "" && l.LogDate > f.To {
		return false
	}
	return true
}
