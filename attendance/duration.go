/*
duration.go - Rendered-time math, lateness classification, display formatting

PURPOSE:
  Pure functions over already-loaded logs. The live elapsed display calls
  RenderedSeconds on every tick of its one-second timer; nothing here
  suspends or touches the store.

LATENESS RULE:
  Let sched = minutes-since-midnight of the scheduled time-in (09:00 when
  unset) and in = minutes-since-midnight of the clock-in. With a 15 minute
  grace window:

    isLate        = in >= sched + 15
    graceNotified = sched <= in < sched + 15

  Both are false for an early arrival. Classified once at the first
  clock-in of the day; see engine.go.

SEE ALSO:
  - engine.go: Applies Classify at first clock-in
  - types.go: Log and Segment definitions
*/
package attendance

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// GraceWindowMinutes is the tolerance after the scheduled start during which
// arrival is flagged but not counted as late.
const GraceWindowMinutes = 15

// =============================================================================
// LATENESS
// =============================================================================

// Lateness is the classification fixed at the day's first clock-in.
type Lateness struct {
	IsLate        bool
	GraceNotified bool
}

// Classify evaluates a clock-in moment against a scheduled "HH:MM" start.
// Comparison is at minute granularity: 09:14:59 is still within a 09:00
// schedule's grace window, 09:15:00 is late.
func Classify(scheduledTimeIn string, now time.Time) (Lateness, error) {
	if scheduledTimeIn == "" {
		scheduledTimeIn = DefaultScheduledTimeIn
	}
	sched, err := ParseClock(scheduledTimeIn)
	if err != nil {
		return Lateness{}, err
	}
	in := now.Hour()*60 + now.Minute()
	return Lateness{
		IsLate:        in >= sched+GraceWindowMinutes,
		GraceNotified: in >= sched && in < sched+GraceWindowMinutes,
	}, nil
}

// =============================================================================
// RENDERED TIME
// =============================================================================

// RenderedSeconds returns the log's total worked seconds: the closed-segment
// total plus, if the last segment is open, the elapsed time since its
// clock-in floored to whole seconds. Recompute per tick; never cache the
// result while a segment is open.
func RenderedSeconds(l *Log, now time.Time) int64 {
	total := l.TotalRenderedSeconds
	if open := l.OpenSegment(); open != nil {
		if elapsed := int64(now.Sub(open.TimeIn) / time.Second); elapsed > 0 {
			total += elapsed
		}
	}
	return total
}

// AggregateRenderedSeconds sums rendered time across a user's logs plus the
// one-time imported carry-over. Open-segment elapsed is added only for
// today's log; a segment left open on a prior day (never clocked out)
// counts at its closed total rather than accruing phantom time forever.
func AggregateRenderedSeconds(logs []*Log, importedRenderedMinutes int64, now time.Time) int64 {
	today := DateOf(now)
	total := importedRenderedMinutes * 60
	for _, l := range logs {
		if l.LogDate == today {
			total += RenderedSeconds(l, now)
		} else {
			total += l.TotalRenderedSeconds
		}
	}
	return total
}

// RemainingSeconds returns how far the aggregate is from the required-hours
// target, floored at zero once the target is met.
func RemainingSeconds(requiredHours decimal.Decimal, aggregateSeconds int64) int64 {
	required := requiredHours.Mul(decimal.NewFromInt(3600)).IntPart()
	if remaining := required - aggregateSeconds; remaining > 0 {
		return remaining
	}
	return 0
}

// SecondsToHours converts a second count to decimal hours for reporting.
func SecondsToHours(seconds int64) decimal.Decimal {
	return decimal.NewFromInt(seconds).Div(decimal.NewFromInt(3600))
}

// FormatElapsed renders a non-negative second count as zero-padded HH:MM:SS.
// Display only, never persisted. Hours widen past two digits rather than
// wrap, so multi-day aggregates stay readable.
func FormatElapsed(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
